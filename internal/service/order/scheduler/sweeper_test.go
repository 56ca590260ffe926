package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"atelier/internal/service/order/application"
	"atelier/internal/service/order/domain"
)

type memOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	histSeq int64
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *stored
	cp.History = append([]domain.StatusHistory(nil), stored.History...)
	return &cp, nil
}

func (r *memOrderRepo) ApplyTransition(ctx context.Context, orderID string, expected, target domain.Status, actor domain.Role, note string, updates domain.StateUpdates, at time.Time) (*domain.StatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if stored.Status != expected {
		return nil, domain.ErrConflict
	}
	stored.Status = target
	if updates.ClearLockedUntil {
		stored.LockedUntil = nil
	}
	if updates.SetLockedUntil != nil {
		stored.LockedUntil = updates.SetLockedUntil
	}
	if updates.SetPaymentStatus != nil {
		stored.PaymentStatus = *updates.SetPaymentStatus
	}
	r.histSeq++
	from := expected
	hist := domain.StatusHistory{
		ID: r.histSeq, OrderID: orderID, FromStatus: &from, ToStatus: target,
		Note: note, ActorRole: actor, CreatedAt: at,
	}
	stored.History = append(stored.History, hist)
	return &hist, nil
}

func (r *memOrderRepo) FindExpiredPendingPayment(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.StatusPendingPayment && o.LockedUntil != nil && o.LockedUntil.Before(now) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockedUntil.Before(*out[j].LockedUntil) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func seedOrder(t *testing.T, repo *memOrderRepo, status domain.Status, lockedUntil *time.Time) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder("user-1", domain.PaymentVNPay,
		[]domain.OrderItem{{ProductName: "Trench Coat", SKU: "TC-100", Price: 900000, Quantity: 1}},
		900000, 0, 0, 0, 15*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	order.Status = status
	order.LockedUntil = lockedUntil
	if err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return order
}

func newTestSweeper(repo domain.OrderRepository) *Sweeper {
	tracer := otel.Tracer("test")
	lifecycle := application.NewLifecycleService(repo, nil, application.Policy{
		PaymentWindow:     15 * time.Minute,
		RefundWindow:      7 * 24 * time.Hour,
		MaxPaymentRetries: 3,
	}, tracer)
	return NewSweeper(repo, lifecycle, tracer)
}

func TestSweepCancelsExpiredOrders(t *testing.T) {
	repo := newMemOrderRepo()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(10 * time.Minute)

	expired := seedOrder(t, repo, domain.StatusPendingPayment, &past)
	alive := seedOrder(t, repo, domain.StatusPendingPayment, &future)
	paid := seedOrder(t, repo, domain.StatusPendingConfirmation, nil)

	sweeper := newTestSweeper(repo)
	cancelled, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled)
	}

	got, _ := repo.FindByID(context.Background(), expired.ID)
	if got.Status != domain.StatusCancelled {
		t.Errorf("expired order status = %s, want CANCELLED", got.Status)
	}
	last := got.History[len(got.History)-1]
	if last.ActorRole != domain.RoleSystem {
		t.Errorf("cancellation actor = %s, want SYSTEM", last.ActorRole)
	}

	got, _ = repo.FindByID(context.Background(), alive.ID)
	if got.Status != domain.StatusPendingPayment {
		t.Errorf("unexpired order status = %s, want PENDING_PAYMENT", got.Status)
	}
	got, _ = repo.FindByID(context.Background(), paid.ID)
	if got.Status != domain.StatusPendingConfirmation {
		t.Errorf("paid order status = %s, want PENDING_CONFIRMATION", got.Status)
	}
}

// staleListRepo 在候选列表里混入一个读取后已被支付回调拿走的订单，
// 模拟清扫和回调之间的竞争。
type staleListRepo struct {
	*memOrderRepo
	staleID string
}

func (r *staleListRepo) FindExpiredPendingPayment(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	out, err := r.memOrderRepo.FindExpiredPendingPayment(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	stale, err := r.memOrderRepo.FindByID(ctx, r.staleID)
	if err != nil {
		return nil, err
	}
	stale.Status = domain.StatusPendingPayment
	return append(out, stale), nil
}

func TestSweepLosesRaceGracefully(t *testing.T) {
	base := newMemOrderRepo()
	past := time.Now().Add(-time.Minute)
	expired := seedOrder(t, base, domain.StatusPendingPayment, &past)
	raced := seedOrder(t, base, domain.StatusPendingConfirmation, nil)

	repo := &staleListRepo{memOrderRepo: base, staleID: raced.ID}
	sweeper := newTestSweeper(repo)

	cancelled, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", cancelled)
	}

	// 已被支付回调拿走的订单必须原样留下
	got, _ := base.FindByID(context.Background(), raced.ID)
	if got.Status != domain.StatusPendingConfirmation {
		t.Errorf("raced order status = %s, want PENDING_CONFIRMATION", got.Status)
	}
	got, _ = base.FindByID(context.Background(), expired.ID)
	if got.Status != domain.StatusCancelled {
		t.Errorf("expired order status = %s, want CANCELLED", got.Status)
	}
}

func TestSweepEmptyBatch(t *testing.T) {
	sweeper := newTestSweeper(newMemOrderRepo())
	cancelled, err := sweeper.Sweep(context.Background())
	if err != nil || cancelled != 0 {
		t.Errorf("Sweep on empty store = %d, %v", cancelled, err)
	}
}
