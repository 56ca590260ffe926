package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"atelier/internal/service/loyalty/domain"
)

// memLoyaltyRepo 是内存版的积分仓储。事务用一把互斥锁近似。
type memLoyaltyRepo struct {
	mu     sync.Mutex
	tiers  []domain.MemberTier
	orders map[string]*domain.OrderAccrual
	users  map[string]*domain.UserLoyalty
}

func newMemLoyaltyRepo(tiers []domain.MemberTier) *memLoyaltyRepo {
	return &memLoyaltyRepo{
		tiers:  tiers,
		orders: make(map[string]*domain.OrderAccrual),
		users:  make(map[string]*domain.UserLoyalty),
	}
}

func (r *memLoyaltyRepo) WithinTx(ctx context.Context, fn func(tx domain.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&memTx{repo: r})
}

func (r *memLoyaltyRepo) ListTiers(ctx context.Context) ([]domain.MemberTier, error) {
	return r.tiers, nil
}

type memTx struct {
	repo *memLoyaltyRepo
}

func (t *memTx) OrderForUpdate(ctx context.Context, orderID string) (*domain.OrderAccrual, error) {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) SetOrderPointsEarned(ctx context.Context, orderID string, points int64) error {
	o := t.repo.orders[orderID]
	if o.PointsEarned != nil {
		return errors.New("already accrued")
	}
	o.PointsEarned = &points
	return nil
}

func (t *memTx) UserForUpdate(ctx context.Context, userID string) (*domain.UserLoyalty, error) {
	u, ok := t.repo.users[userID]
	if !ok {
		u = &domain.UserLoyalty{UserID: userID}
		t.repo.users[userID] = u
	}
	cp := *u
	return &cp, nil
}

func (t *memTx) SaveUser(ctx context.Context, user *domain.UserLoyalty) error {
	cp := *user
	t.repo.users[user.UserID] = &cp
	return nil
}

var testTiers = []domain.MemberTier{
	{ID: 1, Name: "BRONZE", MinPoints: 0, PointMultiplier: 1.0},
	{ID: 2, Name: "SILVER", MinPoints: 100, PointMultiplier: 1.1},
	{ID: 3, Name: "GOLD", MinPoints: 500, PointMultiplier: 1.2},
}

func newTestAccrual(repo domain.Repository) *AccrualService {
	return NewAccrualService(repo, otel.Tracer("test"))
}

func TestOnOrderCompleted(t *testing.T) {
	repo := newMemLoyaltyRepo(testTiers)
	tierID := int64(2)
	repo.orders["order-1"] = &domain.OrderAccrual{OrderID: "order-1", UserID: "user-1", TotalAmount: 350000}
	repo.users["user-1"] = &domain.UserLoyalty{UserID: "user-1", PointBalance: 120, TierID: &tierID}

	svc := newTestAccrual(repo)
	if err := svc.OnOrderCompleted(context.Background(), "order-1"); err != nil {
		t.Fatalf("OnOrderCompleted failed: %v", err)
	}

	// SILVER 倍率 1.1：floor(35 * 1.1) = 38
	order := repo.orders["order-1"]
	if order.PointsEarned == nil || *order.PointsEarned != 38 {
		t.Errorf("points earned = %v, want 38", order.PointsEarned)
	}
	user := repo.users["user-1"]
	if user.PointBalance != 158 {
		t.Errorf("balance = %d, want 158", user.PointBalance)
	}
	if user.TierID == nil || *user.TierID != 2 {
		t.Errorf("tier = %v, want SILVER", user.TierID)
	}
}

func TestOnOrderCompleted_Idempotent(t *testing.T) {
	repo := newMemLoyaltyRepo(testTiers)
	repo.orders["order-1"] = &domain.OrderAccrual{OrderID: "order-1", UserID: "user-1", TotalAmount: 350000}

	svc := newTestAccrual(repo)
	if err := svc.OnOrderCompleted(context.Background(), "order-1"); err != nil {
		t.Fatalf("first accrual failed: %v", err)
	}
	balance := repo.users["user-1"].PointBalance

	// 事件重复投递，余额必须保持不变
	if err := svc.OnOrderCompleted(context.Background(), "order-1"); err != nil {
		t.Fatalf("duplicate accrual should be a no-op, got: %v", err)
	}
	if got := repo.users["user-1"].PointBalance; got != balance {
		t.Errorf("balance changed on duplicate delivery: %d -> %d", balance, got)
	}
}

func TestOnOrderCompleted_NewUserGetsBaseMultiplier(t *testing.T) {
	repo := newMemLoyaltyRepo(testTiers)
	repo.orders["order-1"] = &domain.OrderAccrual{OrderID: "order-1", UserID: "user-new", TotalAmount: 500000}

	svc := newTestAccrual(repo)
	if err := svc.OnOrderCompleted(context.Background(), "order-1"); err != nil {
		t.Fatalf("OnOrderCompleted failed: %v", err)
	}

	user := repo.users["user-new"]
	if user.PointBalance != 50 {
		t.Errorf("balance = %d, want 50 at base multiplier", user.PointBalance)
	}
	if user.TierID == nil || *user.TierID != 1 {
		t.Errorf("tier = %v, want BRONZE", user.TierID)
	}
}

func TestOnOrderCompleted_TierUpgrade(t *testing.T) {
	repo := newMemLoyaltyRepo(testTiers)
	tierID := int64(2)
	repo.orders["order-1"] = &domain.OrderAccrual{OrderID: "order-1", UserID: "user-1", TotalAmount: 4000000}
	repo.users["user-1"] = &domain.UserLoyalty{UserID: "user-1", PointBalance: 90, TierID: &tierID}

	svc := newTestAccrual(repo)
	if err := svc.OnOrderCompleted(context.Background(), "order-1"); err != nil {
		t.Fatalf("OnOrderCompleted failed: %v", err)
	}

	// floor(400 * 1.1) = 440, 余额 530 跨过 GOLD 门槛
	user := repo.users["user-1"]
	if user.PointBalance != 530 {
		t.Errorf("balance = %d, want 530", user.PointBalance)
	}
	if user.TierID == nil || *user.TierID != 3 {
		t.Errorf("tier = %v, want GOLD", user.TierID)
	}
}

func TestOnOrderCompleted_TierNeverRegresses(t *testing.T) {
	repo := newMemLoyaltyRepo(testTiers)
	// 历史原因：用户持有 GOLD 但余额低于门槛
	tierID := int64(3)
	repo.orders["order-1"] = &domain.OrderAccrual{OrderID: "order-1", UserID: "user-1", TotalAmount: 100000}
	repo.users["user-1"] = &domain.UserLoyalty{UserID: "user-1", PointBalance: 50, TierID: &tierID}

	svc := newTestAccrual(repo)
	if err := svc.OnOrderCompleted(context.Background(), "order-1"); err != nil {
		t.Fatalf("OnOrderCompleted failed: %v", err)
	}

	user := repo.users["user-1"]
	if user.TierID == nil || *user.TierID != 3 {
		t.Errorf("tier = %v, must stay GOLD", user.TierID)
	}
}
