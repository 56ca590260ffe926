package infrastructure

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"atelier/internal/service/order/domain"
)

func getTestDB(t *testing.T) *gorm.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/atelier_test?parseTime=true"
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	return db
}

func newPersistedOrder(t *testing.T, repo *GormOrderRepository) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder("test-user", domain.PaymentVNPay,
		[]domain.OrderItem{{ProductName: "Cotton Dress", SKU: "CD-001", Price: 450000, Quantity: 1}},
		450000, 0, 0, 0, 15*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return order
}

func TestApplyTransition_CompareAndSet(t *testing.T) {
	db := getTestDB(t)
	repo := NewGormOrderRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	order := newPersistedOrder(t, repo)
	ctx := context.Background()

	hist, err := repo.ApplyTransition(ctx, order.ID,
		domain.StatusPendingPayment, domain.StatusCancelled,
		domain.RoleCustomer, "changed my mind",
		domain.StateUpdates{ClearLockedUntil: true}, time.Now())
	if err != nil {
		t.Fatalf("ApplyTransition failed: %v", err)
	}
	if hist.FromStatus == nil || *hist.FromStatus != domain.StatusPendingPayment || hist.ToStatus != domain.StatusCancelled {
		t.Errorf("history entry = %+v", hist)
	}

	// 带着过期的 expected 再来一次，必须输掉竞争且不产生写入
	_, err = repo.ApplyTransition(ctx, order.ID,
		domain.StatusPendingPayment, domain.StatusPendingConfirmation,
		domain.RoleSystem, "", domain.StateUpdates{}, time.Now())
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}

	got, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if got.LockedUntil != nil {
		t.Error("lockedUntil should be cleared")
	}
	if len(got.History) != 2 {
		t.Errorf("history entries = %d, want 2", len(got.History))
	}
}

func TestTransitionWritesOutboxEvent(t *testing.T) {
	db := getTestDB(t)
	repo := NewGormOrderRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	order := newPersistedOrder(t, repo)

	var before, after int64
	db.Model(&OutboxModel{}).Where("`key` = ?", order.ID).Count(&before)

	_, err := repo.ApplyTransition(context.Background(), order.ID,
		domain.StatusPendingPayment, domain.StatusPendingConfirmation,
		domain.RoleSystem, "payment gateway callback",
		domain.StateUpdates{ClearLockedUntil: true}, time.Now())
	if err != nil {
		t.Fatalf("ApplyTransition failed: %v", err)
	}

	db.Model(&OutboxModel{}).Where("`key` = ?", order.ID).Count(&after)
	if after != before+1 {
		t.Errorf("outbox rows for order: before=%d after=%d", before, after)
	}
}

func TestFindExpiredPendingPayment(t *testing.T) {
	db := getTestDB(t)
	repo := NewGormOrderRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	ctx := context.Background()

	expired := newPersistedOrder(t, repo)
	past := time.Now().Add(-time.Minute)
	db.Model(&OrderModel{}).Where("id = ?", expired.ID).Update("locked_until", past)

	newPersistedOrder(t, repo) // 未过期，不应出现在结果里

	out, err := repo.FindExpiredPendingPayment(ctx, time.Now(), 100)
	if err != nil {
		t.Fatalf("FindExpiredPendingPayment failed: %v", err)
	}
	found := false
	for _, o := range out {
		if o.ID == expired.ID {
			found = true
		}
		if o.LockedUntil == nil || !o.LockedUntil.Before(time.Now()) {
			t.Errorf("order %s in expired set with lockedUntil %v", o.ID, o.LockedUntil)
		}
	}
	if !found {
		t.Error("expired order missing from sweep candidates")
	}
}
