package domain

import (
	"context"
	"time"
)

// StateUpdates 是随状态流转一起持久化的附带字段变更，
// 由应用层根据目标状态计算，在同一个事务中落库。
type StateUpdates struct {
	// SetLockedUntil 非空时写入新的支付截止时间（进入 PENDING_PAYMENT）。
	SetLockedUntil *time.Time
	// ClearLockedUntil 为真时清空支付截止时间（离开 PENDING_PAYMENT）。
	ClearLockedUntil bool
	// SetPaymentStatus 非空时更新支付状态（支付回调、COD 妥投、退款完成）。
	SetPaymentStatus *PaymentStatus
}

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 持久化一个新订单，连同商品快照和建单的合成历史记录。
	Create(ctx context.Context, order *Order) error

	// FindByID 加载订单聚合，包含全部历史记录。
	FindByID(ctx context.Context, id string) (*Order, error)

	// ApplyTransition 以 compare-and-set 语义原子地完成一次流转：
	// 仅当订单当前状态仍为 expected 时更新 status、写入一条历史记录
	// 并应用 updates。输掉竞争时返回 ErrConflict，不产生任何写入。
	ApplyTransition(ctx context.Context, orderID string, expected, target Status, actor Role, note string, updates StateUpdates, at time.Time) (*StatusHistory, error)

	// FindExpiredPendingPayment 找出支付时限已过的待支付订单，供清扫任务使用。
	FindExpiredPendingPayment(ctx context.Context, now time.Time, limit int) ([]*Order, error)
}
