package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod 在下单时确定，之后不可变更。
type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "COD"
	PaymentVNPay        PaymentMethod = "VNPAY"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// PaymentStatus 是支付服务侧的状态信号。编排器只在退款完成
// 和 COD 妥投收款时更新它，其余变化都来自支付回调。
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// OrderItem 是下单时刻的商品快照。名称、价格、SKU 在购买时冻结，
// 与商品目录的后续变更无关。
type OrderItem struct {
	ProductName string
	SKU         string
	Price       int64 // 单价，VND
	Quantity    int
}

// StatusHistory 是一条不可变的审计记录。
// FromStatus 为 nil 仅出现在建单时的合成记录上。
type StatusHistory struct {
	ID         int64
	OrderID    string
	FromStatus *Status
	ToStatus   Status
	Note       string
	ActorRole  Role
	CreatedAt  time.Time
}

// Order 是订单聚合的根实体。
// 状态只能通过 Transition Executor 变更；金额字段在下单后不可变。
type Order struct {
	ID          string
	OrderNumber string // 面向用户的订单号，建单时分配，全局唯一，不可变
	UserID      string

	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus

	// LockedUntil 只在 PENDING_PAYMENT 状态下非空，是支付截止时间。
	// 离开该状态的任何流转都会清空它。
	LockedUntil *time.Time

	// LoyaltyPointsEarned 最多被设置一次，是积分累计的幂等闸门。
	LoyaltyPointsEarned *int64

	TotalAmount     int64 // VND
	Subtotal        int64
	DiscountAmount  int64
	LoyaltyDiscount int64
	ShippingFee     int64

	Items   []OrderItem
	History []StatusHistory

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder 建单工厂。订单以 PENDING_PAYMENT 状态诞生，
// 带一条 FromStatus 为空的合成历史记录和一个新的支付时限。
func NewOrder(userID string, method PaymentMethod, items []OrderItem, subtotal, discount, loyaltyDiscount, shippingFee int64, paymentWindow time.Duration, now time.Time) (*Order, error) {
	if userID == "" || len(items) == 0 {
		return nil, errors.New("cannot create order with empty required fields")
	}
	switch method {
	case PaymentCOD, PaymentVNPay, PaymentBankTransfer:
	default:
		return nil, fmt.Errorf("unknown payment method %q", method)
	}

	id := uuid.New().String()
	lockedUntil := now.Add(paymentWindow)

	o := &Order{
		ID:              id,
		OrderNumber:     newOrderNumber(now),
		UserID:          userID,
		Status:          StatusPendingPayment,
		PaymentMethod:   method,
		PaymentStatus:   PaymentUnpaid,
		LockedUntil:     &lockedUntil,
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		LoyaltyDiscount: loyaltyDiscount,
		ShippingFee:     shippingFee,
		TotalAmount:     subtotal - discount - loyaltyDiscount + shippingFee,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.History = []StatusHistory{{
		OrderID:   id,
		ToStatus:  StatusPendingPayment,
		Note:      "order placed",
		ActorRole: RoleSystem,
		CreatedAt: now,
	}}
	return o, nil
}

// newOrderNumber 生成面向用户的订单号，例如 ATL-20260830-1A2B3C。
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("ATL-%s-%s", now.Format("20060102"), suffix)
}

// DeliveredAt 返回订单最近一次进入 DELIVERED 的时间，用于退款窗口判断。
func (o *Order) DeliveredAt() (time.Time, bool) {
	for i := len(o.History) - 1; i >= 0; i-- {
		if o.History[i].ToStatus == StatusDelivered {
			return o.History[i].CreatedAt, true
		}
	}
	return time.Time{}, false
}

// PaymentAttempts 统计订单进入 PENDING_PAYMENT 的次数（含建单那一次）。
func (o *Order) PaymentAttempts() int {
	n := 0
	for _, h := range o.History {
		if h.ToStatus == StatusPendingPayment {
			n++
		}
	}
	return n
}
