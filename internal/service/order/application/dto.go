package application

import (
	"time"

	"atelier/internal/service/order/domain"
)

// PlaceOrderRequest 是下单接口的入参。商品快照由购物车/目录服务
// 在调用前组装好，这里原样冻结。
type PlaceOrderRequest struct {
	UserID          string           `json:"userId"`
	PaymentMethod   string           `json:"paymentMethod"`
	Items           []PlaceOrderItem `json:"items"`
	Subtotal        int64            `json:"subtotal"`
	DiscountAmount  int64            `json:"discountAmount"`
	LoyaltyDiscount int64            `json:"loyaltyDiscount"`
	ShippingFee     int64            `json:"shippingFee"`
}

// PlaceOrderItem 是一条下单商品快照。
type PlaceOrderItem struct {
	ProductName string `json:"productName"`
	SKU         string `json:"sku"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
}

// PlaceOrderResponse 返回给客户端的建单结果。
type PlaceOrderResponse struct {
	OrderID     string        `json:"orderId"`
	OrderNumber string        `json:"orderNumber"`
	Status      domain.Status `json:"status"`
	LockedUntil time.Time     `json:"lockedUntil"`
	TotalAmount int64         `json:"totalAmount"`
}

// TransitionRequest 是统一的流转请求入参。
type TransitionRequest struct {
	OrderID string `json:"orderId"`
	Target  string `json:"target"`
	Note    string `json:"note,omitempty"`
}

// TransitionResponse 把新追加的审计记录返回给调用方。
type TransitionResponse struct {
	OrderID    string         `json:"orderId"`
	FromStatus *domain.Status `json:"fromStatus"`
	ToStatus   domain.Status  `json:"toStatus"`
	ActorRole  domain.Role    `json:"actorRole"`
	Note       string         `json:"note,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// CountdownResponse 是支付倒计时的只读视图。
// 它纯粹是 lockedUntil - now 的展示，不做任何状态变更；
// 倒计时归零只是提示客户端重新拉取权威状态。
type CountdownResponse struct {
	OrderID          string        `json:"orderId"`
	Status           domain.Status `json:"status"`
	LockedUntil      *time.Time    `json:"lockedUntil"`
	RemainingSeconds int64         `json:"remainingSeconds"`
}
