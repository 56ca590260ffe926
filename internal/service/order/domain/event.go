package domain

import "time"

// OrderStatusChanged 是每次成功流转后发布到事件流的领域事件。
// 下游（积分、通知）各自订阅，投递语义是 at-least-once。
type OrderStatusChanged struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	FromStatus  *Status   `json:"fromStatus"` // 建单的合成记录为 null
	ToStatus    Status    `json:"toStatus"`
	ActorRole   Role      `json:"actorRole"`
	Note        string    `json:"note,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// PaymentOutcomeKind 是支付服务回调的结果类别。
type PaymentOutcomeKind string

const (
	PaymentOutcomeSuccess PaymentOutcomeKind = "SUCCESS"
	PaymentOutcomeFailure PaymentOutcomeKind = "FAILURE"
)

// PaymentOutcome 是支付服务在网关确认后发来的已验证结果信号。
// 签名校验、回调地址等协议细节由支付服务负责，编排器只消费结果。
type PaymentOutcome struct {
	OrderID        string             `json:"orderId"`
	Outcome        PaymentOutcomeKind `json:"outcome"`
	TransactionRef string             `json:"transactionRef"`
}
