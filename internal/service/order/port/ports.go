package port

import "context"

// PaymentDeduper 对支付回调按 transactionRef 去重。
// FirstSeen 返回 true 表示首次见到该流水号，应当继续处理。
type PaymentDeduper interface {
	FirstSeen(ctx context.Context, transactionRef string) (bool, error)
}
