package adapter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "payment:txn:"

// RedisPaymentDeduper 用 SETNX 对支付回调的 transactionRef 去重。
// 实现了 port.PaymentDeduper。
type RedisPaymentDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPaymentDeduper 创建去重适配器。ttl 覆盖网关可能的重发周期。
func NewRedisPaymentDeduper(client *redis.Client) *RedisPaymentDeduper {
	return &RedisPaymentDeduper{
		client: client,
		ttl:    24 * time.Hour,
	}
}

// FirstSeen 返回 true 表示首次见到该流水号。
func (d *RedisPaymentDeduper) FirstSeen(ctx context.Context, transactionRef string) (bool, error) {
	return d.client.SetNX(ctx, dedupeKeyPrefix+transactionRef, 1, d.ttl).Result()
}
