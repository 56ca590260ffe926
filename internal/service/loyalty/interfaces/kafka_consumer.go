package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/loyalty/application"
)

// orderStatusChanged 是订单事件流中本服务关心的字段子集。
type orderStatusChanged struct {
	OrderID  string `json:"orderId"`
	UserID   string `json:"userId"`
	ToStatus string `json:"toStatus"`
}

// OrderEventsConsumer 是驱动适配器，监听订单事件流并在订单完成时
// 触发积分累计。事件流是 at-least-once 的，幂等性由应用层保证。
type OrderEventsConsumer struct {
	reader  *kafka.Reader
	accrual *application.AccrualService
	wg      sync.WaitGroup
	stopped bool
}

// NewOrderEventsConsumer 创建消费者适配器。
func NewOrderEventsConsumer(reader *kafka.Reader, accrual *application.AccrualService) *OrderEventsConsumer {
	return &OrderEventsConsumer{reader: reader, accrual: accrual}
}

// Start 开始监听订单事件主题。这是一个长期运行的方法。
func (c *OrderEventsConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("loyalty consumer started")
		for {
			if c.stopped {
				return
			}
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("loyalty consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("fetch message failed, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			c.processMessage(msgCtx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit offset failed")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (c *OrderEventsConsumer) Stop(ctx context.Context) {
	c.stopped = true
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Info().Msg("loyalty consumer stopped")
}

// processMessage 过滤出 COMPLETED 事件并触发累计。
// 累计失败不提交会导致整个分区卡住，所以这里先重试一次，
// 仍失败则记录错误后放行，依靠幂等闸门在对账时补偿。
func (c *OrderEventsConsumer) processMessage(ctx context.Context, msg kafka.Message) {
	var event orderStatusChanged
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("unmarshal order event failed, skipping")
		return
	}
	if event.ToStatus != "COMPLETED" {
		return
	}

	err := c.accrual.OnOrderCompleted(ctx, event.OrderID)
	if err != nil {
		time.Sleep(500 * time.Millisecond)
		err = c.accrual.OnOrderCompleted(ctx, event.OrderID)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", event.OrderID).
			Str("user_id", event.UserID).
			Msg("loyalty accrual failed after retry")
	}
}
