package notification

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
)

// Consumer 监听订单事件流并把每条事件交给 Hub 分发。
// 推送是尽力而为的，事件即使没有任何在线订阅者也照常提交。
type Consumer struct {
	reader  *kafka.Reader
	hub     *Hub
	wg      sync.WaitGroup
	stopped bool
}

// NewConsumer 创建消费者。
func NewConsumer(reader *kafka.Reader, hub *Hub) *Consumer {
	return &Consumer{reader: reader, hub: hub}
}

// Start 开始监听订单事件主题。这是一个长期运行的方法。
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("notification consumer started")
		for {
			if c.stopped {
				return
			}
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("notification consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("fetch message failed, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			logger.Ctx(msgCtx).Debug().Str("key", string(msg.Key)).Msg("dispatching status event")
			c.hub.Broadcast(msg.Value)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit offset failed")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (c *Consumer) Stop(ctx context.Context) {
	c.stopped = true
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Info().Msg("notification consumer stopped")
}
