package infrastructure

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
)

// OutboxRelay 把事务内写入 outbox 的事件投递到 Kafka。
// 投递语义是 at-least-once：只有写入 Kafka 成功才标记 sent_at，
// 失败的行留到下一轮重试，已提交的流转因此不可能静默丢失事件。
type OutboxRelay struct {
	db       *gorm.DB
	writer   *kafka.Writer
	interval time.Duration
	batch    int
}

// NewOutboxRelay 创建一个 relay。writer 必须指向 OrderEventsTopic。
func NewOutboxRelay(db *gorm.DB, writer *kafka.Writer) *OutboxRelay {
	return &OutboxRelay{
		db:       db,
		writer:   writer,
		interval: time.Second,
		batch:    100,
	}
}

// Start 启动轮询投递循环，阻塞直到 ctx 取消。
func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Dur("interval", r.interval).Msg("outbox relay started")
	for {
		select {
		case <-ticker.C:
			r.drain(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("outbox relay stopped")
			return
		}
	}
}

// drain 投递一批待发送的事件。
func (r *OutboxRelay) drain(ctx context.Context) {
	var pending []OutboxModel
	err := r.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("id ASC").
		Limit(r.batch).
		Find(&pending).Error
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("outbox relay: fetch pending failed")
		return
	}

	for i := range pending {
		rec := &pending[i]
		if err := mq.ProduceMessage(ctx, r.writer, []byte(rec.Key), rec.Payload); err != nil {
			// 投递失败不标记，留到下一轮重试，保持按 id 的投递顺序
			logger.Ctx(ctx).Error().Err(err).Int64("outbox_id", rec.ID).Msg("outbox relay: publish failed")
			return
		}
		now := time.Now()
		if err := r.db.WithContext(ctx).Model(&OutboxModel{}).
			Where("id = ?", rec.ID).
			Update("sent_at", now).Error; err != nil {
			// 标记失败会导致这条事件重复投递，消费方需要幂等
			logger.Ctx(ctx).Error().Err(err).Int64("outbox_id", rec.ID).Msg("outbox relay: mark sent failed")
			return
		}
	}
}
