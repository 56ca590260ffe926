package scheduler

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
	"atelier/internal/service/order/application"
	"atelier/internal/service/order/domain"
)

// Sweeper 负责支付超时的强制取消。它周期性地从持久化状态里
// 找出 lockedUntil 已过期的待支付订单，以 SYSTEM 身份请求取消。
// 截止时间永远来自数据库，不依赖任何进程内定时器，重启无影响。
type Sweeper struct {
	repo      domain.OrderRepository
	lifecycle *application.LifecycleService
	tracer    trace.Tracer
	batchSize int
	now       func() time.Time
}

// NewSweeper 创建清扫器。
func NewSweeper(repo domain.OrderRepository, lifecycle *application.LifecycleService, tracer trace.Tracer) *Sweeper {
	return &Sweeper{
		repo:      repo,
		lifecycle: lifecycle,
		tracer:    tracer,
		batchSize: 200,
		now:       time.Now,
	}
}

// Sweep 执行一轮清扫，返回成功取消的订单数。
// 取消走与人工操作完全相同的 compare-and-set 路径：
// 如果支付回调抢先赢得竞争，这里拿到的过期读取会无害地失败，
// 绝不会把已离开 PENDING_PAYMENT 的订单再取消一次。
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.Sweep")
	defer span.End()

	expired, err := s.repo.FindExpiredPendingPayment(ctx, s.now(), s.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("sweep.candidates", len(expired)))

	cancelled := 0
	for _, order := range expired {
		_, err := s.lifecycle.RequestTransition(ctx, order.ID, domain.StatusCancelled, domain.RoleSystem, "payment window expired")
		switch {
		case err == nil:
			cancelled++
			metrics.SweepCancelledTotal.Inc()
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition),
			errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrNotFound):
			// 订单已被支付回调或人工操作拿走，例如已进入 PENDING_CONFIRMATION，跳过即可
			metrics.SweepLostRacesTotal.Inc()
			logger.Ctx(ctx).Debug().Err(err).Str("order_id", order.ID).Msg("sweep lost race, skipping")
		default:
			logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("sweep cancellation failed")
		}
	}

	logger.Ctx(ctx).Info().Int("candidates", len(expired)).Int("cancelled", cancelled).Msg("payment deadline sweep finished")
	return cancelled, nil
}

// Run 以固定周期执行清扫，阻塞直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Dur("interval", interval).Msg("deadline sweeper started")
	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("sweep round failed")
			}
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("deadline sweeper stopped")
			return
		}
	}
}
