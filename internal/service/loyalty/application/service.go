package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
	"atelier/internal/service/loyalty/domain"
)

// AccrualService 在订单进入 COMPLETED 后执行积分累计和等级重算。
// 整个过程是幂等的：订单上的 PointsEarned 在设置积分的同一个事务里
// 充当闸门，事件重复投递或对账任务重跑都不会重复记账。
type AccrualService struct {
	repo   domain.Repository
	tracer trace.Tracer
}

// NewAccrualService 创建积分累计服务。
func NewAccrualService(repo domain.Repository, tracer trace.Tracer) *AccrualService {
	return &AccrualService{repo: repo, tracer: tracer}
}

// OnOrderCompleted 对单个已完成订单执行累计。
// 算法：基础积分 = floor(totalAmount / 10,000)，乘以用户当前等级的倍率；
// 入账后按新余额重算等级，只升不降。
func (s *AccrualService) OnOrderCompleted(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "loyalty.OnOrderCompleted", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	tiers, err := s.repo.ListTiers(ctx)
	if err != nil {
		metrics.LoyaltyAccrualsTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "list member tiers")
	}

	err = s.repo.WithinTx(ctx, func(tx domain.TxRepository) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PointsEarned != nil {
			// 幂等闸门：这笔订单已经累计过
			span.AddEvent("accrual already applied")
			metrics.LoyaltyAccrualsTotal.WithLabelValues("already_applied").Inc()
			return nil
		}

		user, err := tx.UserForUpdate(ctx, order.UserID)
		if err != nil {
			return err
		}

		multiplier := 1.0
		current := findTier(tiers, user.TierID)
		if current != nil {
			multiplier = current.PointMultiplier
		}

		points := domain.PointsFor(order.TotalAmount, multiplier)
		if err := tx.SetOrderPointsEarned(ctx, orderID, points); err != nil {
			return err
		}

		user.PointBalance += points
		// 等级只升不降：新等级门槛低于当前等级时保持不变
		if next := domain.TierFor(tiers, user.PointBalance); next != nil {
			if current == nil || next.MinPoints >= current.MinPoints {
				user.TierID = &next.ID
			}
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}

		span.SetAttributes(
			attribute.Int64("loyalty.points", points),
			attribute.Int64("loyalty.balance", user.PointBalance),
		)
		logger.Ctx(ctx).Info().
			Str("order_id", orderID).
			Str("user_id", user.UserID).
			Int64("points", points).
			Int64("balance", user.PointBalance).
			Msg("loyalty points accrued")
		metrics.LoyaltyAccrualsTotal.WithLabelValues("applied").Inc()
		return nil
	})
	if err != nil {
		metrics.LoyaltyAccrualsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
	}
	return err
}

func findTier(tiers []domain.MemberTier, id *int64) *domain.MemberTier {
	if id == nil {
		return nil
	}
	for i := range tiers {
		if tiers[i].ID == *id {
			return &tiers[i]
		}
	}
	return nil
}
