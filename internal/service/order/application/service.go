package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
	"atelier/internal/service/order/domain"
	"atelier/internal/service/order/port"
)

// Policy 聚合了生命周期编排的可配置策略参数。
type Policy struct {
	// PaymentWindow 是 PENDING_PAYMENT 的支付时限。
	PaymentWindow time.Duration
	// RefundWindow 是 DELIVERED 之后允许申请退款的窗口。
	RefundWindow time.Duration
	// MaxPaymentRetries 限制支付失败后的重试次数。
	MaxPaymentRetries int
}

// LifecycleService 是流转执行器（Transition Executor）。
// 所有订单状态变更，无论来自管理后台、客户自助操作、支付回调
// 还是超时清扫，都必须经过这里。
type LifecycleService struct {
	repo    domain.OrderRepository
	deduper port.PaymentDeduper
	policy  Policy
	tracer  trace.Tracer
	now     func() time.Time
}

// NewLifecycleService 组装流转执行器。
func NewLifecycleService(repo domain.OrderRepository, deduper port.PaymentDeduper, policy Policy, tracer trace.Tracer) *LifecycleService {
	return &LifecycleService{
		repo:    repo,
		deduper: deduper,
		policy:  policy,
		tracer:  tracer,
		now:     time.Now,
	}
}

// PlaceOrder 建单。订单以 PENDING_PAYMENT 状态诞生，
// 支付时限由策略参数决定。
func (s *LifecycleService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Price:       it.Price,
			Quantity:    it.Quantity,
		})
	}

	order, err := domain.NewOrder(req.UserID, domain.PaymentMethod(req.PaymentMethod), items,
		req.Subtotal, req.DiscountAmount, req.LoyaltyDiscount, req.ShippingFee,
		s.policy.PaymentWindow, s.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist new order")
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.number", order.OrderNumber))
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Msg("order placed, awaiting payment")

	return &PlaceOrderResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		LockedUntil: *order.LockedUntil,
		TotalAmount: order.TotalAmount,
	}, nil
}

// RequestTransition 请求一次状态流转。算法：
//
//  1. 读出订单当前状态；
//  2. 边不在状态机中 -> ErrInvalidTransition，无任何写入；
//  3. 人工边做角色校验，失败 -> ErrForbidden；
//  4. compare-and-set 持久化（状态 + 历史记录 + 附带字段同一事务）；
//     输掉竞争则带新状态重读重试一次，仍失败 -> ErrConflict；
//  5. 事件随事务写入 outbox，由 relay 异步投递，不阻塞调用方。
//
// 客户的"确认"动作（确认收货 / 确认收到退款）也走同一条路径，
// 只按图上实际存在的边解析，不按业务含义分支。
func (s *LifecycleService) RequestTransition(ctx context.Context, orderID string, target domain.Status, actor domain.Role, note string) (*domain.StatusHistory, error) {
	ctx, span := s.tracer.Start(ctx, "order.RequestTransition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("transition.target", string(target)),
		attribute.String("transition.actor", string(actor)),
	))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			s.countOutcome(span, "", target, err)
			return nil, err
		}
		from := order.Status

		if _, ok := domain.LegalEdge(from, target); !ok {
			err := domain.NewInvalidTransition(from, target)
			s.countOutcome(span, from, target, err)
			return nil, err
		}

		if !domain.MayTransition(actor, from, target) {
			err := domain.NewForbidden(actor, from, target)
			s.countOutcome(span, from, target, err)
			return nil, err
		}

		if err := s.checkPolicyGuards(order, target); err != nil {
			s.countOutcome(span, from, target, err)
			return nil, err
		}

		hist, err := s.repo.ApplyTransition(ctx, orderID, from, target, actor, note, s.stateUpdates(order, target), s.now())
		if errors.Is(err, domain.ErrConflict) {
			// 输掉了一次 CAS 竞争，用新读取的状态重试一次
			span.AddEvent("transition lost compare-and-set race", trace.WithAttributes(attribute.Int("attempt", attempt)))
			lastErr = err
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transition persistence failed")
			metrics.TransitionsTotal.WithLabelValues(string(from), string(target), "error").Inc()
			return nil, err
		}

		metrics.TransitionsTotal.WithLabelValues(string(from), string(target), "success").Inc()
		logger.Ctx(ctx).Info().
			Str("order_id", orderID).
			Str("from", string(from)).
			Str("to", string(target)).
			Str("actor", string(actor)).
			Msg("order transition applied")
		return hist, nil
	}

	metrics.TransitionsTotal.WithLabelValues("", string(target), "conflict").Inc()
	return nil, fmt.Errorf("%w: order %s", lastErr, orderID)
}

// checkPolicyGuards 应用时间/次数类守卫。守卫不通过时这条边视同不存在。
func (s *LifecycleService) checkPolicyGuards(order *domain.Order, target domain.Status) error {
	if order.Status == domain.StatusDelivered && target == domain.StatusRefundRequested {
		deliveredAt, ok := order.DeliveredAt()
		if ok && s.now().After(deliveredAt.Add(s.policy.RefundWindow)) {
			return fmt.Errorf("%w: refund window expired for order %s", domain.ErrInvalidTransition, order.ID)
		}
	}
	if order.Status == domain.StatusProcessingFailed && target == domain.StatusPendingPayment {
		// 历史中的首次进入不算重试
		if order.PaymentAttempts()-1 >= s.policy.MaxPaymentRetries {
			return fmt.Errorf("%w: payment retry limit reached for order %s", domain.ErrInvalidTransition, order.ID)
		}
	}
	return nil
}

// stateUpdates 计算随本次流转一起落库的附带字段变更。
func (s *LifecycleService) stateUpdates(order *domain.Order, target domain.Status) domain.StateUpdates {
	var u domain.StateUpdates

	if order.Status == domain.StatusPendingPayment {
		u.ClearLockedUntil = true
	}
	switch target {
	case domain.StatusPendingPayment:
		// 重试支付给一个全新的时限
		deadline := s.now().Add(s.policy.PaymentWindow)
		u.SetLockedUntil = &deadline
		u.ClearLockedUntil = false
		ps := domain.PaymentPending
		u.SetPaymentStatus = &ps
	case domain.StatusPendingConfirmation:
		ps := domain.PaymentPaid
		u.SetPaymentStatus = &ps
	case domain.StatusProcessingFailed:
		ps := domain.PaymentFailed
		u.SetPaymentStatus = &ps
	case domain.StatusRefunded:
		ps := domain.PaymentRefunded
		u.SetPaymentStatus = &ps
	case domain.StatusDelivered:
		// COD 在妥投时由仓库确认收款
		if order.PaymentMethod == domain.PaymentCOD {
			ps := domain.PaymentPaid
			u.SetPaymentStatus = &ps
		}
	}
	return u
}

// NextLegalStatuses 返回某角色在该订单上可请求的目标状态，
// 严格由状态机和权限表推导，供后台界面渲染可用按钮。
func (s *LifecycleService) NextLegalStatuses(ctx context.Context, orderID string, role domain.Role) ([]domain.Status, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return domain.NextStatusesFor(role, order.Status), nil
}

// PaymentCountdown 是支付倒计时的纯读取，不做任何状态变更。
// 权威性始终在服务端的超时清扫，客户端倒计时归零只应触发重新拉取。
func (s *LifecycleService) PaymentCountdown(ctx context.Context, orderID string) (*CountdownResponse, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	resp := &CountdownResponse{OrderID: order.ID, Status: order.Status, LockedUntil: order.LockedUntil}
	if order.Status == domain.StatusPendingPayment && order.LockedUntil != nil {
		if remaining := order.LockedUntil.Sub(s.now()); remaining > 0 {
			resp.RemainingSeconds = int64(remaining.Seconds())
		}
	}
	return resp, nil
}

// HandlePaymentOutcome 消费支付服务发来的已验证结果信号。
// 按 transactionRef 去重后，以 SYSTEM 身份请求对应的系统边。
// 对已离开 PENDING_PAYMENT 的订单（例如已被超时取消），
// 迟到的回调会得到 ErrInvalidTransition，这正是期望的拒绝。
func (s *LifecycleService) HandlePaymentOutcome(ctx context.Context, outcome *domain.PaymentOutcome) (*domain.StatusHistory, error) {
	ctx, span := s.tracer.Start(ctx, "order.HandlePaymentOutcome", trace.WithAttributes(
		attribute.String("order.id", outcome.OrderID),
		attribute.String("payment.outcome", string(outcome.Outcome)),
	))
	defer span.End()

	if outcome.TransactionRef != "" && s.deduper != nil {
		first, err := s.deduper.FirstSeen(ctx, outcome.TransactionRef)
		if err != nil {
			// 去重存储不可用时放行，CAS 本身仍能挡住重复流转
			logger.Ctx(ctx).Warn().Err(err).Msg("payment dedupe check failed, proceeding")
		} else if !first {
			span.AddEvent("duplicate payment callback ignored")
			logger.Ctx(ctx).Info().
				Str("transaction_ref", outcome.TransactionRef).
				Msg("duplicate payment callback ignored")
			return nil, nil
		}
	}

	target := domain.StatusPendingConfirmation
	if outcome.Outcome == domain.PaymentOutcomeFailure {
		target = domain.StatusProcessingFailed
	}
	note := fmt.Sprintf("payment gateway callback, txn %s", outcome.TransactionRef)
	return s.RequestTransition(ctx, outcome.OrderID, target, domain.RoleSystem, note)
}

// countOutcome 统一上报失败类指标并在 span 上留痕。
func (s *LifecycleService) countOutcome(span trace.Span, from, to domain.Status, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		outcome = "invalid_transition"
	case errors.Is(err, domain.ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrConflict):
		outcome = "conflict"
	}
	metrics.TransitionsTotal.WithLabelValues(string(from), string(to), outcome).Inc()
	span.SetStatus(codes.Error, outcome)
}
