package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atelier/internal/service/order/domain"
)

// OrderEventsTopic 是订单流转事件的 Kafka 主题。
const OrderEventsTopic = "order-events"

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例。
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// AutoMigrate 建表。仅用于开发和测试环境，生产用迁移脚本。
func (r *GormOrderRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &StatusHistoryModel{}, &OutboxModel{})
}

// Create 在一个事务里持久化订单、商品快照、建单历史记录和建单事件。
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := fromDomainOrder(order)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}
		payload, err := json.Marshal(&domain.OrderStatusChanged{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			ToStatus:    order.Status,
			ActorRole:   domain.RoleSystem,
			Note:        "order placed",
			OccurredAt:  order.CreatedAt,
		})
		if err != nil {
			return errors.Wrap(err, "marshal creation event")
		}
		return errors.Wrap(r.appendOutbox(tx, order.ID, payload, order.CreatedAt), "enqueue creation event")
	})
}

// FindByID 加载订单聚合，历史记录按写入顺序排列。
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "query order")
	}
	return toDomainOrder(&model), nil
}

// ApplyTransition 以 compare-and-set 语义执行一次流转。
// UPDATE ... WHERE id = ? AND status = ? 影响 0 行即输掉竞争，
// 整个事务回滚，不会留下半套写入。
func (r *GormOrderRepository) ApplyTransition(ctx context.Context, orderID string, expected, target domain.Status, actor domain.Role, note string, updates domain.StateUpdates, at time.Time) (*domain.StatusHistory, error) {
	var hist *domain.StatusHistory

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"status":     string(target),
			"updated_at": at,
		}
		if updates.ClearLockedUntil {
			fields["locked_until"] = nil
		}
		if updates.SetLockedUntil != nil {
			fields["locked_until"] = *updates.SetLockedUntil
		}
		if updates.SetPaymentStatus != nil {
			fields["payment_status"] = string(*updates.SetPaymentStatus)
		}

		res := tx.Model(&OrderModel{}).
			Where("id = ? AND status = ?", orderID, string(expected)).
			Updates(fields)
		if res.Error != nil {
			return errors.Wrap(res.Error, "compare-and-set order status")
		}
		if res.RowsAffected == 0 {
			// 调用方在同一轮里刚读过订单，影响 0 行意味着状态已被并发方改走
			return domain.ErrConflict
		}

		from := string(expected)
		hm := StatusHistoryModel{
			OrderID:    orderID,
			FromStatus: &from,
			ToStatus:   string(target),
			Note:       note,
			ActorRole:  string(actor),
			CreatedAt:  at,
		}
		if err := tx.Create(&hm).Error; err != nil {
			return errors.Wrap(err, "append status history")
		}

		var om OrderModel
		if err := tx.Select("order_number", "user_id").First(&om, "id = ?", orderID).Error; err != nil {
			return errors.Wrap(err, "load order for event")
		}
		fromStatus := expected
		payload, err := json.Marshal(&domain.OrderStatusChanged{
			OrderID:     orderID,
			OrderNumber: om.OrderNumber,
			UserID:      om.UserID,
			FromStatus:  &fromStatus,
			ToStatus:    target,
			ActorRole:   actor,
			Note:        note,
			OccurredAt:  at,
		})
		if err != nil {
			return errors.Wrap(err, "marshal transition event")
		}
		if err := r.appendOutbox(tx, orderID, payload, at); err != nil {
			return errors.Wrap(err, "enqueue transition event")
		}

		hist = toDomainHistory(&hm)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hist, nil
}

// FindExpiredPendingPayment 找出支付时限已过的待支付订单。
// 清扫任务只需要 ID 和状态，这里不加载关联数据。
func (r *GormOrderRepository) FindExpiredPendingPayment(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND locked_until IS NOT NULL AND locked_until < ?", string(domain.StatusPendingPayment), now).
		Order("locked_until ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "query expired pending-payment orders")
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomainOrder(&models[i]))
	}
	return out, nil
}

func (r *GormOrderRepository) appendOutbox(tx *gorm.DB, key string, payload []byte, at time.Time) error {
	return tx.Create(&OutboxModel{
		EventID:   uuid.New().String(),
		Topic:     OrderEventsTopic,
		Key:       key,
		Payload:   payload,
		CreatedAt: at,
	}).Error
}
