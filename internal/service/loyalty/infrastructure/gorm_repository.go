package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atelier/internal/service/loyalty/domain"
)

// GormLoyaltyRepository 是基于 GORM 的积分侧持久化实现。
// 订单表由订单服务负责迁移，这里只迁移自己拥有的表。
type GormLoyaltyRepository struct {
	db *gorm.DB
}

// NewGormLoyaltyRepository 创建仓储实例。
func NewGormLoyaltyRepository(db *gorm.DB) *GormLoyaltyRepository {
	return &GormLoyaltyRepository{db: db}
}

// AutoMigrate 创建积分侧自己拥有的表。
func (r *GormLoyaltyRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&UserModel{}, &MemberTierModel{})
}

// WithinTx 在单个数据库事务中执行 fn。
func (r *GormLoyaltyRepository) WithinTx(ctx context.Context, fn func(tx domain.TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTxRepository{tx: tx})
	})
}

// ListTiers 返回按 MinPoints 升序排列的全部会员等级。
func (r *GormLoyaltyRepository) ListTiers(ctx context.Context) ([]domain.MemberTier, error) {
	var models []MemberTierModel
	if err := r.db.WithContext(ctx).Order("min_points ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list member tiers")
	}
	tiers := make([]domain.MemberTier, 0, len(models))
	for _, m := range models {
		tiers = append(tiers, domain.MemberTier{
			ID:              m.ID,
			Name:            m.Name,
			MinPoints:       m.MinPoints,
			DiscountPercent: m.DiscountPercent,
			PointMultiplier: m.PointMultiplier,
		})
	}
	return tiers, nil
}

// SeedTiers 批量写入等级，仅用于初始化空表。
func (r *GormLoyaltyRepository) SeedTiers(tiers []MemberTierModel) error {
	return errors.Wrap(r.db.Create(&tiers).Error, "seed member tiers")
}

type gormTxRepository struct {
	tx *gorm.DB
}

func (r *gormTxRepository) OrderForUpdate(ctx context.Context, orderID string) (*domain.OrderAccrual, error) {
	var m orderAccrualModel
	err := r.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Errorf("order %s not found", orderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock order for accrual")
	}
	return &domain.OrderAccrual{
		OrderID:      m.ID,
		UserID:       m.UserID,
		TotalAmount:  m.TotalAmount,
		PointsEarned: m.LoyaltyPointsEarned,
	}, nil
}

func (r *gormTxRepository) SetOrderPointsEarned(ctx context.Context, orderID string, points int64) error {
	// 双重保险：行锁之外再用 IS NULL 条件挡住并发写入
	res := r.tx.WithContext(ctx).Model(&orderAccrualModel{}).
		Where("id = ? AND loyalty_points_earned IS NULL", orderID).
		Update("loyalty_points_earned", points)
	if res.Error != nil {
		return errors.Wrap(res.Error, "set order points earned")
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("order %s already accrued", orderID)
	}
	return nil
}

func (r *gormTxRepository) UserForUpdate(ctx context.Context, userID string) (*domain.UserLoyalty, error) {
	var m UserModel
	err := r.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = UserModel{ID: userID}
		if err := r.tx.WithContext(ctx).Create(&m).Error; err != nil {
			return nil, errors.Wrap(err, "init loyalty account")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "lock loyalty account")
	}
	return &domain.UserLoyalty{
		UserID:       m.ID,
		PointBalance: m.PointBalance,
		TierID:       m.TierID,
	}, nil
}

func (r *gormTxRepository) SaveUser(ctx context.Context, user *domain.UserLoyalty) error {
	err := r.tx.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", user.UserID).
		Updates(map[string]interface{}{
			"point_balance": user.PointBalance,
			"tier_id":       user.TierID,
		}).Error
	return errors.Wrap(err, "save loyalty account")
}
