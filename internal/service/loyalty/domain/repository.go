package domain

import "context"

// OrderAccrual 是积分累计所需的订单视图。
// PointsEarned 非空表示该订单已经累计过，是幂等闸门。
type OrderAccrual struct {
	OrderID      string
	UserID       string
	TotalAmount  int64
	PointsEarned *int64
}

// UserLoyalty 是用户的积分账户。TierID 为空表示尚未达到任何等级。
type UserLoyalty struct {
	UserID       string
	PointBalance int64
	TierID       *int64
}

// TxRepository 是单个事务作用域内的操作集合。
type TxRepository interface {
	// OrderForUpdate 用行锁读取订单的积分视图。
	OrderForUpdate(ctx context.Context, orderID string) (*OrderAccrual, error)
	// SetOrderPointsEarned 设置订单的已得积分，仅当此前为空时生效。
	SetOrderPointsEarned(ctx context.Context, orderID string, points int64) error
	// UserForUpdate 用行锁读取用户积分账户，不存在时初始化一条。
	UserForUpdate(ctx context.Context, userID string) (*UserLoyalty, error)
	// SaveUser 写回积分余额和等级。
	SaveUser(ctx context.Context, user *UserLoyalty) error
}

// Repository 定义了积分侧的持久化接口。
type Repository interface {
	// WithinTx 在单个数据库事务中执行 fn，fn 返回错误则整体回滚。
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error
	// ListTiers 返回按 MinPoints 升序排列的全部会员等级。
	ListTiers(ctx context.Context) ([]MemberTier, error)
}
