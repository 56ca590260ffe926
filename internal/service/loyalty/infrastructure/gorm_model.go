package infrastructure

import "time"

// UserModel 对应 users 表中积分相关的列。
type UserModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	PointBalance int64
	TierID       *int64 `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 指定 GORM 应该使用的表名
func (UserModel) TableName() string {
	return "users"
}

// MemberTierModel 对应 member_tiers 表。
type MemberTierModel struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	Name            string `gorm:"size:32;uniqueIndex"`
	MinPoints       int64  `gorm:"index"`
	DiscountPercent float64
	PointMultiplier float64
}

func (MemberTierModel) TableName() string {
	return "member_tiers"
}

// orderAccrualModel 是 orders 表上积分累计所需列的投影。
// 表结构归订单服务所有，这里只读写 loyalty_points_earned 一列。
type orderAccrualModel struct {
	ID                  string `gorm:"primaryKey;size:36"`
	UserID              string
	TotalAmount         int64
	LoyaltyPointsEarned *int64
}

func (orderAccrualModel) TableName() string {
	return "orders"
}
