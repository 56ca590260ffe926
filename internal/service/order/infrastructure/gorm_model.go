package infrastructure

import "time"

// OrderModel 对应数据库中的 orders 表。
type OrderModel struct {
	ID                  string     `gorm:"primaryKey;size:36"`
	OrderNumber         string     `gorm:"uniqueIndex;size:32"`
	UserID              string     `gorm:"index;size:36"`
	Status              string     `gorm:"size:32;index"`
	PaymentMethod       string     `gorm:"size:16"`
	PaymentStatus       string     `gorm:"size:16"`
	LockedUntil         *time.Time `gorm:"index"`
	LoyaltyPointsEarned *int64
	TotalAmount         int64
	Subtotal            int64
	DiscountAmount      int64
	LoyaltyDiscount     int64
	ShippingFee         int64
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Items   []OrderItemModel     `gorm:"foreignKey:OrderID"`
	History []StatusHistoryModel `gorm:"foreignKey:OrderID"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应 order_items 表，购买时刻的商品快照。
type OrderItemModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	OrderID     string `gorm:"index;size:36"`
	ProductName string `gorm:"size:255"`
	SKU         string `gorm:"size:64"`
	Price       int64
	Quantity    int
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// StatusHistoryModel 对应 order_status_history 表，只追加不修改。
type StatusHistoryModel struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	OrderID    string  `gorm:"index;size:36"`
	FromStatus *string `gorm:"size:32"` // 建单的合成记录为 NULL
	ToStatus   string  `gorm:"size:32"`
	Note       string  `gorm:"type:text"`
	ActorRole  string  `gorm:"size:16"`
	CreatedAt  time.Time
}

func (StatusHistoryModel) TableName() string {
	return "order_status_history"
}

// OutboxModel 对应 order_outbox 表。事件与触发它的流转在同一个
// 事务里写入，relay 投递成功后填充 sent_at。
type OutboxModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	EventID   string `gorm:"uniqueIndex;size:36"`
	Topic     string `gorm:"size:64"`
	Key       string `gorm:"size:64"`
	Payload   []byte `gorm:"type:json"`
	CreatedAt time.Time
	SentAt    *time.Time `gorm:"index"`
}

func (OutboxModel) TableName() string {
	return "order_outbox"
}
