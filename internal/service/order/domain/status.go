package domain

import "fmt"

// Status 定义了订单生命周期中的状态。
type Status string

const (
	StatusPendingPayment      Status = "PENDING_PAYMENT"      // 等待支付，带支付时限
	StatusProcessingFailed    Status = "PROCESSING_FAILED"    // 支付失败，可重试
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION" // 已支付，等待销售确认
	StatusPreparing           Status = "PREPARING"            // 仓库备货中
	StatusReadyToShip         Status = "READY_TO_SHIP"        // 备货完成，等待揽收
	StatusInTransit           Status = "IN_TRANSIT"           // 运输中
	StatusOutForDelivery      Status = "OUT_FOR_DELIVERY"     // 派送中
	StatusDeliveryFailed      Status = "DELIVERY_FAILED"      // 派送失败
	StatusReturnedToWarehouse Status = "RETURNED_TO_WAREHOUSE"
	StatusDelivered           Status = "DELIVERED" // 已送达，等待客户确认收货
	StatusRefundRequested     Status = "REFUND_REQUESTED"
	StatusRefunding           Status = "REFUNDING"
	StatusRefunded            Status = "REFUNDED"
	StatusRefundConfirmed     Status = "REFUND_CONFIRMED" // 客户确认收到退款
	StatusCompleted           Status = "COMPLETED"
	StatusCancelled           Status = "CANCELLED"
)

// AllStatuses 按声明顺序列出全部十六个状态。
var AllStatuses = []Status{
	StatusPendingPayment, StatusProcessingFailed, StatusPendingConfirmation,
	StatusPreparing, StatusReadyToShip, StatusInTransit, StatusOutForDelivery,
	StatusDeliveryFailed, StatusReturnedToWarehouse, StatusDelivered,
	StatusRefundRequested, StatusRefunding, StatusRefunded,
	StatusRefundConfirmed, StatusCompleted, StatusCancelled,
}

// terminalStatuses 是没有任何出边的状态。进入后订单不可再变更。
var terminalStatuses = map[Status]bool{
	StatusCancelled:           true,
	StatusCompleted:           true,
	StatusRefundConfirmed:     true,
	StatusReturnedToWarehouse: true,
}

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// ParseStatus 校验外部输入的状态字符串。
func ParseStatus(raw string) (Status, error) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}
