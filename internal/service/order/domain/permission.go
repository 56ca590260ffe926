package domain

// Role 是身份服务下发的角色。角色之间没有继承关系，
// 权限是每个角色的显式允许列表。
type Role string

const (
	RoleCustomer     Role = "CUSTOMER"
	RoleSalesStaff   Role = "SALES_STAFF"
	RoleWarehouse    Role = "WAREHOUSE"
	RoleSalesManager Role = "SALES_MANAGER"
	RoleAdmin        Role = "ADMIN"
	// RoleSystem 是非人类发起者（超时清扫、支付回调）在审计记录中的标识。
	RoleSystem Role = "SYSTEM"
)

// ParseRole 校验外部输入的角色字符串。SYSTEM 不接受外部输入。
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleCustomer, RoleSalesStaff, RoleWarehouse, RoleSalesManager, RoleAdmin:
		return Role(raw), true
	}
	return "", false
}

// Capability 是执行某一类人工流转所需的能力。
type Capability string

const (
	CapCancelOrder      Capability = "cancel_order"      // 未发货前取消订单
	CapRetryPayment     Capability = "retry_payment"     // 支付失败后重试
	CapConfirmOrder     Capability = "confirm_order"     // 销售确认订单进入备货
	CapProgressShipment Capability = "progress_shipment" // 仓库推进物流各环节
	CapConfirmDelivery  Capability = "confirm_delivery"  // 仓库确认妥投（含 COD 收款确认）
	CapConfirmReceipt   Capability = "confirm_receipt"   // 客户确认收货 / 确认收到退款
	CapRequestRefund    Capability = "request_refund"    // 客户申请退款
	CapApproveRefund    Capability = "approve_refund"    // 销售主管审批并推进退款
)

// edgeKey 标识状态机中的一条边。
type edgeKey struct {
	from Status
	to   Status
}

// edgeCapabilities 把每条可由人工触发的边映射到恰好一个所需能力。
// 不在此表中的边对人类角色一律不可用（纯系统边）。
var edgeCapabilities = map[edgeKey]Capability{
	{StatusPendingPayment, StatusCancelled}:           CapCancelOrder,
	{StatusProcessingFailed, StatusPendingPayment}:    CapRetryPayment,
	{StatusPendingConfirmation, StatusPreparing}:      CapConfirmOrder,
	{StatusPendingConfirmation, StatusCancelled}:      CapCancelOrder,
	{StatusPreparing, StatusReadyToShip}:              CapProgressShipment,
	{StatusReadyToShip, StatusInTransit}:              CapProgressShipment,
	{StatusInTransit, StatusOutForDelivery}:           CapProgressShipment,
	{StatusOutForDelivery, StatusDelivered}:           CapConfirmDelivery,
	{StatusOutForDelivery, StatusDeliveryFailed}:      CapProgressShipment,
	{StatusDeliveryFailed, StatusOutForDelivery}:      CapProgressShipment,
	{StatusDeliveryFailed, StatusReturnedToWarehouse}: CapProgressShipment,
	{StatusDelivered, StatusCompleted}:                CapConfirmReceipt,
	{StatusDelivered, StatusRefundRequested}:          CapRequestRefund,
	{StatusRefundRequested, StatusRefunding}:          CapApproveRefund,
	{StatusRefunding, StatusRefunded}:                 CapApproveRefund,
	{StatusRefunded, StatusRefundConfirmed}:           CapConfirmReceipt,
}

// roleCapabilities 是每个角色持有的能力集合。
// 职责分离约束：除 ADMIN 外，任何角色不得同时持有物流能力和退款审批能力。
var roleCapabilities = map[Role]map[Capability]bool{
	RoleCustomer: {
		CapCancelOrder:    true,
		CapRetryPayment:   true,
		CapConfirmReceipt: true,
		CapRequestRefund:  true,
	},
	RoleSalesStaff: {
		CapConfirmOrder: true,
	},
	RoleWarehouse: {
		CapProgressShipment: true,
		CapConfirmDelivery:  true,
	},
	RoleSalesManager: {
		CapCancelOrder:   true,
		CapApproveRefund: true,
	},
	RoleAdmin: {
		CapCancelOrder:      true,
		CapRetryPayment:     true,
		CapConfirmOrder:     true,
		CapProgressShipment: true,
		CapConfirmDelivery:  true,
		CapConfirmReceipt:   true,
		CapRequestRefund:    true,
		CapApproveRefund:    true,
	},
}

// MayTransition 判断角色是否有权请求 (current -> target) 这条边。
// 纯谓词，没有任何副作用。系统边对人类角色一律返回 false。
func MayTransition(role Role, current, target Status) bool {
	guard, ok := LegalEdge(current, target)
	if !ok {
		return false
	}
	if role == RoleSystem {
		return guard != GuardHuman
	}
	if guard == GuardSystem {
		return false
	}
	required, ok := edgeCapabilities[edgeKey{current, target}]
	if !ok {
		return false
	}
	return roleCapabilities[role][required]
}

// NextStatusesFor 返回某角色在当前状态下可以请求的目标状态，
// 严格由状态机和权限表推导，供界面渲染可用操作。
func NextStatusesFor(role Role, current Status) []Status {
	var out []Status
	for _, e := range transitions[current] {
		if MayTransition(role, current, e.To) {
			out = append(out, e.To)
		}
	}
	return out
}
