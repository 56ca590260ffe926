package domain

// Guard 标记一条边由谁触发。
type Guard int

const (
	// GuardHuman 的边必须通过角色权限校验。
	GuardHuman Guard = iota
	// GuardSystem 的边只能由系统触发（支付回调、超时清扫），
	// 不做角色校验，但历史记录中 actorRole 固定为 SYSTEM。
	GuardSystem
	// GuardAny 的边人类和系统都可以触发。
	GuardAny
)

// Edge 是状态机中一条合法的流转。
type Edge struct {
	To    Status
	Guard Guard
}

// transitions 是订单状态机的完整定义。
// 所有"下一步可以做什么"的判断都必须从这张表推导，任何界面都不允许硬编码。
var transitions = map[Status][]Edge{
	StatusPendingPayment: {
		{To: StatusPendingConfirmation, Guard: GuardSystem}, // 支付成功回调
		{To: StatusProcessingFailed, Guard: GuardSystem},    // 支付失败回调
		{To: StatusCancelled, Guard: GuardAny},              // 客户/销售主管取消，或超时清扫
	},
	StatusProcessingFailed: {
		{To: StatusPendingPayment, Guard: GuardAny}, // 重试支付，不重置 orderNumber
	},
	StatusPendingConfirmation: {
		{To: StatusPreparing, Guard: GuardHuman},
		{To: StatusCancelled, Guard: GuardHuman},
	},
	StatusPreparing: {
		{To: StatusReadyToShip, Guard: GuardHuman},
	},
	StatusReadyToShip: {
		{To: StatusInTransit, Guard: GuardHuman},
	},
	StatusInTransit: {
		{To: StatusOutForDelivery, Guard: GuardHuman},
	},
	StatusOutForDelivery: {
		{To: StatusDelivered, Guard: GuardHuman},
		{To: StatusDeliveryFailed, Guard: GuardAny},
	},
	StatusDeliveryFailed: {
		{To: StatusReturnedToWarehouse, Guard: GuardAny},
		{To: StatusOutForDelivery, Guard: GuardAny}, // 再次派送
	},
	StatusDelivered: {
		{To: StatusCompleted, Guard: GuardHuman},       // 客户确认收货
		{To: StatusRefundRequested, Guard: GuardHuman}, // 仅在退款窗口内
	},
	StatusRefundRequested: {
		{To: StatusRefunding, Guard: GuardHuman},
	},
	StatusRefunding: {
		{To: StatusRefunded, Guard: GuardAny}, // 主管手动或网关退款确认
	},
	StatusRefunded: {
		{To: StatusRefundConfirmed, Guard: GuardHuman}, // 客户确认收到退款
	},
	// 终态: CANCELLED / COMPLETED / REFUND_CONFIRMED / RETURNED_TO_WAREHOUSE 没有出边
}

// LegalEdge 返回 (from -> to) 这条边的守卫类型。边不存在时 ok 为 false。
func LegalEdge(from, to Status) (Guard, bool) {
	for _, e := range transitions[from] {
		if e.To == to {
			return e.Guard, true
		}
	}
	return 0, false
}

// OutgoingEdges 返回某状态的全部出边。
func OutgoingEdges(from Status) []Edge {
	return transitions[from]
}

// ValidateWalk 校验一条状态序列是否是状态机上的合法游走。
// 序列是 StatusHistory 中按序排列的 toStatus 值，第一个元素必须是初始状态。
func ValidateWalk(walk []Status) bool {
	if len(walk) == 0 {
		return false
	}
	if walk[0] != StatusPendingPayment {
		return false
	}
	for i := 1; i < len(walk); i++ {
		if _, ok := LegalEdge(walk[i-1], walk[i]); !ok {
			return false
		}
	}
	return true
}
