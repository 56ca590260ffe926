package domain

import "testing"

func TestMayTransition(t *testing.T) {
	cases := []struct {
		name string
		role Role
		from Status
		to   Status
		want bool
	}{
		{"customer cancels before payment", RoleCustomer, StatusPendingPayment, StatusCancelled, true},
		{"customer retries failed payment", RoleCustomer, StatusProcessingFailed, StatusPendingPayment, true},
		{"customer confirms receipt", RoleCustomer, StatusDelivered, StatusCompleted, true},
		{"customer requests refund", RoleCustomer, StatusDelivered, StatusRefundRequested, true},
		{"customer confirms refund received", RoleCustomer, StatusRefunded, StatusRefundConfirmed, true},
		{"customer cannot confirm own order", RoleCustomer, StatusPendingConfirmation, StatusPreparing, false},
		{"customer cannot progress shipment", RoleCustomer, StatusPreparing, StatusReadyToShip, false},

		{"sales staff confirms order", RoleSalesStaff, StatusPendingConfirmation, StatusPreparing, true},
		{"sales staff cannot cancel", RoleSalesStaff, StatusPendingConfirmation, StatusCancelled, false},
		{"sales staff cannot approve refund", RoleSalesStaff, StatusRefundRequested, StatusRefunding, false},

		{"warehouse progresses shipment", RoleWarehouse, StatusPreparing, StatusReadyToShip, true},
		{"warehouse confirms delivery", RoleWarehouse, StatusOutForDelivery, StatusDelivered, true},
		{"warehouse records failed delivery", RoleWarehouse, StatusOutForDelivery, StatusDeliveryFailed, true},
		{"warehouse returns to warehouse", RoleWarehouse, StatusDeliveryFailed, StatusReturnedToWarehouse, true},
		{"warehouse cannot approve refund", RoleWarehouse, StatusRefundRequested, StatusRefunding, false},
		{"warehouse cannot confirm order", RoleWarehouse, StatusPendingConfirmation, StatusPreparing, false},

		{"manager cancels unconfirmed order", RoleSalesManager, StatusPendingConfirmation, StatusCancelled, true},
		{"manager approves refund", RoleSalesManager, StatusRefundRequested, StatusRefunding, true},
		{"manager marks refund executed", RoleSalesManager, StatusRefunding, StatusRefunded, true},
		{"manager cannot progress shipment", RoleSalesManager, StatusPreparing, StatusReadyToShip, false},

		{"admin progresses shipment", RoleAdmin, StatusPreparing, StatusReadyToShip, true},
		{"admin approves refund", RoleAdmin, StatusRefundRequested, StatusRefunding, true},

		{"no human triggers payment callback edge", RoleAdmin, StatusPendingPayment, StatusPendingConfirmation, false},
		{"system triggers payment callback edge", RoleSystem, StatusPendingPayment, StatusPendingConfirmation, true},
		{"system triggers timeout cancellation", RoleSystem, StatusPendingPayment, StatusCancelled, true},
		{"system cannot trigger human edge", RoleSystem, StatusPendingConfirmation, StatusPreparing, false},
		{"illegal edge denied for everyone", RoleAdmin, StatusPendingPayment, StatusPreparing, false},
	}
	for _, c := range cases {
		if got := MayTransition(c.role, c.from, c.to); got != c.want {
			t.Errorf("%s: MayTransition(%s, %s, %s) = %v, want %v", c.name, c.role, c.from, c.to, got, c.want)
		}
	}
}

// 职责分离：除 ADMIN 外，任何角色不能既推进物流又审批退款。
func TestSeparationOfDuties(t *testing.T) {
	for role, caps := range roleCapabilities {
		if role == RoleAdmin {
			continue
		}
		hasShipping := caps[CapProgressShipment] || caps[CapConfirmDelivery]
		hasRefund := caps[CapApproveRefund]
		if hasShipping && hasRefund {
			t.Errorf("role %s holds both shipping and refund approval capabilities", role)
		}
	}
}

// 每条人工可触发的边必须恰好映射到一个能力，否则没有任何角色能触发它。
func TestEveryHumanEdgeHasCapability(t *testing.T) {
	for from, edges := range transitions {
		for _, e := range edges {
			if e.Guard == GuardSystem {
				continue
			}
			if _, ok := edgeCapabilities[edgeKey{from, e.To}]; !ok {
				t.Errorf("human-triggerable edge %s -> %s has no capability mapping", from, e.To)
			}
		}
	}
}

func TestNextStatusesFor(t *testing.T) {
	got := NextStatusesFor(RoleCustomer, StatusPendingPayment)
	if len(got) != 1 || got[0] != StatusCancelled {
		t.Errorf("customer at PENDING_PAYMENT: got %v, want [CANCELLED]", got)
	}

	got = NextStatusesFor(RoleWarehouse, StatusOutForDelivery)
	want := map[Status]bool{StatusDelivered: true, StatusDeliveryFailed: true}
	if len(got) != len(want) {
		t.Fatalf("warehouse at OUT_FOR_DELIVERY: got %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("warehouse at OUT_FOR_DELIVERY: unexpected status %s", s)
		}
	}

	if got := NextStatusesFor(RoleCustomer, StatusCompleted); len(got) != 0 {
		t.Errorf("terminal status should offer nothing, got %v", got)
	}
	if got := NextStatusesFor(RoleSalesStaff, StatusPreparing); len(got) != 0 {
		t.Errorf("sales staff at PREPARING should have no actions, got %v", got)
	}
}

func TestParseRole(t *testing.T) {
	if _, ok := ParseRole("WAREHOUSE"); !ok {
		t.Error("ParseRole should accept WAREHOUSE")
	}
	if _, ok := ParseRole("SYSTEM"); ok {
		t.Error("ParseRole must reject SYSTEM from external input")
	}
	if _, ok := ParseRole("ROOT"); ok {
		t.Error("ParseRole should reject unknown roles")
	}
}
