package notification

import (
	"context"
	"testing"
	"time"
)

func TestShouldDeliver(t *testing.T) {
	event := &statusEvent{OrderID: "order-1", UserID: "user-1", ToStatus: "DELIVERED"}

	cases := []struct {
		name   string
		userID string
		role   string
		want   bool
	}{
		{"owner customer receives", "user-1", "CUSTOMER", true},
		{"other customer filtered out", "user-2", "CUSTOMER", false},
		{"sales staff receives all", "staff-1", "SALES_STAFF", true},
		{"warehouse receives all", "wh-1", "WAREHOUSE", true},
		{"manager receives all", "mgr-1", "SALES_MANAGER", true},
		{"admin receives all", "admin-1", "ADMIN", true},
	}
	for _, c := range cases {
		client := &Client{userID: c.userID, role: c.role}
		if got := shouldDeliver(client, event); got != c.want {
			t.Errorf("%s: shouldDeliver = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	owner := &Client{hub: hub, send: make(chan []byte, 1), userID: "user-1", role: "CUSTOMER"}
	stranger := &Client{hub: hub, send: make(chan []byte, 1), userID: "user-2", role: "CUSTOMER"}
	staff := &Client{hub: hub, send: make(chan []byte, 1), userID: "staff-1", role: "SALES_STAFF"}
	hub.register <- owner
	hub.register <- stranger
	hub.register <- staff

	payload := []byte(`{"orderId":"order-1","userId":"user-1","toStatus":"IN_TRANSIT"}`)
	hub.Broadcast(payload)

	expectMessage(t, owner.send, true, "owner")
	expectMessage(t, staff.send, true, "staff")
	expectMessage(t, stranger.send, false, "stranger")
}

func TestHubDropsOnFullBuffer(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := &Client{hub: hub, send: make(chan []byte, 1), userID: "user-1", role: "CUSTOMER"}
	hub.register <- slow

	payload := []byte(`{"orderId":"order-1","userId":"user-1","toStatus":"PREPARING"}`)
	hub.Broadcast(payload)
	hub.Broadcast(payload) // 缓冲已满，这条被丢弃而不是阻塞广播循环
	hub.Broadcast(payload)

	expectMessage(t, slow.send, true, "first message")
	// 广播循环没有被慢消费者卡死
	done := make(chan struct{})
	go func() {
		hub.Broadcast([]byte(`{"orderId":"order-2","userId":"user-9","toStatus":"DELIVERED"}`))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked by a slow subscriber")
	}
}

func expectMessage(t *testing.T, ch chan []byte, want bool, who string) {
	t.Helper()
	select {
	case <-ch:
		if !want {
			t.Errorf("%s should not have received the event", who)
		}
	case <-time.After(200 * time.Millisecond):
		if want {
			t.Errorf("%s did not receive the event", who)
		}
	}
}
