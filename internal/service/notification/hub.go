package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// statusEvent 是事件流中推送过滤所需的字段子集。
type statusEvent struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	UserID      string `json:"userId"`
	ToStatus    string `json:"toStatus"`
}

// Hub 维护所有活跃的 websocket 连接并负责状态事件的定向广播。
// 顾客只收到自己订单的事件，员工角色收到全部事件。
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	lock       sync.RWMutex
}

// NewHub 创建广播中心。
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run 处理注册、注销和广播，阻塞直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			metrics.PushClients.Inc()
			logger.Ctx(ctx).Info().Str("user_id", client.userID).Str("role", client.role).Msg("push client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.PushClients.Dec()
			}
			h.lock.Unlock()
			logger.Ctx(ctx).Info().Str("user_id", client.userID).Msg("push client unregistered")
		case payload := <-h.broadcast:
			h.deliver(ctx, payload)
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast 把一条状态事件排队等待分发。
func (h *Hub) Broadcast(payload []byte) {
	h.broadcast <- payload
}

func (h *Hub) deliver(ctx context.Context, payload []byte) {
	var event statusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("unmarshal status event failed, dropping")
		return
	}

	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.clients {
		if !shouldDeliver(client, &event) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			// 发送缓冲已满说明对端读得太慢，丢弃本条而不是阻塞广播
			logger.Ctx(ctx).Warn().Str("user_id", client.userID).Msg("push buffer full, dropping event")
		}
	}
}

// shouldDeliver 判定事件是否推送给该连接。
func shouldDeliver(c *Client, event *statusEvent) bool {
	if c.role == "CUSTOMER" {
		return c.userID == event.UserID
	}
	return true
}

// Client 代表一条 websocket 连接。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	role   string
}

// writePump 把 send 缓冲中的消息写入连接，并周期性发送心跳。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只消费心跳应答，连接断开时负责注销。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWs 把 HTTP 请求升级为 websocket 连接并注册到 Hub。
// 身份与订单服务一致，由网关通过请求头下发。
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	role := r.Header.Get("X-User-Role")
	if userID == "" || role == "" {
		http.Error(w, "identity headers required", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64), userID: userID, role: role}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
