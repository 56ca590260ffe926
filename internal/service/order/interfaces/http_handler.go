package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/order/application"
	"atelier/internal/service/order/domain"
)

// 身份服务通过网关在请求头里下发已验证的用户身份，这里直接信任。
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

// OrderHandler 封装了订单服务的 HTTP 处理器。
type OrderHandler struct {
	service *application.LifecycleService
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例。
func NewOrderHandler(service *application.LifecycleService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/orders", h.placeOrder)
	mux.HandleFunc("/orders/transition", h.requestTransition)
	mux.HandleFunc("/orders/next_statuses", h.nextStatuses)
	mux.HandleFunc("/orders/payment_countdown", h.paymentCountdown)
	mux.HandleFunc("/payment/callback", h.paymentCallback)
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := extractTraceContext(r)

	var req application.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get(headerUserID)
	}

	resp, err := h.service.PlaceOrder(ctx, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) requestTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := extractTraceContext(r)

	role, ok := domain.ParseRole(r.Header.Get(headerRole))
	if !ok {
		http.Error(w, "missing or unknown role", http.StatusForbidden)
		return
	}

	var req application.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, err := domain.ParseStatus(req.Target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hist, err := h.service.RequestTransition(ctx, req.OrderID, target, role, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &application.TransitionResponse{
		OrderID:    hist.OrderID,
		FromStatus: hist.FromStatus,
		ToStatus:   hist.ToStatus,
		ActorRole:  hist.ActorRole,
		Note:       hist.Note,
		CreatedAt:  hist.CreatedAt,
	})
}

func (h *OrderHandler) nextStatuses(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	role, ok := domain.ParseRole(r.Header.Get(headerRole))
	if !ok {
		http.Error(w, "missing or unknown role", http.StatusForbidden)
		return
	}
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	statuses, err := h.service.NextLegalStatuses(ctx, orderID, role)
	if err != nil {
		writeError(w, err)
		return
	}
	if statuses == nil {
		statuses = []domain.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orderId": orderID, "nextStatuses": statuses})
}

func (h *OrderHandler) paymentCountdown(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}
	resp, err := h.service.PaymentCountdown(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// paymentCallback 消费支付服务转发的已验证结果信号。
// 无论编排结果如何都向网关返回 200 应答，避免无意义的重发；
// 处理结果放在响应体里，拒绝原因同时记录日志。
func (h *OrderHandler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := extractTraceContext(r)

	var outcome domain.PaymentOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	hist, err := h.service.HandlePaymentOutcome(ctx, &outcome)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("order_id", outcome.OrderID).
			Str("transaction_ref", outcome.TransactionRef).
			Msg("payment callback rejected")
		writeJSON(w, http.StatusOK, map[string]interface{}{"applied": false, "reason": errorKind(err)})
		return
	}
	resp := map[string]interface{}{"applied": hist != nil}
	if hist == nil {
		resp["reason"] = "duplicate"
	}
	writeJSON(w, http.StatusOK, resp)
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorKind 把领域错误映射为对外的错误类别字符串。
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, domain.ErrForbidden):
		return "Forbidden"
	case errors.Is(err, domain.ErrConflict):
		return "Conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "NotFound"
	}
	return "Internal"
}

// writeError 把领域错误映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"kind": errorKind(err), "message": err.Error()})
}
