package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 订单生命周期相关的 Prometheus 指标。
var (
	// TransitionsTotal 按边和结果统计状态流转次数。
	// outcome: success | invalid_transition | forbidden | conflict | not_found
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "order",
		Name:      "transitions_total",
		Help:      "Order status transitions by edge and outcome.",
	}, []string{"from", "to", "outcome"})

	// SweepCancelledTotal 统计超时清扫取消的订单数量。
	SweepCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "scheduler",
		Name:      "sweep_cancelled_total",
		Help:      "Orders cancelled by the payment deadline sweep.",
	})

	// SweepLostRacesTotal 统计清扫过程中输掉的并发竞争次数。
	SweepLostRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "scheduler",
		Name:      "sweep_lost_races_total",
		Help:      "Sweep transitions that lost a concurrent compare-and-set race.",
	})

	// PushClients 是当前在线的 websocket 订阅者数量。
	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier",
		Subsystem: "notification",
		Name:      "push_clients",
		Help:      "Currently connected websocket subscribers.",
	})

	// LoyaltyAccrualsTotal 统计积分累计执行情况。
	// outcome: applied | already_applied | error
	LoyaltyAccrualsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atelier",
		Subsystem: "loyalty",
		Name:      "accruals_total",
		Help:      "Loyalty accrual attempts by outcome.",
	}, []string{"outcome"})
)
