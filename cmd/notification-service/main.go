package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/notification"
	"atelier/internal/service/order/infrastructure"
)

const (
	serviceName   = "notification-service"
	servicePort   = 8084
	consumerGroup = "notification-service-group"
)

// main 组装通知服务：消费订单事件流并通过 websocket 推送给在线用户。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	hub := notification.NewHub()
	hubCtx, cancelHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	reader := mq.NewKafkaReader(cfg.Infra.KafkaBrokers, infrastructure.OrderEventsTopic, consumerGroup)
	consumer := notification.NewConsumer(reader, hub)
	if err := consumer.Start(hubCtx); err != nil {
		log.Fatalf("failed to start consumer: %v", err)
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/ws", hub.ServeWs)
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop(ctx)
			cancelHub()
		},
	})
}
