package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/order/application"
	"atelier/internal/service/order/infrastructure"
	"atelier/internal/service/order/infrastructure/adapter"
	"atelier/internal/service/order/interfaces"
)

const (
	serviceName = "order-service"
	servicePort = 8080
)

// main 是订单服务的组装根：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	repo := infrastructure.NewGormOrderRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Infra.RedisAddr})
	deduper := adapter.NewRedisPaymentDeduper(redisClient)

	eventWriter := mq.NewKafkaWriter(cfg.Infra.KafkaBrokers, infrastructure.OrderEventsTopic)
	relay := infrastructure.NewOutboxRelay(db, eventWriter)

	service := application.NewLifecycleService(repo, deduper, application.Policy{
		PaymentWindow:     cfg.Order.PaymentWindow.Std(),
		RefundWindow:      cfg.Order.RefundWindow.Std(),
		MaxPaymentRetries: cfg.Order.MaxPaymentRetries,
	}, otel.Tracer(serviceName))
	handler := interfaces.NewOrderHandler(service)

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	go relay.Start(relayCtx)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			cancelRelay()
			if err := eventWriter.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
