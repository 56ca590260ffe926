package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	loyaltyapp "atelier/internal/service/loyalty/application"
	loyaltyinfra "atelier/internal/service/loyalty/infrastructure"
	loyaltyifaces "atelier/internal/service/loyalty/interfaces"
	orderinfra "atelier/internal/service/order/infrastructure"
)

const (
	serviceName   = "loyalty-service"
	servicePort   = 8085
	consumerGroup = "loyalty-service-group"
)

// main 组装积分服务：消费订单事件流，在订单完成时累计积分并重算等级。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	repo := loyaltyinfra.NewGormLoyaltyRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	if err := seedDefaultTiers(repo); err != nil {
		log.Fatalf("failed to seed member tiers: %v", err)
	}

	accrual := loyaltyapp.NewAccrualService(repo, otel.Tracer(serviceName))

	reader := mq.NewKafkaReader(cfg.Infra.KafkaBrokers, orderinfra.OrderEventsTopic, consumerGroup)
	consumer := loyaltyifaces.NewOrderEventsConsumer(reader, accrual)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	if err := consumer.Start(consumerCtx); err != nil {
		log.Fatalf("failed to start consumer: %v", err)
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop(ctx)
			cancelConsumer()
		},
	})
}

// seedDefaultTiers 在等级表为空时写入默认等级，方便开发环境开箱即用。
func seedDefaultTiers(repo *loyaltyinfra.GormLoyaltyRepository) error {
	tiers, err := repo.ListTiers(context.Background())
	if err != nil {
		return err
	}
	if len(tiers) > 0 {
		return nil
	}
	return repo.SeedTiers([]loyaltyinfra.MemberTierModel{
		{Name: "BRONZE", MinPoints: 0, DiscountPercent: 0, PointMultiplier: 1.0},
		{Name: "SILVER", MinPoints: 1000, DiscountPercent: 3, PointMultiplier: 1.1},
		{Name: "GOLD", MinPoints: 5000, DiscountPercent: 5, PointMultiplier: 1.2},
		{Name: "PLATINUM", MinPoints: 20000, DiscountPercent: 10, PointMultiplier: 1.5},
	})
}
