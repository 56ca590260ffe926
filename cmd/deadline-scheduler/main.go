package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/zookeeper"
	"atelier/internal/service/order/application"
	"atelier/internal/service/order/infrastructure"
	"atelier/internal/service/order/infrastructure/adapter"
	"atelier/internal/service/order/scheduler"
)

const (
	serviceName  = "deadline-scheduler"
	servicePort  = 8083
	lockResource = "payment-sweep"
)

// main 组装支付超时清扫器。多副本部署时通过 ZooKeeper 分布式锁
// 竞选领导者，同一时刻只有一个副本在执行清扫。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Infra.RedisAddr})
	deduper := adapter.NewRedisPaymentDeduper(redisClient)

	repo := infrastructure.NewGormOrderRepository(db)
	tracer := otel.Tracer(serviceName)
	lifecycle := application.NewLifecycleService(repo, deduper, application.Policy{
		PaymentWindow:     cfg.Order.PaymentWindow.Std(),
		RefundWindow:      cfg.Order.RefundWindow.Std(),
		MaxPaymentRetries: cfg.Order.MaxPaymentRetries,
	}, tracer)
	sweeper := scheduler.NewSweeper(repo, lifecycle, tracer)

	zkConn, err := zookeeper.Connect(cfg.Infra.ZkServers)
	if err != nil {
		log.Fatalf("failed to connect zookeeper: %v", err)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	go runLeaderLoop(runCtx, zkConn, sweeper, cfg.Order.SweepInterval.Std())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			cancelRun()
			zkConn.Close()
		},
	})
}

// runLeaderLoop 反复竞选领导者并在任期内运行清扫。
// 会话丢失时立即停止清扫并重新竞选，避免双主同时扫描。
func runLeaderLoop(ctx context.Context, conn *zookeeper.Conn, sweeper *scheduler.Sweeper, interval time.Duration) {
	for ctx.Err() == nil {
		lock := zookeeper.NewDistributedLock(conn, lockResource)
		if err := lock.Lock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("leadership election failed, retrying")
			time.Sleep(5 * time.Second)
			continue
		}
		logger.Ctx(ctx).Info().Msg("leadership acquired, sweeping enabled")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sweeper.Run(gctx, interval)
			return gctx.Err()
		})
		g.Go(func() error {
			return watchSession(gctx, conn)
		})
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("leadership lost")
		}

		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("failed to release sweep lock")
		}
	}
}

// watchSession 监视 ZooKeeper 会话。会话一旦失效，临时锁节点随之消失，
// 其他副本可能立刻成为领导者，本副本必须停止清扫。
func watchSession(ctx context.Context, conn *zookeeper.Conn) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if state := conn.State(); state != zk.StateHasSession {
				return errors.Errorf("zookeeper session lost: %s", state)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
