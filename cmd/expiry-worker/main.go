package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/db"
	"github.com/hackgods/salon-appointment-scheduling/internal/events"
	"github.com/hackgods/salon-appointment-scheduling/internal/logger"
	redisclient "github.com/hackgods/salon-appointment-scheduling/internal/redis"
	"github.com/hackgods/salon-appointment-scheduling/internal/workinghours"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Log, "expiry-worker")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("stale_pending_after", cfg.StalePendingAfter),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN,
		db.WithMaxConns(cfg.PostgresMaxConns),
		db.WithApplicationName("expiry-worker"),
	)
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	lg.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, "expiry-worker")
	if err != nil {
		lg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("error closing redis", zap.Error(err))
		}
	}()
	lg.Info("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	hours := workinghours.NewProvider(workinghours.NewPgStore(pgPool), lg)
	locker := redisclient.NewRedisStaffLocker(rdb, cfg.LockTTL, cfg.LockWait, lg)

	var opts []appointment.Option
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka)
		defer func() { _ = publisher.Close() }()
		opts = append(opts, appointment.WithPublisher(publisher))
	}
	svc := appointment.NewService(repo, hours, locker, cfg, lg, opts...)

	// Run once at startup
	runOnce(rootCtx, svc, lg)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			lg.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, lg)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, lg *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireStalePendingAppointments(runCtx)
	if err != nil {
		lg.Error("expiry run error", zap.Error(err))
		return
	}
	lg.Info("expiry run complete", zap.Int("expired", n), zap.Duration("took", time.Since(start)))
}
