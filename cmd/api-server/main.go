package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/api"
	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/auth"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
	"github.com/hackgods/salon-appointment-scheduling/internal/db"
	"github.com/hackgods/salon-appointment-scheduling/internal/events"
	"github.com/hackgods/salon-appointment-scheduling/internal/logger"
	"github.com/hackgods/salon-appointment-scheduling/internal/metrics"
	"github.com/hackgods/salon-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/salon-appointment-scheduling/internal/redis"
	"github.com/hackgods/salon-appointment-scheduling/internal/workinghours"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Log, "api-server")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("timezone", cfg.Timezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN,
		db.WithMaxConns(cfg.PostgresMaxConns),
		db.WithApplicationName("api-server"),
	)
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	lg.Info("connected to Postgres")

	if cfg.AutoMigrate {
		migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
		err := db.Migrate(migCtx, pgPool)
		cancelMig()
		if err != nil {
			lg.Fatal("schema migration error", zap.Error(err))
		}
		lg.Info("schema applied")
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, "api-server")
	if err != nil {
		lg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("error closing redis", zap.Error(err))
		}
	}()
	lg.Info("connected to Redis")

	m := metrics.NewCollector("salon")
	repo := appointment.NewPgRepository(pgPool)
	hours := workinghours.NewProvider(workinghours.NewPgStore(pgPool), lg)
	locker := redisclient.NewRedisStaffLocker(rdb, cfg.LockTTL, cfg.LockWait, lg)

	var sender notify.Sender = notify.NoopSender{Log: lg}
	if cfg.SMS.WebhookURL != "" {
		sender = notify.NewWebhookSender(notify.WebhookConfig{
			URL:   cfg.SMS.WebhookURL,
			Token: cfg.SMS.WebhookToken,
			From:  cfg.SMS.SenderName,
		}, lg)
	} else {
		lg.Warn("SMS_WEBHOOK_URL not set, confirmations will not be sent")
	}

	opts := []appointment.Option{
		appointment.WithMetrics(m),
		appointment.WithNotifier(notify.NewSMSNotifier(sender, repo, cfg.SMS.SenderName, cfg.Location(), m, lg)),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("error closing kafka writer", zap.Error(err))
			}
		}()
		opts = append(opts, appointment.WithPublisher(publisher))
		lg.Info("publishing events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	svc := appointment.NewService(repo, hours, locker, cfg, lg, opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Tokens:    auth.NewTokenManager(cfg.JWT),
		Health:    api.NewHealthHandler(pgPool, api.RedisPinger{Client: rdb}, cfg.Env, cfg.Version),
		Metrics:   m,
		Logger:    lg,
		Location:  cfg.Location(),
		RateLimit: cfg.RateLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	lg.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
}
