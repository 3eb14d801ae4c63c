package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chasepay/settlement/internal/api"
	"github.com/chasepay/settlement/internal/config"
	"github.com/chasepay/settlement/internal/db"
	"github.com/chasepay/settlement/internal/idempotency"
	"github.com/chasepay/settlement/internal/observability"
	"github.com/chasepay/settlement/internal/repository"
	"github.com/chasepay/settlement/internal/service"
	"github.com/chasepay/settlement/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, cfg.IdempotencyTTL)

	callbacks := service.NewCallbackDispatcher(store, cfg.CallbackTimeout)
	paymentSvc := service.NewPaymentService(store, callbacks, cfg.DefaultKkkPercent, cfg.PaymentLifetime)
	matcherSvc := service.NewMatcherService(store, callbacks, cfg.MatcherBatchSize)
	payoutSvc := service.NewPayoutService(store, cfg.PayoutLifetime, cfg.PayoutAcceptTTL)
	disputeSvc := service.NewDisputeService(store, callbacks)

	matcherWorker := worker.NewMatcherWorker(matcherSvc).WithInterval(cfg.MatcherInterval)
	expiryWorker := worker.NewExpiryWorker(paymentSvc).WithInterval(cfg.ExpiryInterval)

	stopMatcher := matcherWorker.Run(ctx)
	stopExpiry := expiryWorker.Run(ctx)
	logger.Info("workers started",
		zap.Duration("matcher_interval", cfg.MatcherInterval),
		zap.Duration("expiry_interval", cfg.ExpiryInterval),
		zap.Int32("matcher_batch", cfg.MatcherBatchSize))

	router := api.NewRouter(pool, redisClient, store, paymentSvc, payoutSvc, disputeSvc, idemStore, logger, cfg.PublicRateLimitRPS, cfg.MerchantRPS)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopMatcher()
	stopExpiry()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
