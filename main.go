package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicconnect-be/cache"
	"civicconnect-be/config"
	"civicconnect-be/controllers"
	"civicconnect-be/logger"
	"civicconnect-be/metrics"
	"civicconnect-be/middlewares"
	"civicconnect-be/routes"
	"civicconnect-be/store"
	"civicconnect-be/store/memstore"
	"civicconnect-be/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		lg.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	client, db, err := config.ConnectDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	lg.Info("MongoDB connection established", zap.String("database", cfg.MongoDatabase))

	s := store.NewMongo(db)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			lg.Warn("MongoDB disconnect failed", zap.Error(err))
		}
	}
	return s, closeFn, nil
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := config.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		lg.Info("Redis connection established", zap.String("address", cfg.RedisAddress))
	} else {
		lg.Info("Redis disabled; rate limiting and analytics cache are off")
	}

	if cfg.SeedDemo {
		if err := store.SeedDemo(ctx, st, lg); err != nil {
			return err
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New()
	deps := &controllers.Deps{
		Users:                 st,
		Complaints:            st,
		Issuer:                utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Log:                   lg,
		Metrics:               m,
		Cache:                 cache.NewJSONCache(rdb, "analytics", cfg.AnalyticsCacheTTL),
		AdminSignupKey:        cfg.AdminSignupKey,
		StrictTaskTransitions: cfg.StrictTaskTransitions,
		RequestTimeout:        cfg.RequestTimeout,
	}
	limiter := middlewares.ComplaintRateLimiter(rdb, middlewares.RateLimitConfig{
		Prefix: cfg.ComplaintRateLimitPrefix,
		Limit:  cfg.ComplaintRateLimit,
		Window: cfg.ComplaintRateWindow,
	}, m, lg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routes.NewRouter(deps, m, routes.Options{CORSOrigin: cfg.CORSOrigin, RateLimit: limiter}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
