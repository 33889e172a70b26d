package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/api"
	"github.com/MorseWayne/phone_catalog/internal/cache"
	"github.com/MorseWayne/phone_catalog/internal/config"
	"github.com/MorseWayne/phone_catalog/internal/database"
	"github.com/MorseWayne/phone_catalog/internal/limiter"
	"github.com/MorseWayne/phone_catalog/internal/logger"
	"github.com/MorseWayne/phone_catalog/internal/mq"
	"github.com/MorseWayne/phone_catalog/internal/repo"
	"github.com/MorseWayne/phone_catalog/internal/router"
	"github.com/MorseWayne/phone_catalog/internal/service"
)

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var opts []logger.Option
	if cfg.Log.File != "" {
		opts = append(opts, logger.WithRotatingFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays))
	}
	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, lg, nil
}

// initDatabase 连接数据库，按需执行迁移
// 连接失败时进程拒绝启动。
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout+5*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.Mongo, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Migrations.Auto {
		lg.Info("running migrations", zap.String("path", cfg.Migrations.Dir))
		if err := db.RunMigrations(ctx, cfg.Migrations.Dir); err != nil {
			_ = db.Close(context.Background())
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	return db, nil
}

// initCache 初始化缓存实例
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		lg.Info("cache disabled")
		return cache.NewNullCache()
	}

	switch cfg.Cache.Type {
	case "redis":
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(cache.RedisOptions{
			Addr:      redisAddr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			lg.Warn("failed to connect to Redis, falling back to memory cache", zap.Error(err))
			return cache.NewMemoryCache()
		}
		lg.Info("cache enabled", zap.String("type", "redis"), zap.String("addr", redisAddr), zap.Duration("ttl", cfg.Cache.TTL))
		return redisCache
	case "memory":
		lg.Info("cache enabled", zap.String("type", "memory"), zap.Duration("ttl", cfg.Cache.TTL))
		return cache.NewMemoryCache()
	default:
		lg.Warn("unknown cache type, using memory cache", zap.String("type", cfg.Cache.Type))
		return cache.NewMemoryCache()
	}
}

// initLimiter 初始化写接口限流器
// Redis 缓存可用时多实例共享令牌桶，否则使用进程内令牌桶。
func initLimiter(cfg *config.Config, cacheInstance cache.Cache, lg *zap.Logger) limiter.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	lcfg := limiter.Config{
		Rate:      cfg.RateLimit.Rate,
		Window:    cfg.RateLimit.Window,
		Burst:     cfg.RateLimit.Burst,
		KeyPrefix: "limiter:products:create",
	}

	if rc, ok := cacheInstance.(*cache.RedisCache); ok {
		l, err := limiter.NewTokenBucketLimiter(rc.Client(), lcfg)
		if err == nil {
			lg.Info("rate limit enabled", zap.String("backend", "redis"), zap.Int64("rate", lcfg.Rate), zap.Duration("window", lcfg.Window))
			return l
		}
		lg.Warn("failed to create redis limiter, falling back to memory", zap.Error(err))
	}

	l, err := limiter.NewMemoryLimiter(lcfg)
	if err != nil {
		lg.Warn("rate limit disabled", zap.Error(err))
		return nil
	}
	lg.Info("rate limit enabled", zap.String("backend", "memory"), zap.Int64("rate", lcfg.Rate), zap.Duration("window", lcfg.Window))
	return l
}

// initEvents 初始化商品事件生产者
// RabbitMQ 不可用时只记录警告，商品写入不依赖事件投递。
func initEvents(cfg *config.Config, lg *zap.Logger) *mq.Producer {
	if !cfg.MQ.Enabled {
		return nil
	}

	mqCfg := mq.DefaultConfig()
	mqCfg.URL = cfg.MQ.URL
	mqCfg.Exchange = cfg.MQ.Exchange
	mqCfg.PublishTimeout = cfg.MQ.PublishTimeout

	producer, err := mq.NewProducer(mqCfg, lg)
	if err != nil {
		lg.Warn("failed to connect to RabbitMQ, product events disabled", zap.Error(err))
		return nil
	}
	return producer
}

// initDependencies 初始化依赖注入链：仓储 -> 服务 -> API处理器
func initDependencies(cfg *config.Config, db *database.DB, cacheInstance cache.Cache, producer *mq.Producer, lg *zap.Logger) *router.Dependencies {
	var productRepo repo.ProductRepository = repo.NewProductRepository(db.Products())
	if cfg.Cache.Enabled {
		productRepo = repo.NewCachedProductRepository(productRepo, cacheInstance, cfg.Cache.TTL, lg)
	}

	httpClient := service.NewImageHTTPClient(cfg.HTTPClient.Timeout, cfg.HTTPClient.MaxIdlePerHost, cfg.HTTPClient.IdleConnTimeout)
	validator := service.NewHTTPImageValidator(httpClient, cfg.Validator.Timeout, lg)
	opts := []service.Option{service.WithConcurrentValidation(cfg.Validator.Concurrent)}
	if producer != nil {
		opts = append(opts, service.WithEventPublisher(mq.NewProductEvents(producer)))
	}
	productService := service.NewProductService(productRepo, validator, lg, opts...)

	deps := &router.Dependencies{
		ProductHandler: api.NewProductHandler(productService, lg),
		HealthHandler:  api.NewHealthHandler(productRepo, lg),
	}

	// 幂等回放需要存储，缓存关闭时单独使用内存存储
	if cfg.Cache.Enabled {
		deps.IdempotencyStore = cacheInstance
	} else {
		deps.IdempotencyStore = cache.NewMemoryCache()
	}

	if l := initLimiter(cfg, cacheInstance, lg); l != nil {
		deps.WriteLimiter = l
	}

	if cfg.Auth.Enabled() {
		deps.TokenValidator = service.NewJWTService(cfg.Auth, lg)
		lg.Info("admin auth enabled for write endpoints")
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		deps.Registry = reg
	}

	return deps
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger) error {
	addr := cfg.App.Addr()
	lg.Info("server starting", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		lg.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("server shutdown error", zap.Error(err))
	}
	lg.Info("server exited")
	return nil
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// 2) 连接数据库
	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Fatal("failed to initialize database", zap.Error(err))
	}

	// 3) 初始化缓存
	cacheInstance := initCache(cfg, lg)

	// 4) 初始化事件生产者
	producer := initEvents(cfg, lg)

	// 5) 初始化应用依赖（仓储、服务、处理器）
	deps := initDependencies(cfg, db, cacheInstance, producer, lg)

	// 6) 设置路由和中间件
	handler := router.New().Setup(cfg, deps, lg)

	// 7) 启动 HTTP 服务器
	if err := startServer(cfg, handler, lg); err != nil {
		lg.Error("server stopped", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if producer != nil {
		if err := producer.Close(); err != nil {
			lg.Error("failed to close rabbitmq producer", zap.Error(err))
		}
	}
	if err := cacheInstance.Close(); err != nil {
		lg.Error("failed to close cache", zap.Error(err))
	}
	if err := db.Close(ctx); err != nil {
		lg.Error("failed to close database connection", zap.Error(err))
	}
}
