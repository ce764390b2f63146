// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beanwise-ai-api/internal/application/admission"
	"beanwise-ai-api/internal/application/budget"
	"beanwise-ai-api/internal/config"
	"beanwise-ai-api/internal/infrastructure/embedding"
	"beanwise-ai-api/internal/infrastructure/llm"
	"beanwise-ai-api/internal/infrastructure/persistence/milvus"
	"beanwise-ai-api/internal/infrastructure/persistence/postgres"
	"beanwise-ai-api/internal/infrastructure/persistence/redis"
	"beanwise-ai-api/internal/infrastructure/semcache"
	"beanwise-ai-api/internal/interfaces/http/handler"
	"beanwise-ai-api/internal/interfaces/http/router"
	"beanwise-ai-api/pkg/logger"
	"beanwise-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Redis：限流状态的唯一后盾，连不上直接退出
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer redisClient.Close()

	limiter := redis.NewRateLimiter(redisClient,
		cfg.Admission.RateLimit.PerMinute,
		cfg.Admission.RateLimit.PerDay,
	)

	ledger := budget.NewLedger(
		cfg.Admission.Budget.DailyLimit,
		cfg.Admission.Budget.MaxQueriesPerDay,
	)

	// Postgres（可选）：用量流水与账本回灌
	var pgClient *postgres.Client
	var recorder *budget.UsageRecorder
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.NewClient(&cfg.Postgres)
		if err != nil {
			logger.Fatal(ctx, "failed to connect postgres", err)
		}
		defer pgClient.Close()

		usageRepo := postgres.NewQueryUsageEventRepository(pgClient)
		if err := usageRepo.Migrate(); err != nil {
			logger.Fatal(ctx, "failed to migrate usage events table", err)
		}
		recorder = budget.NewUsageRecorder(usageRepo)

		// 进程重启不丢当日账目
		seedLedger(ctx, ledger, usageRepo)
	} else {
		recorder = budget.NewUsageRecorder(nil)
		log.Warn("postgres disabled, usage events will not be persisted")
	}

	embedClient := embedding.NewClient(&cfg.Embedding)

	// 语义缓存后端：默认进程内存储，可切换 Milvus
	var milvusClient *milvus.Client
	var cacheStore semcache.Store
	switch cfg.Admission.Cache.Backend {
	case "milvus":
		milvusClient, err = milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			logger.Fatal(ctx, "failed to connect milvus", err)
		}
		defer milvusClient.Close()

		cacheStore, err = milvus.NewCacheStore(ctx, milvusClient,
			cfg.Admission.Cache.TTL, cfg.Embedding.Dimension)
		if err != nil {
			logger.Fatal(ctx, "failed to init milvus cache store", err)
		}
	default:
		cacheStore = semcache.NewMemoryStore(
			cfg.Admission.Cache.Capacity,
			cfg.Admission.Cache.TTL,
		)
	}

	semCache := semcache.New(cacheStore,
		cfg.Admission.Cache.SimilarityThreshold,
		cfg.Embedding.Dimension,
	)

	llmClient := llm.NewClient(&cfg.LLM)

	gateway := admission.NewGateway(
		limiter,
		semCache,
		ledger,
		embedClient,
		llmClient,
		recorder,
		admission.Options{
			EstimatedCostPerQuery:  cfg.Admission.Budget.EstimatedCostPerQuery,
			UpstreamTimeout:        cfg.Admission.Upstream.Timeout,
			MaxUpstreamConcurrency: cfg.Admission.Upstream.MaxConcurrency,
		},
	)

	r := router.New(cfg, router.Handlers{
		Query: handler.NewQueryHandler(gateway),
		Admin: handler.NewAdminHandler(ledger, limiter, semCache,
			cfg.Admission.RateLimit.PerMinute, cfg.Admission.RateLimit.PerDay),
		Health: handler.NewHealthHandler(redisClient, pgClient, milvusClient, ledger, semCache, Version),
	})

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

// seedLedger 用流水表里当日已入账的成本回灌账本
func seedLedger(ctx context.Context, ledger *budget.Ledger, usageRepo *postgres.QueryUsageEventRepository) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	costMicros, queries, err := usageRepo.GetDailySpend(ctx, start, end)
	if err != nil {
		logger.Warn(ctx, "failed to load today's spend, ledger starts from zero", "error", err.Error())
		return
	}
	if costMicros > 0 || queries > 0 {
		ledger.Seed(costMicros, queries)
		logger.Info(ctx, "cost ledger seeded from usage events",
			"cost_micros", costMicros, "queries", queries)
	}
}
