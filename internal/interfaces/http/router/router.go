// Package router 提供 HTTP 路由配置
package router

import (
	"beanwise-ai-api/internal/config"
	"beanwise-ai-api/internal/interfaces/http/handler"
	"beanwise-ai-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由所需的处理器集合
type Handlers struct {
	Query  *handler.QueryHandler
	Admin  *handler.AdminHandler
	Health *handler.HealthHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
}

// New 创建新的路由器
func New(cfg *config.Config, h Handlers) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine: engine,
		cfg:    cfg,
	}

	r.setupMiddleware()
	r.setupRoutes(h)

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.ClientKey())

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes(h Handlers) {
	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// 查询入口
	v1 := r.engine.Group("/v1")
	{
		v1.POST("/query", h.Query.Query)
	}

	// 成本管理
	cost := r.engine.Group("/cost")
	{
		cost.GET("/today", h.Admin.CostToday)
		cost.POST("/reset", h.Admin.CostReset)
	}

	// 限流管理
	ratelimit := r.engine.Group("/ratelimit")
	{
		ratelimit.GET("/status", h.Admin.RateLimitStatus)
		ratelimit.GET("/ip/:client", h.Admin.RateLimitClient)
		ratelimit.POST("/reset", h.Admin.RateLimitReset)
	}

	// 缓存管理
	cache := r.engine.Group("/cache")
	{
		cache.GET("/semantic/stats", h.Admin.CacheStats)
		cache.POST("/semantic/clear", h.Admin.CacheClear)
	}
}
