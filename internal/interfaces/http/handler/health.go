// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"beanwise-ai-api/internal/infrastructure/persistence/milvus"
	"beanwise-ai-api/internal/infrastructure/persistence/postgres"
	"beanwise-ai-api/internal/infrastructure/persistence/redis"
	"beanwise-ai-api/pkg/logger"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	redis   *redis.Client
	pg      *postgres.Client
	milvus  *milvus.Client
	ledger  CostLedger
	cache   CacheAdmin
	version string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(redisClient *redis.Client, pg *postgres.Client, milvusClient *milvus.Client,
	ledger CostLedger, cache CacheAdmin, version string) *HealthHandler {
	return &HealthHandler{
		redis:   redisClient,
		pg:      pg,
		milvus:  milvusClient,
		ledger:  ledger,
		cache:   cache,
		version: version,
	}
}

type componentCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// healthResponse 综合快照：预算利用率、剩余查询数与缓存命中率，外加依赖探测
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	// CostUtilization 当日预算利用率（百分比）
	CostUtilization float64 `json:"cost_utilization"`
	// QueriesRemaining 当日剩余查询数，-1 表示不限制
	QueriesRemaining int64 `json:"queries_remaining"`
	// CacheHitRate 语义缓存命中率 (0-1)
	CacheHitRate float64                    `json:"cache_hit_rate"`
	Checks       map[string]*componentCheck `json:"checks,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*componentCheck `json:"checks,omitempty"`
}

// Health 健康检查接口：成本、配额与缓存的综合快照，附依赖探测结果。
// 任一必需组件故障时整体降级，但仍返回 200（就绪判定走 /ready）。
// @Summary 健康检查
// @Description 返回成本利用率、剩余查询数、缓存命中率及依赖健康状态
// @Tags System
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks, ready := h.probe(ctx)

	resp := healthResponse{
		Status:           "ok",
		Version:          h.version,
		QueriesRemaining: -1,
		Checks:           checks,
	}
	if !ready {
		resp.Status = "degraded"
	}

	if h.ledger != nil {
		stats := h.ledger.GetStats()
		if stats.DailyLimit > 0 {
			resp.CostUtilization = stats.CurrentCost / stats.DailyLimit * 100
		}
		resp.QueriesRemaining = stats.RemainingQueries
	}

	if h.cache != nil {
		// 缓存统计失败只影响快照字段，不影响健康判定
		if stats, err := h.cache.GetStats(ctx); err == nil {
			resp.CacheHitRate = stats.HitRate
		} else {
			logger.Warn(ctx, "failed to read cache stats for health snapshot", "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Ready 就绪检查接口，必需依赖不可达时返回 503
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks, ready := h.probe(ctx)

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, readinessResponse{Status: "ok"})
}

// probe 探测各依赖。Redis 是限流的唯一后盾，视为必需；
// Postgres 与 Milvus 均可选，故障只降级不拦截流量。
func (h *HealthHandler) probe(ctx context.Context) (map[string]*componentCheck, bool) {
	checks := map[string]*componentCheck{
		"redis": {Status: "unknown"},
	}
	ready := true

	if h == nil || h.redis == nil {
		checks["redis"].Status = "missing"
		checks["redis"].Error = "redis client not configured"
		ready = false
	} else {
		start := time.Now()
		err := h.redis.HealthCheck(ctx)
		checks["redis"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["redis"].Status = "error"
			checks["redis"].Error = err.Error()
			ready = false
		} else {
			checks["redis"].Status = "ok"
		}
	}

	if h != nil && h.pg != nil {
		checks["postgres"] = &componentCheck{Status: "unknown"}
		start := time.Now()
		err := h.pg.HealthCheck(ctx)
		checks["postgres"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["postgres"].Status = "degraded"
			checks["postgres"].Error = err.Error()
		} else {
			checks["postgres"].Status = "ok"
		}
	}

	if h != nil && h.milvus != nil {
		checks["milvus"] = &componentCheck{Status: "unknown"}
		start := time.Now()
		err := h.milvus.HealthCheck(ctx)
		checks["milvus"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["milvus"].Status = "degraded"
			checks["milvus"].Error = err.Error()
		} else {
			checks["milvus"].Status = "ok"
		}
	}

	return checks, ready
}
