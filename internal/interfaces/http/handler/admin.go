package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"beanwise-ai-api/internal/application/budget"
	"beanwise-ai-api/internal/infrastructure/persistence/redis"
	"beanwise-ai-api/internal/infrastructure/semcache"
	"beanwise-ai-api/internal/interfaces/http/dto"
	"beanwise-ai-api/pkg/logger"
	"beanwise-ai-api/pkg/metrics"
)

// CostLedger 成本账本管理端口
type CostLedger interface {
	GetStats() *budget.Stats
	ResetDaily()
}

// RateLimitAdmin 限流管理端口
type RateLimitAdmin interface {
	Status(ctx context.Context, clientKey string) (*redis.Status, error)
	ActiveClients(ctx context.Context) (*redis.ActiveClients, error)
	ResetAll(ctx context.Context) (int, error)
}

// CacheAdmin 语义缓存管理端口
type CacheAdmin interface {
	GetStats(ctx context.Context) (*semcache.Stats, error)
	Clear(ctx context.Context) error
}

// AdminHandler 管理接口处理器
type AdminHandler struct {
	ledger    CostLedger
	limiter   RateLimitAdmin
	cache     CacheAdmin
	perMinute int
	perDay    int
}

// NewAdminHandler 创建管理接口处理器
func NewAdminHandler(ledger CostLedger, limiter RateLimitAdmin, cache CacheAdmin, perMinute, perDay int) *AdminHandler {
	return &AdminHandler{
		ledger:    ledger,
		limiter:   limiter,
		cache:     cache,
		perMinute: perMinute,
		perDay:    perDay,
	}
}

// CostToday 当日成本统计
// @Summary 当日成本
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[budget.Stats]
// @Router /cost/today [get]
func (h *AdminHandler) CostToday(c *gin.Context) {
	dto.Success(c, h.ledger.GetStats())
}

// CostReset 清零当日成本账本
// @Summary 重置当日成本
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.ResetResult]
// @Router /cost/reset [post]
func (h *AdminHandler) CostReset(c *gin.Context) {
	h.ledger.ResetDaily()
	metrics.AdminResetsTotal.WithLabelValues("cost").Inc()
	logger.Warn(c.Request.Context(), "daily cost ledger reset by admin")

	dto.Success(c, dto.ResetResult{
		Target:  "cost",
		Status:  "ok",
		Warning: "spend already incurred today no longer counts against the daily limit",
	})
}

// RateLimitStatus 限流全局状态
// @Summary 限流状态
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.RateLimitOverview]
// @Router /ratelimit/status [get]
func (h *AdminHandler) RateLimitStatus(c *gin.Context) {
	active, err := h.limiter.ActiveClients(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}

	dto.Success(c, dto.RateLimitOverview{
		PerMinuteLimit: h.perMinute,
		PerDayLimit:    h.perDay,
		MinuteClients:  active.MinuteClients,
		DayClients:     active.DayClients,
	})
}

// RateLimitClient 单个客户端的限流状态
// @Summary 客户端限流状态
// @Tags Admin
// @Produce json
// @Param client path string true "客户端标识（IP）"
// @Success 200 {object} dto.Response[redis.Status]
// @Router /ratelimit/ip/{client} [get]
func (h *AdminHandler) RateLimitClient(c *gin.Context) {
	clientKey := strings.TrimSpace(c.Param("client"))
	if clientKey == "" {
		dto.BadRequest(c, "client key is required")
		return
	}

	// 从未出现过的客户端返回零计数状态，不报 404
	status, err := h.limiter.Status(c.Request.Context(), clientKey)
	if err != nil {
		dto.Error(c, err)
		return
	}

	dto.Success(c, status)
}

// RateLimitReset 清空全部限流计数
// @Summary 重置限流
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.ResetResult]
// @Router /ratelimit/reset [post]
func (h *AdminHandler) RateLimitReset(c *gin.Context) {
	cleared, err := h.limiter.ResetAll(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}

	metrics.AdminResetsTotal.WithLabelValues("ratelimit").Inc()
	logger.Warn(c.Request.Context(), "rate limit counters reset by admin", "cleared", cleared)

	dto.Success(c, dto.ResetResult{Target: "ratelimit", Cleared: cleared, Status: "ok"})
}

// CacheStats 语义缓存统计
// @Summary 缓存统计
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[semcache.Stats]
// @Router /cache/semantic/stats [get]
func (h *AdminHandler) CacheStats(c *gin.Context) {
	stats, err := h.cache.GetStats(c.Request.Context())
	if err != nil {
		dto.Error(c, err)
		return
	}

	dto.Success(c, stats)
}

// CacheClear 清空语义缓存
// @Summary 清空缓存
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[dto.ResetResult]
// @Router /cache/semantic/clear [post]
func (h *AdminHandler) CacheClear(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		dto.Error(c, err)
		return
	}

	metrics.AdminResetsTotal.WithLabelValues("cache").Inc()
	logger.Warn(c.Request.Context(), "semantic cache cleared by admin")

	dto.Success(c, dto.ResetResult{
		Target:  "cache",
		Status:  "ok",
		Warning: "subsequent queries will miss the cache and incur upstream cost until it repopulates",
	})
}
