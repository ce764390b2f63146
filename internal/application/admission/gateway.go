// Package admission 实现查询准入网关：限流、语义缓存、预算预留、
// 上游调用与成本入账按固定顺序串联。
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"beanwise-ai-api/internal/application/budget"
	"beanwise-ai-api/internal/infrastructure/llm"
	"beanwise-ai-api/internal/infrastructure/persistence/redis"
	"beanwise-ai-api/pkg/errors"
	"beanwise-ai-api/pkg/logger"
	"beanwise-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("admission")

// RateLimiter 限流端口
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, clientKey string) (bool, *redis.Status, error)
}

// SemanticCache 语义缓存端口
type SemanticCache interface {
	Lookup(ctx context.Context, embedding []float32) ([]byte, bool, error)
	Store(ctx context.Context, id, query string, embedding []float32, payload []byte) error
}

// Ledger 成本账本端口
type Ledger interface {
	Reserve(estimatedCost float64) (bool, *budget.Stats)
	Commit(actualCost float64)
}

// Embedder 向量化端口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Upstream 上游提供商端口
type Upstream interface {
	Complete(ctx context.Context, query string) (*llm.Completion, error)
}

// Source 回答来源
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// Result 一次已准入查询的结果
type Result struct {
	// Answer 上游或缓存给出的响应载荷
	Answer []byte
	// Source 回答来源
	Source Source
	// Cost 本次实际入账成本，缓存命中时为 0
	Cost float64
	// Model 上游模型，缓存命中时为空
	Model string
}

// Options 网关行为参数
type Options struct {
	// EstimatedCostPerQuery 预算预留使用的单次成本估计
	EstimatedCostPerQuery float64
	// UpstreamTimeout 单次上游调用超时
	UpstreamTimeout time.Duration
	// MaxUpstreamConcurrency 同时在途的上游调用上限
	MaxUpstreamConcurrency int64
}

// Gateway 查询准入网关。
// 判定顺序固定：限流 → 缓存 → 预算 → 上游 → 入账与缓存写入。
// 限流在缓存之前，命中缓存的请求也消耗限流配额。
type Gateway struct {
	limiter  RateLimiter
	cache    SemanticCache
	ledger   Ledger
	embedder Embedder
	upstream Upstream
	recorder *budget.UsageRecorder

	estimatedCost   float64
	upstreamTimeout time.Duration

	// embedGroup 合并同一查询文本的并发向量化调用
	embedGroup singleflight.Group
	// upstreamSem 约束同时在途的上游调用数
	upstreamSem *semaphore.Weighted
}

// NewGateway 创建准入网关
func NewGateway(
	limiter RateLimiter,
	cache SemanticCache,
	ledger Ledger,
	embedder Embedder,
	upstream Upstream,
	recorder *budget.UsageRecorder,
	opts Options,
) *Gateway {
	timeout := opts.UpstreamTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConcurrency := opts.MaxUpstreamConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Gateway{
		limiter:         limiter,
		cache:           cache,
		ledger:          ledger,
		embedder:        embedder,
		upstream:        upstream,
		recorder:        recorder,
		estimatedCost:   opts.EstimatedCostPerQuery,
		upstreamTimeout: timeout,
		upstreamSem:     semaphore.NewWeighted(maxConcurrency),
	}
}

// Admit 对一次查询执行完整准入判定并返回结果。
//
// 上游失败不入账也不写缓存。缓存或向量化故障降级为直通上游，
// 不拒绝请求。限流存储故障按超限处理（宁可误拒，不可放开闸门）。
func (g *Gateway) Admit(ctx context.Context, clientKey, query string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "admission.Admit")
	defer span.End()
	span.SetAttributes(attribute.String("admission.client_key", clientKey))

	// 限流最先判定，被拒的请求已在 CheckAndIncrement 内计数
	allowed, status, err := g.limiter.CheckAndIncrement(ctx, clientKey)
	if err != nil {
		span.RecordError(err)
		metrics.AdmissionDecisions.WithLabelValues("rate_limited").Inc()
		logger.Error(ctx, "rate limit store failed, rejecting request", err)
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "rate limit store unavailable")
	}
	if !allowed {
		if status != nil && status.Minute.Exceeded() {
			metrics.RateLimitRejections.WithLabelValues("minute").Inc()
		}
		if status != nil && status.Day.Exceeded() {
			metrics.RateLimitRejections.WithLabelValues("day").Inc()
		}
		metrics.AdmissionDecisions.WithLabelValues("rate_limited").Inc()
		return nil, errors.New(errors.CodeRateLimited, "rate limit exceeded").
			WithDetail(rateLimitDetail(status))
	}

	// 向量化失败时缓存不可用，降级为直通上游
	embedding := g.embed(ctx, query)

	if embedding != nil {
		payload, hit, err := g.cache.Lookup(ctx, embedding)
		if err != nil {
			span.RecordError(err)
			logger.Warn(ctx, "semantic cache lookup failed, bypassing cache", "error", err.Error())
		} else if hit {
			metrics.AdmissionDecisions.WithLabelValues("cache_hit").Inc()
			span.SetAttributes(attribute.String("admission.source", string(SourceCache)))
			return &Result{Answer: payload, Source: SourceCache}, nil
		}
	}

	// 预算预留在上游调用前判定，缓存命中不消耗预算
	ok, stats := g.ledger.Reserve(g.estimatedCost)
	if !ok {
		metrics.AdmissionDecisions.WithLabelValues("budget_exceeded").Inc()
		span.SetAttributes(attribute.Float64("budget.remaining", stats.RemainingBudget))
		return nil, errors.ErrBudgetExceeded
	}

	completion, err := g.callUpstream(ctx, query)
	if err != nil {
		// 上游失败不 Commit：未产生成本的调用不得占用预算
		span.RecordError(err)
		metrics.AdmissionDecisions.WithLabelValues("upstream_error").Inc()
		return nil, errors.Wrap(err, errors.CodeUpstreamUnavailable, "upstream provider unavailable")
	}

	g.settle(ctx, clientKey, query, embedding, completion)

	metrics.AdmissionDecisions.WithLabelValues("served").Inc()
	span.SetAttributes(
		attribute.String("admission.source", string(SourceUpstream)),
		attribute.Float64("admission.cost", completion.Cost),
	)
	return &Result{
		Answer: []byte(completion.Answer),
		Source: SourceUpstream,
		Cost:   completion.Cost,
		Model:  completion.Model,
	}, nil
}

// rateLimitDetail 被拒请求的窗口状态：两个窗口各自的计数、上限与重置时间
func rateLimitDetail(status *redis.Status) string {
	if status == nil {
		return ""
	}
	return fmt.Sprintf(
		"minute window %d/%d resets at %s; daily window %d/%d resets at %s",
		status.Minute.Count, status.Minute.Limit, status.Minute.ResetAt.UTC().Format(time.RFC3339),
		status.Day.Count, status.Day.Limit, status.Day.ResetAt.UTC().Format(time.RFC3339),
	)
}

// embed 计算查询向量，失败返回 nil。同一文本的并发请求只发起一次调用。
func (g *Gateway) embed(ctx context.Context, query string) []float32 {
	if g.embedder == nil {
		return nil
	}

	v, err, _ := g.embedGroup.Do(query, func() (interface{}, error) {
		vecs, err := g.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, errors.New(errors.CodeEmbeddingFailed, "embedding service returned no vectors")
		}
		return vecs[0], nil
	})
	if err != nil {
		logger.Warn(ctx, "embedding failed, semantic cache disabled for this request", "error", err.Error())
		return nil
	}
	return v.([]float32)
}

// callUpstream 在并发上限与超时约束下调用上游
func (g *Gateway) callUpstream(ctx context.Context, query string) (*llm.Completion, error) {
	if err := g.upstreamSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.upstreamSem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, g.upstreamTimeout)
	defer cancel()

	start := time.Now()
	completion, err := g.upstream.Complete(callCtx, query)
	if err != nil {
		metrics.UpstreamCallTotal.WithLabelValues("", "", "error").Inc()
		return nil, err
	}

	metrics.UpstreamCallTotal.WithLabelValues(completion.Provider, completion.Model, "ok").Inc()
	metrics.UpstreamCallDuration.WithLabelValues(completion.Provider, completion.Model).
		Observe(time.Since(start).Seconds())
	return completion, nil
}

// settle 上游成功后的收尾：成本入账、流水落库、缓存写入。
// 缓存写入失败只降级，本次结果照常返回。
func (g *Gateway) settle(ctx context.Context, clientKey, query string, embedding []float32, completion *llm.Completion) {
	g.ledger.Commit(completion.Cost)
	metrics.UpstreamSpendTotal.WithLabelValues(completion.Provider, completion.Model).Add(completion.Cost)

	g.recorder.Record(ctx, budget.UsageInput{
		ClientKey:        clientKey,
		Provider:         completion.Provider,
		Model:            completion.Model,
		TokensPrompt:     completion.TokensPrompt,
		TokensCompletion: completion.TokensCompletion,
		CostMicros:       int64(completion.Cost * 1e6),
		DurationMs:       int(completion.Duration.Milliseconds()),
	})

	if embedding == nil {
		return
	}
	if err := g.cache.Store(ctx, uuid.NewString(), query, embedding, []byte(completion.Answer)); err != nil {
		logger.Warn(ctx, "failed to store response in semantic cache", "error", err.Error())
	}
}
