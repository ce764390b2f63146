// Package semcache 提供基于向量相似度的语义缓存。
// 以查询向量做近邻匹配而非精确键：近似改写共享同一条目，语义不同的查询不得碰撞。
package semcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"beanwise-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("semcache")

// Entry 缓存条目。写入后除命中计数与访问时间外不再变更。
type Entry struct {
	ID        string
	Query     string
	Embedding []float32
	Payload   []byte
	CreatedAt time.Time
	LastUsed  time.Time
	Hits      int64
}

// Match 近邻检索结果
type Match struct {
	Entry *Entry
	Score float64
}

// Store 条目存储端口。检索算法（线性扫描或 ANN 索引）是实现细节，
// 换后端时保持本接口不变。
type Store interface {
	// Search 返回与向量最相似的条目，缓存为空时返回 nil
	Search(ctx context.Context, embedding []float32) (*Match, error)
	// Insert 写入一个条目，容量满时由实现先行淘汰
	Insert(ctx context.Context, entry *Entry) error
	// Touch 记录一次命中（命中计数与 LRU 访问时间）
	Touch(ctx context.Context, id string) error
	// Clear 清空全部条目
	Clear(ctx context.Context) error
	// Len 当前条目数
	Len(ctx context.Context) (int, error)
}

// Stats 缓存统计。HitRate 在零查询时定义为 0。
type Stats struct {
	CachedQueries int     `json:"cached_queries"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRate       float64 `json:"hit_rate"`
}

// Cache 语义缓存。相似度判定与命中统计在此层，条目存取在 Store。
type Cache struct {
	store     Store
	threshold float64
	dimension int

	hits   atomic.Int64
	misses atomic.Int64
}

// New 创建语义缓存
func New(store Store, threshold float64, dimension int) *Cache {
	return &Cache{
		store:     store,
		threshold: threshold,
		dimension: dimension,
	}
}

// Lookup 检索与查询向量最相似的条目。
// 最高相似度达到阈值即命中；存储层故障原样返回错误，由调用方降级。
func (c *Cache) Lookup(ctx context.Context, embedding []float32) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "semcache.Lookup")
	defer span.End()

	if len(embedding) != c.dimension {
		return nil, false, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), c.dimension)
	}

	match, err := c.store.Search(ctx, embedding)
	if err != nil {
		span.RecordError(err)
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("semantic cache search failed: %w", err)
	}

	if match != nil && match.Score >= c.threshold {
		c.hits.Add(1)
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		span.SetAttributes(
			attribute.Bool("cache.hit", true),
			attribute.Float64("cache.score", match.Score),
		)
		// 命中计数失败不影响返回缓存结果
		_ = c.store.Touch(ctx, match.Entry.ID)
		return match.Entry.Payload, true, nil
	}

	c.misses.Add(1)
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))
	return nil, false, nil
}

// Store 写入一条 (查询, 向量, 响应)。维度不符的向量直接拒绝。
func (c *Cache) Store(ctx context.Context, id, query string, embedding []float32, payload []byte) error {
	ctx, span := tracer.Start(ctx, "semcache.Store")
	defer span.End()

	if len(embedding) != c.dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), c.dimension)
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:        id,
		Query:     query,
		Embedding: embedding,
		Payload:   payload,
		CreatedAt: now,
		LastUsed:  now,
	}

	if err := c.store.Insert(ctx, entry); err != nil {
		span.RecordError(err)
		return fmt.Errorf("semantic cache insert failed: %w", err)
	}

	if n, err := c.store.Len(ctx); err == nil {
		metrics.CacheEntries.Set(float64(n))
	}
	return nil
}

// GetStats 返回缓存统计
func (c *Cache) GetStats(ctx context.Context) (*Stats, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic cache stats failed: %w", err)
	}

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return &Stats{
		CachedQueries: n,
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRate:       hitRate,
	}, nil
}

// Clear 清空缓存并归零命中统计（管理操作，幂等）
func (c *Cache) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "semcache.Clear")
	defer span.End()

	if err := c.store.Clear(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("semantic cache clear failed: %w", err)
	}

	c.hits.Store(0)
	c.misses.Store(0)
	metrics.CacheEntries.Set(0)
	return nil
}
