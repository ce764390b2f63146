// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"beanwise-ai-api/internal/infrastructure/semcache"
)

// CacheStore 基于 Milvus 的语义缓存存储，实现 semcache.Store。
// 检索走 HNSW/COSINE 索引；过期通过 created_at 过滤，由 TTL 而非容量控制规模。
// 条目级命中计数仅由 memory 后端维护，本实现的 Touch 为空操作。
type CacheStore struct {
	client *Client
	ttl    time.Duration
	dim    int
	now    func() time.Time
}

// NewCacheStore 创建缓存存储并确保集合与索引就绪
func NewCacheStore(ctx context.Context, client *Client, ttl time.Duration, dimension int) (*CacheStore, error) {
	s := &CacheStore{
		client: client,
		ttl:    ttl,
		dim:    dimension,
		now:    time.Now,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection 集合不存在则创建并建 HNSW 索引，随后加载
func (s *CacheStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, CollectionSemanticCache)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	collName := s.client.CollectionName(CollectionSemanticCache)

	if !exists {
		schema := SemanticCacheSchema(s.dim)
		schema.CollectionName = collName

		if err := s.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(
			entity.COSINE,
			s.client.config.HNSWM,
			s.client.config.HNSWEfConstruction,
		)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := s.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return s.client.LoadCollection(ctx, CollectionSemanticCache)
}

// freshExpr 仅检索未过期条目的过滤表达式
func (s *CacheStore) freshExpr() string {
	if s.ttl <= 0 {
		return ""
	}
	cutoff := s.now().UTC().Add(-s.ttl).Unix()
	return fmt.Sprintf("created_at >= %d", cutoff)
}

// Search 近邻检索 Top-1
func (s *CacheStore) Search(ctx context.Context, embedding []float32) (*semcache.Match, error) {
	ctx, span := tracer.Start(ctx, "milvus.CacheStore.Search")
	defer span.End()

	collName := s.client.CollectionName(CollectionSemanticCache)

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := s.client.milvus.Search(ctx,
		collName,
		nil,
		s.freshExpr(),
		[]string{"id", "query_text", "payload", "created_at"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"vector",
		entity.COSINE,
		1,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	for _, result := range results {
		if result.ResultCount == 0 {
			continue
		}

		e := &semcache.Entry{}
		if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
			e.ID = idCol.Data()[0]
		}
		if qCol, ok := result.Fields.GetColumn("query_text").(*entity.ColumnVarChar); ok {
			e.Query = qCol.Data()[0]
		}
		if pCol, ok := result.Fields.GetColumn("payload").(*entity.ColumnVarChar); ok {
			e.Payload = []byte(pCol.Data()[0])
		}
		if tCol, ok := result.Fields.GetColumn("created_at").(*entity.ColumnInt64); ok {
			e.CreatedAt = time.Unix(tCol.Data()[0], 0).UTC()
		}

		score := float64(result.Scores[0])
		span.SetAttributes(attribute.Float64("cache.score", score))
		return &semcache.Match{Entry: e, Score: score}, nil
	}

	return nil, nil
}

// Touch 空操作：Milvus 后端不维护条目级命中计数
func (s *CacheStore) Touch(ctx context.Context, id string) error {
	return nil
}

// Insert 写入一个缓存条目
func (s *CacheStore) Insert(ctx context.Context, e *semcache.Entry) error {
	ctx, span := tracer.Start(ctx, "milvus.CacheStore.Insert",
		trace.WithAttributes(attribute.String("cache.id", e.ID)))
	defer span.End()

	collName := s.client.CollectionName(CollectionSemanticCache)

	idCol := entity.NewColumnVarChar("id", []string{e.ID})
	vectorCol := entity.NewColumnFloatVector("vector", s.dim, [][]float32{e.Embedding})
	queryCol := entity.NewColumnVarChar("query_text", []string{e.Query})
	payloadCol := entity.NewColumnVarChar("payload", []string{string(e.Payload)})
	createdCol := entity.NewColumnInt64("created_at", []int64{e.CreatedAt.Unix()})

	if _, err := s.client.milvus.Insert(ctx, collName, "",
		idCol, vectorCol, queryCol, payloadCol, createdCol); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Clear 删除全部条目
func (s *CacheStore) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.CacheStore.Clear")
	defer span.End()

	collName := s.client.CollectionName(CollectionSemanticCache)

	if err := s.client.milvus.Delete(ctx, collName, "", "created_at >= 0"); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Len 当前条目数（集合统计值，刷新有延迟）
func (s *CacheStore) Len(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "milvus.CacheStore.Len")
	defer span.End()

	collName := s.client.CollectionName(CollectionSemanticCache)

	stats, err := s.client.milvus.GetCollectionStatistics(ctx, collName)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}

	if raw, ok := stats["row_count"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}
	}
	return 0, nil
}
