// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"beanwise-ai-api/internal/domain/entity"
)

// QueryUsageEventRepository 用量流水仓储
type QueryUsageEventRepository struct {
	client *Client
}

func NewQueryUsageEventRepository(client *Client) *QueryUsageEventRepository {
	return &QueryUsageEventRepository{client: client}
}

// Create 写入一条用量流水
func (r *QueryUsageEventRepository) Create(ctx context.Context, event *entity.QueryUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.QueryUsageEventRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create usage event: %w", err)
	}
	return nil
}

// GetDailySpend 统计时间区间内的累计成本（微单位）与查询数。
// 进程重启后用于回灌当日账本，使预算不会因重启而清零。
func (r *QueryUsageEventRepository) GetDailySpend(ctx context.Context, startInclusive, endExclusive time.Time) (costMicros int64, queries int64, err error) {
	ctx, span := tracer.Start(ctx, "postgres.QueryUsageEventRepository.GetDailySpend")
	defer span.End()

	db := r.client.db.WithContext(ctx)

	type row struct {
		Cost    int64
		Queries int64
	}
	var res row
	if err := db.Model(&entity.QueryUsageEvent{}).
		Where("created_at >= ? AND created_at < ?", startInclusive, endExclusive).
		Select("COALESCE(SUM(cost_micros),0) AS cost, COUNT(*) AS queries").
		Scan(&res).Error; err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("failed to get daily spend: %w", err)
	}
	return res.Cost, res.Queries, nil
}

// Migrate 确保流水表存在
func (r *QueryUsageEventRepository) Migrate() error {
	return r.client.db.AutoMigrate(&entity.QueryUsageEvent{})
}
