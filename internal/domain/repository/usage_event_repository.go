// Package repository 定义仓储接口
package repository

import (
	"context"
	"time"

	"beanwise-ai-api/internal/domain/entity"
)

// QueryUsageEventRepository 用量流水仓储接口
type QueryUsageEventRepository interface {
	// Create 写入一条用量流水
	Create(ctx context.Context, event *entity.QueryUsageEvent) error
	// GetDailySpend 统计区间内累计成本（微单位）与查询数
	GetDailySpend(ctx context.Context, startInclusive, endExclusive time.Time) (costMicros int64, queries int64, err error)
}
