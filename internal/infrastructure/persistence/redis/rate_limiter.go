// Package redis 提供基于 Redis 的客户端限流器实现
package redis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// 限流键前缀，窗口对齐过期，便于外部直接以模式枚举活跃客户端
const (
	MinuteKeyPrefix = "ratelimit:minute:"
	DailyKeyPrefix  = "ratelimit:daily:"
)

// RateLimiter 双窗口（分钟/自然日 UTC）固定窗口限流器。
// INCR 后判定，被拒绝的请求同样计入窗口，避免重试风暴把计数顶回阈值以下。
type RateLimiter struct {
	client    *Client
	perMinute int
	perDay    int
	now       func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client, perMinute, perDay int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if perDay <= 0 {
		perDay = 200
	}
	return &RateLimiter{
		client:    client,
		perMinute: perMinute,
		perDay:    perDay,
		now:       time.Now,
	}
}

// WindowStatus 单个窗口的状态
type WindowStatus struct {
	Count   int64     `json:"count"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Exceeded 该窗口是否超限
func (w WindowStatus) Exceeded() bool {
	return w.Count > int64(w.Limit)
}

// Status 单个客户端的限流状态
type Status struct {
	ClientKey string       `json:"client_key"`
	Minute    WindowStatus `json:"minute"`
	Day       WindowStatus `json:"day"`
}

// Allowed 两个窗口均未超限
func (s *Status) Allowed() bool {
	return !s.Minute.Exceeded() && !s.Day.Exceeded()
}

// ActiveClients 各窗口当前被追踪的客户端数
type ActiveClients struct {
	MinuteClients int `json:"minute_clients"`
	DayClients    int `json:"day_clients"`
}

// CheckAndIncrement 原子递增两个窗口计数并在递增后判定。
// Redis 不可达时返回错误（fail-closed，由调用方拒绝请求），不做静默放行。
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, clientKey string) (bool, *Status, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.CheckAndIncrement")
	span.SetAttributes(attribute.String("ratelimit.client_key", clientKey))
	defer span.End()

	now := l.now().UTC()
	minuteKey := MinuteKeyPrefix + clientKey
	dailyKey := DailyKeyPrefix + clientKey

	pipe := l.client.rdb.TxPipeline()
	minuteCmd := pipe.Incr(ctx, minuteKey)
	// NX：仅在键尚无 TTL 时设置，保证过期时刻与窗口边界对齐
	pipe.ExpireNX(ctx, minuteKey, nextMinute(now).Sub(now))
	dailyCmd := pipe.Incr(ctx, dailyKey)
	pipe.ExpireNX(ctx, dailyKey, nextUTCMidnight(now).Sub(now))

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, nil, fmt.Errorf("rate limit store unavailable: %w", err)
	}

	status := &Status{
		ClientKey: clientKey,
		Minute: WindowStatus{
			Count:   minuteCmd.Val(),
			Limit:   l.perMinute,
			ResetAt: nextMinute(now),
		},
		Day: WindowStatus{
			Count:   dailyCmd.Val(),
			Limit:   l.perDay,
			ResetAt: nextUTCMidnight(now),
		},
	}

	allowed := status.Allowed()
	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", allowed),
		attribute.Int64("ratelimit.minute_count", status.Minute.Count),
		attribute.Int64("ratelimit.day_count", status.Day.Count),
	)
	return allowed, status, nil
}

// Status 只读查询单个客户端的窗口状态，不递增计数
func (l *RateLimiter) Status(ctx context.Context, clientKey string) (*Status, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Status")
	span.SetAttributes(attribute.String("ratelimit.client_key", clientKey))
	defer span.End()

	now := l.now().UTC()

	pipe := l.client.rdb.Pipeline()
	minuteCmd := pipe.Get(ctx, MinuteKeyPrefix+clientKey)
	dailyCmd := pipe.Get(ctx, DailyKeyPrefix+clientKey)

	if _, err := pipe.Exec(ctx); err != nil && !IsNil(err) {
		span.RecordError(err)
		return nil, fmt.Errorf("rate limit store unavailable: %w", err)
	}

	minuteCount, _ := minuteCmd.Int64()
	dailyCount, _ := dailyCmd.Int64()

	return &Status{
		ClientKey: clientKey,
		Minute: WindowStatus{
			Count:   minuteCount,
			Limit:   l.perMinute,
			ResetAt: nextMinute(now),
		},
		Day: WindowStatus{
			Count:   dailyCount,
			Limit:   l.perDay,
			ResetAt: nextUTCMidnight(now),
		},
	}, nil
}

// ActiveClients 枚举各窗口当前被追踪的客户端数（管理端观测用）
func (l *RateLimiter) ActiveClients(ctx context.Context) (*ActiveClients, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.ActiveClients")
	defer span.End()

	minuteKeys, err := l.client.ScanKeys(ctx, MinuteKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("rate limit store unavailable: %w", err)
	}
	dailyKeys, err := l.client.ScanKeys(ctx, DailyKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("rate limit store unavailable: %w", err)
	}

	return &ActiveClients{
		MinuteClients: len(minuteKeys),
		DayClients:    len(dailyKeys),
	}, nil
}

// ResetAll 删除全部限流计数，返回删除的键数。幂等：空集上调用返回 0。
func (l *RateLimiter) ResetAll(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.ResetAll")
	defer span.End()

	keys, err := l.client.ScanKeys(ctx, "ratelimit:*")
	if err != nil {
		return 0, fmt.Errorf("rate limit store unavailable: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := l.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("rate limit store unavailable: %w", err)
	}

	span.SetAttributes(attribute.Int("ratelimit.keys_removed", len(keys)))
	return len(keys), nil
}

// nextMinute 下一个分钟窗口边界
func nextMinute(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

// nextUTCMidnight 下一个 UTC 零点
func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
