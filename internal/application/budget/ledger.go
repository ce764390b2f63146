// Package budget 提供当日成本账本与预算准入
package budget

import (
	"math"
	"sync/atomic"
	"time"

	"beanwise-ai-api/pkg/metrics"
)

// Ledger 进程级当日成本账本（UTC 自然日）。
// 成本以微单位 (1e-6 货币单位) 的 int64 原子量维护，Reserve/Commit 均无锁。
//
// Reserve 是乐观准入而非真正的预留：并发的 Reserve 可能同时通过，
// 账本最多超出上限一次在途调用的成本。这是有意的取舍——实际成本在上游
// 返回前未知，用互斥锁收紧只会把所有上游调用串行化。不要改成硬锁。
type Ledger struct {
	limitMicros int64
	// maxQueries 当日最大查询数，0 表示不限制
	maxQueries int64

	day        atomic.Int64
	costMicros atomic.Int64
	queries    atomic.Int64

	now func() time.Time
}

// Stats 账本统计快照
type Stats struct {
	// CurrentCost 当日累计成本
	CurrentCost float64 `json:"current_cost"`
	// DailyLimit 当日成本上限
	DailyLimit float64 `json:"daily_limit"`
	// RemainingBudget 剩余预算，不为负
	RemainingBudget float64 `json:"remaining_budget"`
	// QueryCount 当日已提交查询数
	QueryCount int64 `json:"query_count"`
	// RemainingQueries 剩余查询数，-1 表示不限制
	RemainingQueries int64 `json:"remaining_queries"`
	// Date 当日日期 (UTC)
	Date string `json:"date"`
}

// NewLedger 创建账本
func NewLedger(dailyLimit float64, maxQueriesPerDay int64) *Ledger {
	l := &Ledger{
		limitMicros: toMicros(dailyLimit),
		maxQueries:  maxQueriesPerDay,
		now:         time.Now,
	}
	l.day.Store(dayNumber(l.now().UTC()))
	return l
}

// toMicros 货币单位转微单位
func toMicros(v float64) int64 {
	return int64(math.Round(v * 1e6))
}

// fromMicros 微单位转货币单位
func fromMicros(v int64) float64 {
	return float64(v) / 1e6
}

// dayNumber UTC 自然日序号
func dayNumber(t time.Time) int64 {
	return t.Unix() / 86400
}

// rollover 检测 UTC 日期翻转。对日序号做 CAS，胜者负责清零计数；
// 跨越翻转瞬间的并发访问由此对同一天的账目达成一致。
func (l *Ledger) rollover() {
	today := dayNumber(l.now().UTC())
	for {
		cur := l.day.Load()
		if cur == today {
			return
		}
		if l.day.CompareAndSwap(cur, today) {
			l.costMicros.Store(0)
			l.queries.Store(0)
			return
		}
	}
}

// Reserve 预算准入检查，在调用上游之前执行。
// 累计成本加上估计成本超过上限、或当日查询数已达上限时拒绝。
// 不产生任何持有：实际成本由 Commit 记账。
func (l *Ledger) Reserve(estimatedCost float64) (bool, *Stats) {
	l.rollover()

	if l.maxQueries > 0 && l.queries.Load() >= l.maxQueries {
		return false, l.snapshot()
	}

	cur := l.costMicros.Load()
	if cur+toMicros(estimatedCost) > l.limitMicros {
		return false, l.snapshot()
	}
	return true, l.snapshot()
}

// Commit 记录一次上游调用的实际成本并递增查询数。
// 实际成本与估计不一致也无条件入账——已准入的在途调用允许完成，
// 账本因此可能短暂超过上限，幅度不超过一次在途调用的成本。
func (l *Ledger) Commit(actualCost float64) {
	l.rollover()

	l.costMicros.Add(toMicros(actualCost))
	l.queries.Add(1)
	metrics.BudgetRemaining.Set(l.remaining())
}

// Seed 回灌当日已入账的成本与查询数（进程启动时从流水表读取）
func (l *Ledger) Seed(costMicros int64, queries int64) {
	l.rollover()

	l.costMicros.Store(costMicros)
	l.queries.Store(queries)
	metrics.BudgetRemaining.Set(l.remaining())
}

// GetStats 返回账本统计
func (l *Ledger) GetStats() *Stats {
	l.rollover()
	return l.snapshot()
}

// ResetDaily 立即清零当日成本与查询数（管理操作，幂等）
func (l *Ledger) ResetDaily() {
	l.day.Store(dayNumber(l.now().UTC()))
	l.costMicros.Store(0)
	l.queries.Store(0)
	metrics.BudgetRemaining.Set(l.remaining())
}

// remaining 剩余预算，不为负
func (l *Ledger) remaining() float64 {
	rem := l.limitMicros - l.costMicros.Load()
	if rem < 0 {
		rem = 0
	}
	return fromMicros(rem)
}

// snapshot 组装统计快照
func (l *Ledger) snapshot() *Stats {
	queries := l.queries.Load()

	remainingQueries := int64(-1)
	if l.maxQueries > 0 {
		remainingQueries = l.maxQueries - queries
		if remainingQueries < 0 {
			remainingQueries = 0
		}
	}

	return &Stats{
		CurrentCost:      fromMicros(l.costMicros.Load()),
		DailyLimit:       fromMicros(l.limitMicros),
		RemainingBudget:  l.remaining(),
		QueryCount:       queries,
		RemainingQueries: remainingQueries,
		Date:             l.now().UTC().Format("2006-01-02"),
	}
}
