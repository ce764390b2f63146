package budget

import (
	"context"
	"strings"

	"beanwise-ai-api/internal/domain/entity"
	"beanwise-ai-api/internal/domain/repository"
	"beanwise-ai-api/pkg/logger"
)

// UsageInput 一次已完成上游调用的用量
type UsageInput struct {
	ClientKey        string
	Provider         string
	Model            string
	TokensPrompt     int
	TokensCompletion int
	CostMicros       int64
	DurationMs       int
}

// UsageRecorder 将已入账的上游调用落成流水（尽力而为，不影响请求结果）
type UsageRecorder struct {
	usageRepo repository.QueryUsageEventRepository
}

func NewUsageRecorder(usageRepo repository.QueryUsageEventRepository) *UsageRecorder {
	return &UsageRecorder{usageRepo: usageRepo}
}

// Record 写入一条用量流水。仓储未配置或写入失败仅记日志。
func (r *UsageRecorder) Record(ctx context.Context, in UsageInput) {
	if r == nil || r.usageRepo == nil {
		return
	}
	if in.TokensPrompt < 0 || in.TokensCompletion < 0 || in.CostMicros < 0 {
		return
	}

	evt := &entity.QueryUsageEvent{
		ClientKey:        strings.TrimSpace(in.ClientKey),
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.TokensPrompt,
		TokensCompletion: in.TokensCompletion,
		CostMicros:       in.CostMicros,
		DurationMs:       in.DurationMs,
	}
	if err := r.usageRepo.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to record usage event", "error", err.Error())
	}
}
