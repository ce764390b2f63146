// Package entity 定义领域实体
package entity

import "time"

// QueryUsageEvent 一次已完成上游调用的用量流水。
// 成本以微单位 (1e-6 货币单位) 整数记录，与账本口径一致。
type QueryUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientKey        string    `json:"client_key" gorm:"type:varchar(64);index;not null"`
	Provider         string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model            string    `json:"model" gorm:"type:varchar(64);not null"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	CostMicros       int64     `json:"cost_micros" gorm:"not null;default:0"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (QueryUsageEvent) TableName() string {
	return "query_usage_events"
}
