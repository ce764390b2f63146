package dto

// RateLimitOverview 限流全局状态
type RateLimitOverview struct {
	PerMinuteLimit int `json:"per_minute_limit"`
	PerDayLimit    int `json:"per_day_limit"`
	MinuteClients  int `json:"minute_clients"`
	DayClients     int `json:"day_clients"`
}

// ResetResult 管理重置操作结果
type ResetResult struct {
	Target string `json:"target"`
	// Cleared 被清除的键或条目数（账本重置时省略）
	Cleared int    `json:"cleared,omitempty"`
	Status  string `json:"status"`
	// Warning 破坏性操作的后果提示
	Warning string `json:"warning,omitempty"`
}
