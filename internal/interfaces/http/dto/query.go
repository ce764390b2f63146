package dto

// QueryRequest 客户端查询请求
type QueryRequest struct {
	// Query 查询文本，如 "为什么我的手冲咖啡发苦"
	Query string `json:"query" binding:"required,min=1,max=2000"`
}

// QueryResponse 查询结果
type QueryResponse struct {
	Answer string `json:"answer"`
	// Source 回答来源: cache 或 upstream
	Source string `json:"source"`
	// Model 上游模型，缓存命中时省略
	Model string `json:"model,omitempty"`
	// Cost 本次入账成本，缓存命中时为 0
	Cost float64 `json:"cost"`
}
