// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Redis         RedisConfig         `yaml:"redis" mapstructure:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres" mapstructure:"postgres"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Admission     AdmissionConfig     `yaml:"admission" mapstructure:"admission"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// PostgresConfig PostgreSQL 配置（用量审计流水）
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LLMConfig 上游 LLM 提供商配置
type LLMConfig struct {
	Provider             string        `yaml:"provider" mapstructure:"provider"`
	APIKey               string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL              string        `yaml:"base_url" mapstructure:"base_url"`
	Model                string        `yaml:"model" mapstructure:"model"`
	MaxTokens            int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature          float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout              time.Duration `yaml:"timeout" mapstructure:"timeout"`
	PromptPricePer1K     float64       `yaml:"prompt_price_per_1k" mapstructure:"prompt_price_per_1k"`
	CompletionPricePer1K float64       `yaml:"completion_price_per_1k" mapstructure:"completion_price_per_1k"`
}

// AdmissionConfig 查询准入配置
type AdmissionConfig struct {
	RateLimit RateLimitConfig     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Budget    BudgetConfig        `yaml:"budget" mapstructure:"budget"`
	Cache     SemanticCacheConfig `yaml:"cache" mapstructure:"cache"`
	Upstream  UpstreamConfig      `yaml:"upstream" mapstructure:"upstream"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" mapstructure:"per_minute"`
	PerDay    int `yaml:"per_day" mapstructure:"per_day"`
}

// BudgetConfig 成本预算配置
type BudgetConfig struct {
	// DailyLimit 当日成本上限（货币单位无关）
	DailyLimit float64 `yaml:"daily_limit" mapstructure:"daily_limit"`
	// EstimatedCostPerQuery 预留时使用的单次查询成本估计
	EstimatedCostPerQuery float64 `yaml:"estimated_cost_per_query" mapstructure:"estimated_cost_per_query"`
	// MaxQueriesPerDay 当日最大查询数，0 表示不限制
	MaxQueriesPerDay int64 `yaml:"max_queries_per_day" mapstructure:"max_queries_per_day"`
}

// SemanticCacheConfig 语义缓存配置
type SemanticCacheConfig struct {
	// Backend 缓存后端: memory 或 milvus
	Backend string `yaml:"backend" mapstructure:"backend"`
	// SimilarityThreshold 命中阈值 (0-1)
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	// Capacity 最大条目数（memory 后端）
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
	// TTL 条目存活时间，0 表示不过期
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// UpstreamConfig 上游调用约束
type UpstreamConfig struct {
	// Timeout 单次上游调用超时
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MaxConcurrency 上游并发上限
	MaxConcurrency int64 `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
