// Package config defines all configuration structures for the
// ShortCut-Intelligence service.  No I/O or parsing logic lives here — only
// plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the analysis
// history store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.  Redis backs the rate
// limiter and the query-expansion cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	GroupID          string   `mapstructure:"group_id"`
	AutoOffsetReset  string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	TimeoutMS        int      `mapstructure:"timeout_ms"`
	ProducerRetries  int      `mapstructure:"producer_retries"`
	BatchSize        int      `mapstructure:"batch_size"`
	AutoCreateTopics bool     `mapstructure:"auto_create_topics"`
}

// OpenSearchConfig holds OpenSearch cluster connection parameters for the
// sparse (BM25) patent index.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// MilvusConfig holds Milvus vector-store connection parameters for the
// dense patent embedding index.
type MilvusConfig struct {
	Addr               string `mapstructure:"addr"`
	DBName             string `mapstructure:"db_name"`
	EmbeddingDim       int    `mapstructure:"embedding_dim"`
	IndexType          string `mapstructure:"index_type"`
	HNSWM              int    `mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `mapstructure:"hnsw_ef_construction"`
	CollectionPrefix   string `mapstructure:"collection_prefix"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters for
// exported analysis reports.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// OpenAIConfig holds model-provider parameters.  The API key is supplied by
// the environment at bootstrap; it is never read from disk at runtime.
type OpenAIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	HyDEModel      string        `mapstructure:"hyde_model"`
	GradingModel   string        `mapstructure:"grading_model"`
	AnalysisModel  string        `mapstructure:"analysis_model"`
	FallbackModel  string        `mapstructure:"fallback_model"`
	ParseModel     string        `mapstructure:"parse_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// RerankConfig holds the cross-encoder serving endpoint parameters.
type RerankConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxDocChars int           `mapstructure:"max_doc_chars"`
}

// PipelineConfig holds the tunables of the prior-art analysis pipeline.
type PipelineConfig struct {
	// MaxInputChars is the sandbox cap on user idea length.
	MaxInputChars int `mapstructure:"max_input_chars"`
	// FusionAlpha weights the dense score in the hybrid fusion
	// alpha*dense + (1-alpha)*sparse.
	FusionAlpha float64 `mapstructure:"fusion_alpha"`
	// TopK is the number of survivors handed to the analyst.
	TopK int `mapstructure:"top_k"`
	// GradingCutoff is the minimum grade a candidate must reach to survive.
	GradingCutoff float64 `mapstructure:"grading_cutoff"`
	// RewriteThreshold triggers one query rewrite when the average grade of
	// a round falls below it.
	RewriteThreshold float64 `mapstructure:"rewrite_threshold"`
	// MaxRetrievalRounds bounds the rewrite loop.  Hard limit; the loop
	// never runs more rounds regardless of grades.
	MaxRetrievalRounds int `mapstructure:"max_retrieval_rounds"`
	// HighFilterRatioPct is the WARN boundary for the cutoff-filter ratio.
	HighFilterRatioPct float64 `mapstructure:"high_filter_ratio_pct"`
	// RiskMediumFloor and RiskHighFloor bucket the 0-100 risk score.
	RiskMediumFloor int `mapstructure:"risk_medium_floor"`
	RiskHighFloor   int `mapstructure:"risk_high_floor"`
	// ExpansionCacheTTL bounds the Redis cache of query expansions.
	ExpansionCacheTTL time.Duration `mapstructure:"expansion_cache_ttl"`
}

// RateLimitConfig holds the sliding-window limits enforced per session and
// per client IP.
type RateLimitConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	SessionDailyLimit  int           `mapstructure:"session_daily_limit"`
	SessionHourlyLimit int           `mapstructure:"session_hourly_limit"`
	IPPerMinuteLimit   int           `mapstructure:"ip_per_minute_limit"`
	IPBlockDuration    time.Duration `mapstructure:"ip_block_duration"`
	// Timezone anchors the daily window keys (the service's user base is
	// KST-centric, matching the original deployment).
	Timezone string `mapstructure:"timezone"`
}

// WorkerConfig holds ingestion-worker execution parameters.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoffMS time.Duration `mapstructure:"retry_backoff_ms"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// Config is the root configuration structure for the entire service.
// Every infrastructure component and pipeline stage reads its settings from
// the relevant sub-struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Rerank     RerankConfig     `mapstructure:"rerank"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	// Milvus / OpenSearch
	if c.Milvus.Addr == "" {
		return fmt.Errorf("config: milvus.addr is required")
	}
	if len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address")
	}

	// OpenAI
	if c.OpenAI.EmbeddingModel == "" {
		return fmt.Errorf("config: openai.embedding_model is required")
	}
	if c.OpenAI.MaxRetries < 1 || c.OpenAI.MaxRetries > 5 {
		return fmt.Errorf("config: openai.max_retries %d is out of range [1, 5]", c.OpenAI.MaxRetries)
	}

	// Pipeline
	if c.Pipeline.FusionAlpha < 0 || c.Pipeline.FusionAlpha > 1 {
		return fmt.Errorf("config: pipeline.fusion_alpha %v is out of range [0, 1]", c.Pipeline.FusionAlpha)
	}
	if c.Pipeline.GradingCutoff < 0 || c.Pipeline.GradingCutoff > 1 {
		return fmt.Errorf("config: pipeline.grading_cutoff %v is out of range [0, 1]", c.Pipeline.GradingCutoff)
	}
	if c.Pipeline.RewriteThreshold < 0 || c.Pipeline.RewriteThreshold > 1 {
		return fmt.Errorf("config: pipeline.rewrite_threshold %v is out of range [0, 1]", c.Pipeline.RewriteThreshold)
	}
	if c.Pipeline.TopK < 1 {
		return fmt.Errorf("config: pipeline.top_k must be ≥ 1, got %d", c.Pipeline.TopK)
	}
	if c.Pipeline.MaxRetrievalRounds < 1 || c.Pipeline.MaxRetrievalRounds > 2 {
		return fmt.Errorf("config: pipeline.max_retrieval_rounds %d is out of range [1, 2]", c.Pipeline.MaxRetrievalRounds)
	}
	if c.Pipeline.RiskMediumFloor < 0 || c.Pipeline.RiskHighFloor > 100 ||
		c.Pipeline.RiskMediumFloor >= c.Pipeline.RiskHighFloor {
		return fmt.Errorf("config: pipeline risk floors (%d, %d) must satisfy 0 ≤ medium < high ≤ 100",
			c.Pipeline.RiskMediumFloor, c.Pipeline.RiskHighFloor)
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.SessionDailyLimit < 1 || c.RateLimit.SessionHourlyLimit < 1 || c.RateLimit.IPPerMinuteLimit < 1 {
			return fmt.Errorf("config: rate_limit limits must all be ≥ 1 when enabled")
		}
		if _, err := time.LoadLocation(c.RateLimit.Timezone); err != nil {
			return fmt.Errorf("config: rate_limit.timezone %q is invalid: %w", c.RateLimit.Timezone, err)
		}
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
