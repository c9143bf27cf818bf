package config

import "time"

// Default value constants.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBName = "shortcut"

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "shortcut-ingest"

	DefaultMilvusAddr       = "localhost:19530"
	DefaultOpenSearchAddr   = "http://localhost:9200"
	DefaultMinIOEndpoint    = "localhost:9000"
	DefaultEmbeddingDim     = 1536
	DefaultCollectionPrefix = "shortcut_"
	DefaultIndexPrefix      = "shortcut-"

	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultHyDEModel      = "gpt-4o-mini"
	DefaultGradingModel   = "gpt-4o-mini"
	DefaultAnalysisModel  = "gpt-4o"
	DefaultFallbackModel  = "gpt-3.5-turbo"
	DefaultParseModel     = "gpt-4o-mini"

	DefaultRerankModel   = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	DefaultMaxDocChars   = 1000
	DefaultRerankTimeout = 10 * time.Second

	DefaultMaxInputChars      = 2000
	DefaultFusionAlpha        = 0.7
	DefaultTopK               = 5
	DefaultGradingCutoff      = 0.3
	DefaultRewriteThreshold   = 0.5
	DefaultMaxRetrievalRounds = 2
	DefaultHighFilterRatioPct = 80.0
	DefaultRiskMediumFloor    = 40
	DefaultRiskHighFloor      = 75

	DefaultSessionDailyLimit  = 50
	DefaultSessionHourlyLimit = 10
	DefaultIPPerMinuteLimit   = 20
	DefaultIPBlockDuration    = 600 * time.Second
	DefaultRateLimitTimezone  = "Asia/Seoul"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 4
)

// ApplyDefaults fills every zero-value field in cfg with the service default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling raw config data and before Validate().
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// The SSE stream can stay open for the full analysis; keep generous.
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 25
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "shortcut:"
	}

	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// Search backends
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.EmbeddingDim == 0 {
		cfg.Milvus.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.Milvus.CollectionPrefix == "" {
		cfg.Milvus.CollectionPrefix = DefaultCollectionPrefix
	}
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultIndexPrefix
	}

	// MinIO
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "shortcut-reports"
	}

	// OpenAI
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.OpenAI.HyDEModel == "" {
		cfg.OpenAI.HyDEModel = DefaultHyDEModel
	}
	if cfg.OpenAI.GradingModel == "" {
		cfg.OpenAI.GradingModel = DefaultGradingModel
	}
	if cfg.OpenAI.AnalysisModel == "" {
		cfg.OpenAI.AnalysisModel = DefaultAnalysisModel
	}
	if cfg.OpenAI.FallbackModel == "" {
		cfg.OpenAI.FallbackModel = DefaultFallbackModel
	}
	if cfg.OpenAI.ParseModel == "" {
		cfg.OpenAI.ParseModel = DefaultParseModel
	}
	if cfg.OpenAI.RequestTimeout == 0 {
		cfg.OpenAI.RequestTimeout = 60 * time.Second
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 5
	}
	if cfg.OpenAI.InitialBackoff == 0 {
		cfg.OpenAI.InitialBackoff = 1 * time.Second
	}
	if cfg.OpenAI.MaxBackoff == 0 {
		cfg.OpenAI.MaxBackoff = 30 * time.Second
	}

	// Rerank
	if cfg.Rerank.Model == "" {
		cfg.Rerank.Model = DefaultRerankModel
	}
	if cfg.Rerank.Timeout == 0 {
		cfg.Rerank.Timeout = DefaultRerankTimeout
	}
	if cfg.Rerank.MaxDocChars == 0 {
		cfg.Rerank.MaxDocChars = DefaultMaxDocChars
	}

	// Pipeline
	if cfg.Pipeline.MaxInputChars == 0 {
		cfg.Pipeline.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.Pipeline.FusionAlpha == 0 {
		cfg.Pipeline.FusionAlpha = DefaultFusionAlpha
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = DefaultTopK
	}
	if cfg.Pipeline.GradingCutoff == 0 {
		cfg.Pipeline.GradingCutoff = DefaultGradingCutoff
	}
	if cfg.Pipeline.RewriteThreshold == 0 {
		cfg.Pipeline.RewriteThreshold = DefaultRewriteThreshold
	}
	if cfg.Pipeline.MaxRetrievalRounds == 0 {
		cfg.Pipeline.MaxRetrievalRounds = DefaultMaxRetrievalRounds
	}
	if cfg.Pipeline.HighFilterRatioPct == 0 {
		cfg.Pipeline.HighFilterRatioPct = DefaultHighFilterRatioPct
	}
	if cfg.Pipeline.RiskMediumFloor == 0 {
		cfg.Pipeline.RiskMediumFloor = DefaultRiskMediumFloor
	}
	if cfg.Pipeline.RiskHighFloor == 0 {
		cfg.Pipeline.RiskHighFloor = DefaultRiskHighFloor
	}
	if cfg.Pipeline.ExpansionCacheTTL == 0 {
		cfg.Pipeline.ExpansionCacheTTL = 1 * time.Hour
	}

	// Rate limit
	if cfg.RateLimit.SessionDailyLimit == 0 {
		cfg.RateLimit.SessionDailyLimit = DefaultSessionDailyLimit
	}
	if cfg.RateLimit.SessionHourlyLimit == 0 {
		cfg.RateLimit.SessionHourlyLimit = DefaultSessionHourlyLimit
	}
	if cfg.RateLimit.IPPerMinuteLimit == 0 {
		cfg.RateLimit.IPPerMinuteLimit = DefaultIPPerMinuteLimit
	}
	if cfg.RateLimit.IPBlockDuration == 0 {
		cfg.RateLimit.IPBlockDuration = DefaultIPBlockDuration
	}
	if cfg.RateLimit.Timezone == "" {
		cfg.RateLimit.Timezone = DefaultRateLimitTimezone
	}

	// Worker
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
