package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"no kafka brokers", func(c *Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"missing milvus addr", func(c *Config) { c.Milvus.Addr = "" }, "milvus.addr"},
		{"no opensearch addrs", func(c *Config) { c.OpenSearch.Addresses = nil }, "opensearch.addresses"},
		{"missing embedding model", func(c *Config) { c.OpenAI.EmbeddingModel = "" }, "openai.embedding_model"},
		{"too many retries", func(c *Config) { c.OpenAI.MaxRetries = 6 }, "openai.max_retries"},
		{"alpha above one", func(c *Config) { c.Pipeline.FusionAlpha = 1.5 }, "fusion_alpha"},
		{"cutoff below zero", func(c *Config) { c.Pipeline.GradingCutoff = -0.1 }, "grading_cutoff"},
		{"rewrite threshold above one", func(c *Config) { c.Pipeline.RewriteThreshold = 1.1 }, "rewrite_threshold"},
		{"top_k zero", func(c *Config) { c.Pipeline.TopK = -1 }, "top_k"},
		{"three rounds", func(c *Config) { c.Pipeline.MaxRetrievalRounds = 3 }, "max_retrieval_rounds"},
		{"inverted risk floors", func(c *Config) { c.Pipeline.RiskMediumFloor = 80 }, "risk floors"},
		{"bad timezone", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.Timezone = "Mars/Olympus" }, "timezone"},
		{"zero limit when enabled", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.IPPerMinuteLimit = -1 }, "rate_limit"},
		{"worker concurrency", func(c *Config) { c.Worker.Concurrency = -1 }, "worker.concurrency"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantSub)
		})
	}
}

func TestValidate_RateLimitDisabledSkipsLimitChecks(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.IPPerMinuteLimit = -1
	cfg.RateLimit.Timezone = "Mars/Olympus"
	assert.NoError(t, cfg.Validate())
}
