// Package openai wraps the OpenAI API behind the small surface the pipeline
// needs: single-turn completions, streaming completions, and embeddings.
// All upstream failures are classified into the service error taxonomy here
// so that callers never see raw provider errors.
package openai

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// CompletionRequest describes a single-turn chat completion.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider to emit a single JSON object.
	JSONMode bool
}

// RetryMetrics counts retried provider calls.  The prometheus collector
// implements it; the default records nothing.
type RetryMetrics interface {
	LLMRetryObserved(operation string)
}

type nopRetryMetrics struct{}

func (nopRetryMetrics) LLMRetryObserved(string) {}

// Client is the pipeline's gateway to the model provider.  The API key is
// injected at construction from the bootstrap environment; the client never
// touches the filesystem.
type Client struct {
	api     *openaisdk.Client
	cfg     config.OpenAIConfig
	policy  retryPolicy
	metrics RetryMetrics
	log     logging.Logger
}

// SetMetrics attaches a retry counter.  Call before the client is shared
// between goroutines.
func (c *Client) SetMetrics(m RetryMetrics) {
	if m != nil {
		c.metrics = m
	}
}

// NewClient builds a Client from configuration.  A missing API key is a
// configuration error surfaced at startup rather than on first use.
func NewClient(cfg config.OpenAIConfig, log logging.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "openai api key is not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	// The SDK has its own retry loop; disable it so that the taxonomy-aware
	// loop in retry.go is the only one deciding what gets retried.
	opts = append(opts, option.WithMaxRetries(0))

	api := openaisdk.NewClient(opts...)
	return &Client{
		api: &api,
		cfg: cfg,
		policy: retryPolicy{
			MaxAttempts:    cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		metrics: nopRetryMetrics{},
		log:     log.Named("openai"),
	}, nil
}

func (c *Client) buildParams(req CompletionRequest) openaisdk.ChatCompletionNewParams {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.User))

	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openaisdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// Complete runs a single-turn completion and returns the assistant text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := c.buildParams(req)

	var out string
	err := withRetry(ctx, c.log, c.policy, c.metrics, "chat.completions", func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		resp, err := c.api.Chat.Completions.New(rctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return apperrors.New(apperrors.ErrCodeExternalService, "provider returned no choices")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// CompleteStream runs a streaming completion, invoking onToken for every
// content delta, and returns the accumulated text.  onToken errors abort
// the stream.  Stream interruptions are not retried: a partial stream has
// already been surfaced to the caller.
func (c *Client) CompleteStream(ctx context.Context, req CompletionRequest, onToken func(string) error) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	params := c.buildParams(req)
	stream := c.api.Chat.Completions.NewStreaming(rctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := onToken(delta); err != nil {
			return sb.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), classifyError(err)
	}
	return sb.String(), nil
}

// Embed returns one embedding vector per input text, preserving order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(c.cfg.EmbeddingModel),
	}

	var out [][]float32
	err := withRetry(ctx, c.log, c.policy, c.metrics, "embeddings", func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		resp, err := c.api.Embeddings.New(rctx, params)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return apperrors.Newf(apperrors.ErrCodeEmbeddingFailed,
				"embedding response size mismatch: got %d want %d", len(resp.Data), len(texts))
		}
		out = make([][]float32, len(texts))
		for _, item := range resp.Data {
			idx := int(item.Index)
			if idx < 0 || idx >= len(texts) {
				return apperrors.Newf(apperrors.ErrCodeEmbeddingFailed, "embedding index out of range: %d", idx)
			}
			vec := make([]float32, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float32(v)
			}
			out[idx] = vec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Models exposes the configured model names so pipeline stages pick the
// right model per task without re-reading configuration.
func (c *Client) Models() config.OpenAIConfig { return c.cfg }
