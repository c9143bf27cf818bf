// Package serving talks to the model-serving endpoint that hosts the
// cross-encoder reranker.  The wire format follows the text-embeddings-
// inference rerank API: POST /rerank with a query and candidate texts,
// answered by per-candidate relevance scores.
package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// Reranker scores candidate texts against a query.  Scores come back in
// input order, higher meaning more relevant.
type Reranker interface {
	Rank(ctx context.Context, query string, texts []string) ([]float64, error)
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Client is an HTTP Reranker with single-flight lazy initialization.
// The endpoint is probed once on first use; if the probe fails the client
// latches unavailable and every later call fails fast, letting the caller
// fall back without re-paying the connection timeout.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
	log      logging.Logger

	initOnce sync.Once
	initErr  error
}

// NewClient builds a reranker client from configuration.  No network I/O
// happens here; the health probe runs on first Rank call.
func NewClient(cfg config.RerankConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "rerank endpoint is not set")
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		http:     &http.Client{Timeout: cfg.Timeout},
		log:      log.Named("rerank"),
	}, nil
}

func (c *Client) init(ctx context.Context) error {
	c.initOnce.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
		if err != nil {
			c.initErr = apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "invalid rerank endpoint")
			return
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.initErr = apperrors.Wrap(err, apperrors.ErrCodeUpstreamConnect, "rerank endpoint unreachable")
			c.log.Warn("reranker disabled for process lifetime",
				logging.String("endpoint", c.endpoint),
				logging.Err(err),
			)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.initErr = apperrors.Newf(apperrors.ErrCodeUpstreamConnect,
				"rerank health probe returned %d", resp.StatusCode)
			c.log.Warn("reranker disabled for process lifetime",
				logging.String("endpoint", c.endpoint),
				logging.Int("status", resp.StatusCode),
			)
			return
		}
		c.log.Info("reranker endpoint ready",
			logging.String("endpoint", c.endpoint),
			logging.String("model", c.model),
		)
	})
	return c.initErr
}

// Rank scores texts against query.  The returned slice is aligned with the
// texts slice.  Once the endpoint has latched unavailable, Rank returns the
// stored probe error without network I/O.
func (c *Client) Rank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal rerank request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build rerank request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUpstreamConnect, "rerank request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, apperrors.Newf(apperrors.ErrCodeExternalService,
			"rerank returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExternalService, "decode rerank response")
	}

	scores := make([]float64, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, apperrors.Newf(apperrors.ErrCodeExternalService,
				"rerank index out of range: %d", r.Index)
		}
		scores[r.Index] = r.Score
	}

	c.log.Debug("rerank scored candidates",
		logging.Int("count", len(texts)),
		logging.Duration("latency", time.Since(start)),
	)
	return scores, nil
}

// Healthy runs the lazy probe and reports the latched state.  Readiness
// checks use this without forcing a scoring call.
func (c *Client) Healthy(ctx context.Context) error {
	return c.init(ctx)
}

var _ Reranker = (*Client)(nil)

// String implements fmt.Stringer for log friendliness.
func (c *Client) String() string {
	return fmt.Sprintf("serving.Client(%s, model=%s)", c.endpoint, c.model)
}
