// Package opensearch backs the sparse half of the hybrid patent retrieval
// with a BM25 index over patent text fields.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

const healthCheckInterval = 30 * time.Second

// Client wraps the OpenSearch client with connection health tracking.
type Client struct {
	os      *opensearch.Client
	cfg     config.OpenSearchConfig
	log     logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects to the OpenSearch cluster and starts a background
// health loop.
func NewClient(cfg config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "opensearch addresses are required")
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	os, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{429, 502, 503, 504},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "opensearch client config invalid")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		os:     os,
		cfg:    cfg,
		log:    log.Named("opensearch"),
		cancel: cancel,
	}
	if err := c.Ping(ctx); err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamConnect, "opensearch unreachable")
	}
	go c.healthLoop(ctx)

	c.log.Info("opensearch connected", logging.Any("addresses", cfg.Addresses))
	return c, nil
}

// Ping probes the cluster and updates the cached health flag.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.os.Ping(c.os.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		return errors.Newf(errors.ErrCodeServiceUnavailable, "opensearch ping status %d", resp.StatusCode)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the result of the most recent health probe.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Raw exposes the underlying client to the indexer and searcher layers.
func (c *Client) Raw() *opensearch.Client {
	return c.os
}

// Close stops the health loop.
func (c *Client) Close() error {
	c.cancel()
	return nil
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("opensearch health check failed", logging.Err(err))
			}
		}
	}
}
