// Package milvus backs the dense half of the hybrid patent retrieval with a
// Milvus vector collection of embedded patent documents.
package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// milvusNewClient is swapped out in tests.
var milvusNewClient = client.NewClient

const (
	connectTimeout      = 10 * time.Second
	healthCheckInterval = 30 * time.Second
	keepAliveTime       = 60 * time.Second
	keepAliveTimeout    = 20 * time.Second
)

// Client wraps the Milvus SDK client with connection health tracking.
type Client struct {
	cfg     config.MilvusConfig
	log     logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc

	mu sync.RWMutex
	mc client.Client
}

// NewClient connects to Milvus and starts a background health loop.  It
// fails fast when the cluster is unreachable so the process does not come
// up half-wired.
func NewClient(cfg config.MilvusConfig, log logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "milvus addr is required")
	}
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}

	ctx, cancel := context.WithCancel(context.Background())
	mc, err := connect(ctx, cfg)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamConnect, "milvus connect failed")
	}

	c := &Client{
		cfg:    cfg,
		log:    log.Named("milvus"),
		cancel: cancel,
		mc:     mc,
	}
	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	go c.healthLoop(ctx)

	c.log.Info("milvus connected", logging.String("addr", cfg.Addr), logging.String("db", cfg.DBName))
	return c, nil
}

func connect(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	return milvusNewClient(dialCtx, client.Config{
		Address: cfg.Addr,
		DBName:  cfg.DBName,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                keepAliveTime,
				Timeout:             keepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	})
}

// CheckHealth probes the cluster and updates the cached health flag.
func (c *Client) CheckHealth(ctx context.Context) error {
	c.mu.RLock()
	mc := c.mc
	c.mu.RUnlock()
	if mc == nil {
		return errors.New(errors.ErrCodeUpstreamConnect, "milvus client closed")
	}

	if _, err := mc.CheckHealth(ctx); err != nil {
		c.healthy.Store(false)
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "milvus unhealthy")
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the result of the most recent health probe.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Raw exposes the underlying SDK client to the collection and searcher
// layers in this package.
func (c *Client) Raw() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mc
}

// Close stops the health loop and releases the connection.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mc != nil {
		c.mc.Close()
		c.mc = nil
	}
	return nil
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.CheckHealth(ctx); err != nil {
				failures++
				c.log.Warn("milvus health check failed",
					logging.Int("consecutive_failures", failures), logging.Err(err))
				if failures >= 3 {
					if rerr := c.reconnect(ctx); rerr != nil {
						c.log.Error("milvus reconnect failed", logging.Err(rerr))
					} else {
						failures = 0
					}
				}
				continue
			}
			if failures > 0 {
				c.log.Info("milvus recovered")
			}
			failures = 0
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mc != nil {
		c.mc.Close()
	}
	mc, err := connect(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.mc = mc
	c.log.Info("milvus reconnected")
	return nil
}
