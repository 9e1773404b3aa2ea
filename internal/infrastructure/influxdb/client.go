package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client queues dispatch points on the non-blocking InfluxDB write API.
// It is safe for concurrent use.
type Client struct {
	client  influxdb2.Client
	writes  api.WriteAPI
	onError func(error)
	closed  atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithErrorHandler receives write failures reported by the background
// flusher. Without it those failures are only logged by the InfluxDB client.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// Connect builds the client and pings the server. A failed or unhealthy
// ping is reported as ErrConnectionFailed.
func Connect(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flushSeconds := uint(defaultFlushInterval)
	if cfg.FlushInterval > 0 {
		flushSeconds = uint(cfg.FlushInterval)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(batch).SetFlushInterval(flushSeconds*1000))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{client: client, writes: client.WriteAPI(cfg.Org, cfg.Bucket)}
	for _, opt := range opts {
		opt(c)
	}
	if c.onError != nil {
		// Errors() creates the channel on first use; it must then be drained.
		go func(errs <-chan error, fn func(error)) {
			for err := range errs {
				fn(err)
			}
		}(c.writes.Errors(), c.onError)
	}
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// Flush blocks until queued points are sent. It does nothing after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writes.Flush()
	}
}

// Close flushes queued points and releases the client. Later calls, and
// calls on a nil Client, do nothing.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.closed.CompareAndSwap(false, true) {
		c.writes.Flush()
		c.client.Close()
	}
	return nil
}
