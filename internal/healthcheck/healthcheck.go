package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/api-proxy/internal/backend"
	"github.com/angeloszaimis/api-proxy/internal/metrics"
	"github.com/angeloszaimis/api-proxy/internal/registry"
)

const probeTimeout = 5 * time.Second

type Checker struct {
	client    backend.Doer
	path      string
	interval  time.Duration
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a checker that sends GET <url><path> to each connection every
// interval. The collector may be nil.
func New(client backend.Doer, path string, interval time.Duration, collector *metrics.Collector, logger *slog.Logger) *Checker {
	return &Checker{
		client:    client,
		path:      path,
		interval:  interval,
		collector: collector,
		logger:    logger,
	}
}

// Start launches one probe loop per connection. Loops stop with ctx.
func (c *Checker) Start(ctx context.Context, connections []registry.Connection) {
	for _, conn := range connections {
		go c.Run(ctx, conn)
	}
}

// Run probes conn until ctx is cancelled. The first result and every
// subsequent change are reported.
func (c *Checker) Run(ctx context.Context, conn registry.Connection) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last *bool
	report := func(healthy bool) {
		if last != nil && *last == healthy {
			return
		}
		last = &healthy

		if healthy {
			c.logger.Info("Connection is up", slog.String("connection", conn.Name))
		} else {
			c.logger.Warn("Connection is down", slog.String("connection", conn.Name))
		}
		c.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventHealthChanged,
			Target:  conn.Name,
			Healthy: healthy,
		})
	}

	report(c.Check(ctx, conn))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check stopped", slog.String("connection", conn.Name))
			return

		case <-ticker.C:
			report(c.Check(ctx, conn))
		}
	}
}

// Check performs a single probe. Any 2xx answer counts as healthy.
func (c *Checker) Check(ctx context.Context, conn registry.Connection) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	probeURL := strings.TrimSuffix(conn.URL, "/") + c.path
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, probeURL, nil)
	if err != nil {
		c.logger.Debug("Health probe not sent",
			slog.String("connection", conn.Name),
			slog.Any("err", err))
		return false
	}

	req.Header.Set("Accept", backend.AcceptJSON)
	if token := conn.BearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Health probe failed",
			slog.String("connection", conn.Name),
			slog.Any("err", err))
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode >= 200 && res.StatusCode < 300
}
