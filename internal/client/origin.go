// Package client provides the upstream HTTP client for release assets.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"release-asset-proxy/internal/config"
	"release-asset-proxy/internal/metrics"
	"release-asset-proxy/internal/model"
)

const userAgent = "release-asset-proxy/1.0"

// OriginClient fetches release assets from the upstream origin.
type OriginClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// The timeout bounds the wait for headers only; asset bodies may
		// stream for longer. Bytes are relayed exactly as the origin sends them.
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		DisableCompression:    true,
	}

	return &OriginClient{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "origin_client"),
		metrics:    m,
	}
}

// Fetch issues a GET for url and returns the response once headers arrive.
// Redirects are followed. The caller is responsible for closing the body.
// The provided context controls the lifetime of the upstream request,
// including the body read.
func (c *OriginClient) Fetch(ctx context.Context, url string) (*model.AssetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("upstream request", "url", url)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via AssetResponse
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(duration)
	}
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.AssetResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
