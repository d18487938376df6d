// Package service implements the asset request pipeline: parsing, cache
// lookup, origin fetch and response header policy.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"release-asset-proxy/internal/cache"
	"release-asset-proxy/internal/config"
	"release-asset-proxy/internal/cors"
	"release-asset-proxy/internal/metrics"
	"release-asset-proxy/internal/model"
	"release-asset-proxy/internal/stream"
)

// hopByHopHeaders describe the origin connection and are not relayed.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Fetcher retrieves an asset from the origin. The caller closes the body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.AssetResponse, error)
}

// AssetService turns asset requests into origin responses, optionally
// through the shared cache.
type AssetService struct {
	parser   *Parser
	origin   Fetcher
	store    cache.Store
	useCache bool
	ttl      int
	metrics  *metrics.Metrics
	logger   *slog.Logger

	pending sync.WaitGroup
}

// NewAssetService creates an AssetService from cfg. The metrics parameter is
// optional; pass nil to disable cache metrics recording.
func NewAssetService(cfg *config.Config, origin Fetcher, store cache.Store, m *metrics.Metrics, logger *slog.Logger) (*AssetService, error) {
	v, err := cors.New(cfg.CORS.AllowedHosts)
	if err != nil {
		return nil, fmt.Errorf("build cors validator: %w", err)
	}

	return &AssetService{
		parser:   NewParser(cfg.Upstream.BaseURL, v),
		origin:   origin,
		store:    store,
		useCache: cfg.Cache.Enabled,
		ttl:      cfg.Cache.TTLSeconds,
		metrics:  m,
		logger:   logger.With("component", "asset_service"),
	}, nil
}

// Respond produces the client response for r. The caller closes the body.
//
// Parse failures are returned as *RequestError. Fetch and cache failures are
// returned wrapped and unclassified.
func (s *AssetService) Respond(ctx context.Context, r *http.Request) (*model.AssetResponse, error) {
	target, err := s.parser.Parse(r.Method, r.URL.EscapedPath(), r.Header)
	if err != nil {
		return nil, err
	}

	key := cache.Key(r)
	if s.useCache {
		cached, ok, err := s.store.Match(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("cache match: %w", err)
		}
		if ok {
			s.countLookup(metrics.CacheHit)
			s.logger.Debug("cache hit", "key", key)
			ApplyPolicy(cached.Header, s.ttl, target.CORSOrigin)
			return cached, nil
		}
		s.countLookup(metrics.CacheMiss)
	}

	resp, err := s.origin.Fetch(ctx, target.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	for _, h := range hopByHopHeaders {
		resp.Header.Del(h)
	}

	if s.useCache {
		if resp.StatusCode == http.StatusOK {
			toCache, toClient := stream.Split(resp.Body)
			header := resp.Header.Clone()
			ApplyPolicy(header, s.ttl, "")
			s.storeAsync(ctx, key, &model.AssetResponse{
				StatusCode: resp.StatusCode,
				Header:     header,
				Body:       toCache,
			})
			resp.Body = toClient
		} else {
			s.countStore(metrics.CacheSkipped)
		}
	}

	ApplyPolicy(resp.Header, s.ttl, target.CORSOrigin)
	return resp, nil
}

// Wait blocks until all background cache writes have finished.
func (s *AssetService) Wait() {
	s.pending.Wait()
}

// storeAsync writes entry to the cache without blocking the caller. The write
// outlives the request context; it still fails if the origin body is cut off.
func (s *AssetService) storeAsync(ctx context.Context, key string, entry *model.AssetResponse) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		err := s.store.Put(ctx, key, entry)
		switch {
		case err == nil:
			s.countStore(metrics.CacheStored)
			s.logger.Debug("cache stored", "key", key)
		case errors.Is(err, cache.ErrTooLarge), errors.Is(err, cache.ErrNotCacheable):
			s.countStore(metrics.CacheSkipped)
			s.logger.Debug("cache store skipped", "key", key, "reason", err)
		case errors.Is(err, context.Canceled):
			s.countStore(metrics.CacheFailed)
			s.logger.Debug("cache store aborted", "key", key, "err", err)
		default:
			s.countStore(metrics.CacheFailed)
			s.logger.Warn("cache store failed", "key", key, "err", err)
		}
	}()
}

func (s *AssetService) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *AssetService) countStore(result string) {
	if s.metrics != nil {
		s.metrics.CacheStores.WithLabelValues(result).Inc()
	}
}
