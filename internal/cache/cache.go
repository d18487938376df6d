// Package cache implements the shared response cache consulted by the asset
// service. Entries are keyed by request identity and expire according to the
// max-age carried in their own Cache-Control header.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"release-asset-proxy/internal/model"
)

var (
	// ErrTooLarge is returned by Put when the body exceeds the per-entry limit.
	ErrTooLarge = errors.New("cache: response body exceeds entry size limit")
	// ErrNotCacheable is returned by Put when the response has no positive max-age.
	ErrNotCacheable = errors.New("cache: response has no max-age")
)

// Store is a key-value response cache. Implementations must be safe for
// concurrent use.
type Store interface {
	// Match returns the stored response for key, or ok=false when absent.
	Match(ctx context.Context, key string) (resp *model.AssetResponse, ok bool, err error)
	// Put stores resp under key. It consumes and closes resp.Body.
	Put(ctx context.Context, key string, resp *model.AssetResponse) error
}

// Key returns the cache identity of r: method, host and request URI.
func Key(r *http.Request) string {
	return r.Method + " " + r.Host + r.URL.RequestURI()
}

type entry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// MemoryStore is an in-process Store bounded by entry count and entry size.
type MemoryStore struct {
	mu            sync.RWMutex
	data          map[string]entry
	maxEntries    int
	maxEntryBytes int64
	now           func() time.Time
}

// NewMemoryStore constructs a MemoryStore holding at most maxEntries
// responses of at most maxEntryBytes each.
func NewMemoryStore(maxEntries int, maxEntryBytes int64) *MemoryStore {
	return &MemoryStore{
		data:          make(map[string]entry),
		maxEntries:    maxEntries,
		maxEntryBytes: maxEntryBytes,
		now:           time.Now,
	}
}

// Match retrieves a response if present and not expired.
func (s *MemoryStore) Match(_ context.Context, key string) (*model.AssetResponse, bool, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok || !s.now().Before(e.expires) {
		return nil, false, nil
	}
	return &model.AssetResponse{
		StatusCode: e.status,
		Header:     e.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(e.body)),
	}, true, nil
}

// Put reads resp.Body to the end and stores the response. Existing entries
// for key are replaced.
func (s *MemoryStore) Put(ctx context.Context, key string, resp *model.AssetResponse) error {
	defer func() { _ = resp.Body.Close() }()

	ttl, ok := parseMaxAge(resp.Header)
	if !ok {
		return ErrNotCacheable
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxEntryBytes+1))
	if err != nil {
		return fmt.Errorf("cache: read body: %w", err)
	}
	if int64(len(body)) > s.maxEntryBytes {
		return ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxEntries {
		s.evict(now)
	}
	s.data[key] = entry{
		status:  resp.StatusCode,
		header:  resp.Header.Clone(),
		body:    body,
		expires: now.Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// evict removes expired entries, or the entry closest to expiry when none
// have expired. Callers hold s.mu.
func (s *MemoryStore) evict(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	removed := false
	for k, e := range s.data {
		if !now.Before(e.expires) {
			delete(s.data, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if !removed && oldestKey != "" {
		delete(s.data, oldestKey)
	}
}

func parseMaxAge(h http.Header) (time.Duration, bool) {
	cc := h.Get("Cache-Control")
	if cc == "" {
		return 0, false
	}
	for _, p := range strings.Split(cc, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(p), "max-age=") {
			v := strings.TrimSpace(p[len("max-age="):])
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}

var _ Store = (*MemoryStore)(nil)
