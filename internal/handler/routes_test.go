package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"release-asset-proxy/internal/config"
	"release-asset-proxy/internal/metrics"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	var hits atomic.Int32
	upstream := newUpstream(t, &hits)

	cfg := newTestConfig(upstream.URL, false)
	cfg.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	asset, _ := newTestAssetHandler(t, cfg)
	health := NewHealthHandler(cfg, "test")

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(), asset, health)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET asset", http.MethodGet, "/app/v1.0/app.apk", http.StatusOK},
		{"POST asset", http.MethodPost, "/app/v1.0/app.apk", http.StatusMethodNotAllowed},
		{"DELETE asset", http.MethodDelete, "/app/v1.0/app.apk", http.StatusMethodNotAllowed},
		{"GET /", http.MethodGet, "/", http.StatusNotFound},
		{"GET /unknown", http.MethodGet, "/unknown", http.StatusNotFound},
		{"GET five segments", http.MethodGet, "/a/b/c/d/e", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	var hits atomic.Int32
	upstream := newUpstream(t, &hits)

	cfg := newTestConfig(upstream.URL, false)
	asset, _ := newTestAssetHandler(t, cfg)

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(), asset, NewHealthHandler(cfg, "test"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	// Falls through to the asset handler, which rejects the one-segment path.
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "Invalid request URL") {
		t.Errorf("body = %q, want asset handler rejection", rec.Body.String())
	}
	if hits.Load() != 0 {
		t.Errorf("upstream hits = %d, want 0", hits.Load())
	}
}
