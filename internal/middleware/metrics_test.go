package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"release-asset-proxy/internal/metrics"
)

// findRequestMetric returns the asset_proxy_http_requests_total sample whose
// labels include all of want, or nil.
func findRequestMetric(t *testing.T, m *metrics.Metrics, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "asset_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range want {
				if labels[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric
			}
		}
	}
	return nil
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/app/v1.0/app.apk", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	metric := findRequestMetric(t, m, map[string]string{"route": "asset", "status_code": "200", "method": "GET"})
	if metric == nil {
		t.Fatal("expected asset_proxy_http_requests_total with route=asset")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "asset_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected asset_proxy_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"http error", echo.NewHTTPError(http.StatusNotFound, "not found"), "404"},
		{"unclassified error", errors.New("fetch asset: connection refused"), "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()

			e := echo.New()
			e.Use(MetricsMiddleware(m))
			e.GET("/*", func(c echo.Context) error {
				return tt.err
			})

			req := httptest.NewRequest(http.MethodGet, "/app/v1.0/app.apk", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if findRequestMetric(t, m, map[string]string{"route": "asset", "status_code": tt.wantStatus}) == nil {
				t.Errorf("expected asset_proxy_http_requests_total with route=asset, status_code=%s", tt.wantStatus)
			}
		})
	}
}

func TestMetricsMiddleware_ClassifiedResponseStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/*", func(c echo.Context) error {
		return c.Blob(http.StatusMethodNotAllowed, "text/plain;charset=UTF-8", []byte("Invalid request method"))
	})

	req := httptest.NewRequest(http.MethodPost, "/app/v1.0/app.apk", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if findRequestMetric(t, m, map[string]string{"route": "asset", "method": "POST", "status_code": "405"}) == nil {
		t.Error("expected asset_proxy_http_requests_total with route=asset, method=POST, status_code=405")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	// Any routes non-standard methods too, so the middleware sees XYZZY.
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("XYZZY", "/app/v1.0/app.apk", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if findRequestMetric(t, m, map[string]string{"route": "asset", "method": "other"}) == nil {
		t.Error("expected asset_proxy_http_requests_total with route=asset and method=other")
	}
}

func TestMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "asset_proxy_http_requests_in_flight" {
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Errorf("in-flight = %v, want 0", v)
			}
			return
		}
	}
	t.Error("expected asset_proxy_http_requests_in_flight gauge")
}
