package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"release-asset-proxy/internal/config"
	"release-asset-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every path
// without an operational route goes to the asset handler, which answers
// malformed requests itself.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, asset *AssetHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", asset.Handle)
}
