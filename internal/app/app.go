// Package app assembles the proxy's dependency graph for both entry points.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"release-asset-proxy/internal/cache"
	"release-asset-proxy/internal/client"
	"release-asset-proxy/internal/config"
	"release-asset-proxy/internal/handler"
	"release-asset-proxy/internal/metrics"
	"release-asset-proxy/internal/middleware"
	"release-asset-proxy/internal/service"
)

// Module provides the configured *echo.Echo with every route registered, and
// the *service.AssetService behind it. Starting the HTTP listener is left to
// the caller.
func Module(cli *config.CLI, version string) fx.Option {
	return fx.Options(
		fx.Supply(cli, handler.Version(version)),
		fx.Provide(
			config.Load,
			NewLogger,
			NewEcho,
			metrics.New,
			fx.Annotate(client.NewOriginClient, fx.As(new(service.Fetcher))),
			newCacheStore,
			service.NewAssetService,
			handler.NewAssetHandler,
			handler.NewHealthHandler,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, drainCacheWrites),
	)
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// NewEcho creates the Echo instance with the middleware chain applied.
func NewEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout is disabled (0) so large asset downloads are not cut off.
	// The upstream header timeout, ReadTimeout and IdleTimeout bound the rest.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())

	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	return e
}

func newCacheStore(cfg *config.Config) cache.Store {
	return cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.MaxEntryBytes)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

// drainCacheWrites waits for background cache writes on shutdown. Hooks stop
// in reverse order, so a server hook appended later is shut down first and no
// new writes start while draining.
func drainCacheWrites(lc fx.Lifecycle, svc *service.AssetService, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				svc.Wait()
				close(done)
			}()

			select {
			case <-done:
				return nil
			case <-ctx.Done():
				logger.Warn("cache writes still pending at shutdown")
				return fmt.Errorf("drain cache writes: %w", ctx.Err())
			}
		},
	})
}
