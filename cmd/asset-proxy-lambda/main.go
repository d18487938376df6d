// Command asset-proxy-lambda serves the proxy from an AWS Lambda function URL.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-lambda-go/lambdaurl"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"release-asset-proxy/internal/app"
	"release-asset-proxy/internal/config"
	"release-asset-proxy/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("asset-proxy-lambda"),
		kong.Description("Release asset proxy for AWS Lambda function URLs."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	var (
		e   *echo.Echo
		svc *service.AssetService
	)
	fxApp := fx.New(
		app.Module(&cli, version),
		fx.Populate(&e, &svc),
	)
	if err := fxApp.Start(context.Background()); err != nil {
		log.Fatalf("start: %v", err)
	}

	lambdaurl.Start(invocationHandler(e, svc))
}

// invocationHandler serves one request and then waits for the cache write it
// started. The runtime freezes the process between invocations, so detached
// work would otherwise stall until the next request.
func invocationHandler(h http.Handler, svc *service.AssetService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
		svc.Wait()
	})
}
