// Package model defines shared types for the proxy.
package model

import (
	"io"
	"net/http"
)

// Target is the result of parsing an asset request.
type Target struct {
	// UpstreamURL is <base>/<repo>/releases/download/<tag>/<filename>.
	UpstreamURL string
	// CORSOrigin is the validated Origin to echo back; empty when the
	// request carried no Origin header.
	CORSOrigin string
}

// AssetResponse is a response produced by the origin, the cache, or an error
// path. Whoever receives it owns Body and must close it.
type AssetResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
