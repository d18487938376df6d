package service

import (
	"net/http"
	"strconv"
)

// ApplyPolicy sets the cache lifetime on h and, when corsOrigin is non-empty,
// reflects it in Access-Control-Allow-Origin. No other header is touched.
func ApplyPolicy(h http.Header, ttlSeconds int, corsOrigin string) {
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(ttlSeconds))
	if corsOrigin != "" {
		h.Set("Access-Control-Allow-Origin", corsOrigin)
	}
}
