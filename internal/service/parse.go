package service

import (
	"fmt"
	"net/http"
	"strings"

	"release-asset-proxy/internal/cors"
	"release-asset-proxy/internal/model"
)

// Parser validates inbound asset requests and derives their upstream URL.
type Parser struct {
	baseURL string
	cors    *cors.Validator
}

// NewParser creates a Parser. baseURL must not end with a slash.
func NewParser(baseURL string, v *cors.Validator) *Parser {
	return &Parser{baseURL: baseURL, cors: v}
}

// Parse checks the method, the Origin header and the path shape, in that
// order, and returns the first failure as a *RequestError. A malformed Origin
// header is returned as a plain error.
//
// rawPath is the escaped request path. Its three segments are copied into the
// upstream URL verbatim: no decoding, normalization or character checks.
func (p *Parser) Parse(method, rawPath string, header http.Header) (model.Target, error) {
	if method != http.MethodGet {
		return model.Target{}, errMethodNotAllowed
	}

	var corsOrigin string
	if origin := header.Get("Origin"); origin != "" {
		ok, err := p.cors.Allowed(origin)
		if err != nil {
			return model.Target{}, fmt.Errorf("check origin: %w", err)
		}
		if !ok {
			return model.Target{}, errOriginForbidden
		}
		corsOrigin = origin
	}

	segments := strings.Split(strings.TrimPrefix(rawPath, "/"), "/")
	if len(segments) != 3 {
		return model.Target{}, errInvalidURL
	}
	for _, s := range segments {
		if s == "" {
			return model.Target{}, errInvalidURL
		}
	}
	repo, tag, filename := segments[0], segments[1], segments[2]

	return model.Target{
		UpstreamURL: p.baseURL + "/" + repo + "/releases/download/" + tag + "/" + filename,
		CORSOrigin:  corsOrigin,
	}, nil
}
