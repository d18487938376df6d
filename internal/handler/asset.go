package handler

import (
	"errors"
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"

	"release-asset-proxy/internal/service"
)

// errorContentType is the content type of classified error responses.
const errorContentType = "text/plain;charset=UTF-8"

// AssetHandler serves /<repo>/<tag>/<filename> from the upstream release assets.
type AssetHandler struct {
	service *service.AssetService
	logger  *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(svc *service.AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		service: svc,
		logger:  logger.With("component", "asset_handler"),
	}
}

// Handle streams the asset for the request back to the client.
//
// Request errors become plain-text responses carrying their status and
// message. Any other error is returned to Echo unchanged so its error handler
// produces the generic failure response.
func (h *AssetHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Respond(req.Context(), req)
	if err != nil {
		var reqErr *service.RequestError
		if errors.As(err, &reqErr) {
			return c.Blob(reqErr.Status, errorContentType, []byte(reqErr.Message))
		}
		h.logger.Error("asset request failed",
			"err", err,
			"path", req.URL.Path,
		)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already sent, so a failure mid-copy (client gone,
	// origin reset) leaves the client with a truncated body. Log it and move on.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Warn("streaming asset body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}
