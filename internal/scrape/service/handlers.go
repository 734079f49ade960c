package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/common/httputil"
	"github.com/edgecomet/distill/internal/common/requestid"
	"github.com/edgecomet/distill/internal/common/urlutil"
	"github.com/edgecomet/distill/internal/scrape/scraper"
	"github.com/edgecomet/distill/pkg/types"
)

const headerAPIKey = "X-API-Key"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string        `json:"status"`
	Browser BrowserHealth `json:"browser"`
}

// BrowserHealth is the pool section of the health response
type BrowserHealth struct {
	MaxConcurrent  int `json:"max_concurrent"`
	AvailableSlots int `json:"available_slots"`
	IdleTabs       int `json:"idle_tabs"`
	ActiveTabs     int `json:"active_tabs"`
}

// writeJSON writes a JSON response and records the request metric
func (h *Handler) writeJSON(ctx *fasthttp.RequestCtx, path string, statusCode int, response interface{}) {
	if err := httputil.WriteJSON(ctx, statusCode, response); err != nil {
		httputil.WriteRawJSON(ctx, fasthttp.StatusInternalServerError,
			`{"success":false,"data":null,"error":{"code":"INTERNAL_ERROR","message":"Internal error: failed to marshal response"}}`)
		h.metricsCollector.RecordHTTPRequest(path, "500")
		h.logger.Error("Failed to marshal JSON response",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	h.metricsCollector.RecordHTTPRequest(path, strconv.Itoa(statusCode))
}

// writeError writes a failed envelope with code and message
func (h *Handler) writeError(ctx *fasthttp.RequestCtx, path string, statusCode int, code, message string) {
	h.writeJSON(ctx, path, statusCode, types.NewScrapeError(code, message))
	h.metricsCollector.RecordError(code)
}

// writeScrapeError maps a scraper failure to its status, code and message
func (h *Handler) writeScrapeError(ctx *fasthttp.RequestCtx, err error) {
	var se *scraper.Error
	if !errors.As(err, &se) {
		h.writeError(ctx, pathScrape, fasthttp.StatusInternalServerError, types.ErrorCodeInternal, "Internal error: "+err.Error())
		return
	}

	var prefix string
	switch se.Kind {
	case scraper.ErrTimeout:
		prefix = "Timeout exceeded: "
	case scraper.ErrBrowser:
		prefix = "Browser error: "
	default:
		prefix = "Internal error: "
	}
	h.writeError(ctx, pathScrape, se.HTTPStatus(), se.Code(), prefix+se.Error())
}

// HandleScrape processes POST /scrape requests
func (h *Handler) HandleScrape(ctx *fasthttp.RequestCtx) {
	startTime := time.Now()
	requestID := requestid.Resolve(string(ctx.Request.Header.Peek(requestid.Header)))
	ctx.Response.Header.Set(requestid.Header, requestID)

	if !h.cfg.APIKeyMatches(string(ctx.Request.Header.Peek(headerAPIKey))) {
		h.writeError(ctx, pathScrape, fasthttp.StatusUnauthorized, types.ErrorCodeUnauthorized,
			"Unauthorized: Invalid or missing API key")
		h.logger.Warn("Unauthorized scrape request",
			zap.String("request_id", requestID),
			zap.String("remote_addr", ctx.RemoteAddr().String()))
		return
	}

	var req types.ScrapeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.writeError(ctx, pathScrape, fasthttp.StatusBadRequest, types.ErrorCodeInvalidRequest,
			"Invalid request: invalid JSON body: "+err.Error())
		h.logger.Warn("Invalid request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}

	pageURL, err := urlutil.ValidateScrapeURL(req.URL)
	if err != nil {
		h.writeError(ctx, pathScrape, fasthttp.StatusBadRequest, types.ErrorCodeInvalidRequest,
			"Invalid request: "+err.Error())
		h.logger.Warn("Rejected scrape URL",
			zap.String("request_id", requestID),
			zap.String("url", req.URL),
			zap.Error(err))
		return
	}

	h.logger.Debug("Starting scrape",
		zap.String("request_id", requestID),
		zap.String("url", pageURL),
		zap.String("format", string(req.OutputFormat)))

	// The request context only ends on server shutdown, so bound tab waiting by the server timeout
	scrapeCtx, cancel := context.WithTimeout(context.Background(), h.cfg.CalculateServerTimeout())
	defer cancel()

	result, err := h.scraper.Scrape(scrapeCtx, pageURL, req.OutputFormat)
	if err != nil {
		h.writeScrapeError(ctx, err)
		h.logger.Warn("Scrape failed",
			zap.String("request_id", requestID),
			zap.String("url", pageURL),
			zap.String("kind", scraper.KindOf(err).String()),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return
	}

	h.writeJSON(ctx, pathScrape, fasthttp.StatusOK, types.NewScrapeSuccess(types.ScrapeData{
		Metadata: result.Metadata,
		Content:  result.Content,
	}))

	h.logger.Info("Scrape successful",
		zap.String("request_id", requestID),
		zap.String("url", pageURL),
		zap.Int("content_bytes", len(result.Content)),
		zap.Duration("duration", time.Since(startTime)))
}

// HandleHealth returns the service status and pool statistics
func (h *Handler) HandleHealth(ctx *fasthttp.RequestCtx) {
	stats := h.scraper.Stats()

	h.writeJSON(ctx, pathHealth, fasthttp.StatusOK, HealthResponse{
		Status: "healthy",
		Browser: BrowserHealth{
			MaxConcurrent:  stats.Capacity,
			AvailableSlots: stats.Available,
			IdleTabs:       stats.Idle,
			ActiveTabs:     stats.Active,
		},
	})
}
