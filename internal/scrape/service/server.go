package service

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/common/config"
	"github.com/edgecomet/distill/internal/scrape/metrics"
	"github.com/edgecomet/distill/internal/scrape/scraper"
	"github.com/edgecomet/distill/pkg/types"
)

const (
	pathScrape = "/scrape"
	pathHealth = "/health"
)

// Handler serves the scrape HTTP API
type Handler struct {
	scraper          *scraper.Scraper
	cfg              *config.ScrapeConfig
	cors             *corsPolicy
	metricsCollector *metrics.MetricsCollector
	logger           *zap.Logger
}

// NewHandler creates the HTTP layer on top of a scraper
func NewHandler(s *scraper.Scraper, cfg *config.ScrapeConfig, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) *Handler {
	return &Handler{
		scraper:          s,
		cfg:              cfg,
		cors:             newCORSPolicy(cfg.Server.AllowedOrigins),
		metricsCollector: metricsCollector,
		logger:           logger,
	}
}

// HandleRequest is the fasthttp entry point with routing
func (h *Handler) HandleRequest(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	h.cors.apply(ctx)

	switch {
	case method == fasthttp.MethodOptions:
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case method == fasthttp.MethodPost && path == pathScrape:
		h.HandleScrape(ctx)
	case method == fasthttp.MethodGet && path == pathHealth:
		h.HandleHealth(ctx)
	default:
		h.writeError(ctx, path, fasthttp.StatusNotFound, types.ErrorCodeNotFound, "Not found: "+method+" "+path)
	}
}
