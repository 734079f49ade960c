package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/common/config"
	"github.com/edgecomet/distill/internal/common/configtypes"
	logutil "github.com/edgecomet/distill/internal/common/logger"
	"github.com/edgecomet/distill/internal/common/metricsserver"
	"github.com/edgecomet/distill/internal/common/redis"
	"github.com/edgecomet/distill/internal/scrape/browser"
	"github.com/edgecomet/distill/internal/scrape/metrics"
	"github.com/edgecomet/distill/internal/scrape/pool"
	"github.com/edgecomet/distill/internal/scrape/registry"
	"github.com/edgecomet/distill/internal/scrape/scraper"
	"github.com/edgecomet/distill/internal/scrape/service"
)

const serviceVersion = "1.0.0"

func main() {
	configPath := flag.String("c", "configs/scrape-service.yaml",
		"Path to scrape service configuration file")
	flag.Parse()

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	cfg, err := config.LoadScrapeConfig(absPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Uses INFO level during startup if the configured level is higher
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log, "scrape-service")
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Close()

	logger := dynamicLogger.Logger

	logger.Info("Scrape Service starting",
		zap.String("id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.String("max_tabs", cfg.Browser.MaxTabs))

	if cfg.APIKeyDefaulted {
		logger.Warn("No API key configured, using the default key; set API_KEY or server.api_key")
	}

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.StartMetricsServer(cfg.Metrics, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	blockRules := cfg.Browser.BlockedURLs
	if cfg.Browser.TrackersBlocked() {
		blockRules = append(append([]string{}, browser.TrackerPatterns...), blockRules...)
	}
	blocklist, err := browser.NewBlocklist(blockRules, cfg.Browser.BlockedResourceTypes)
	if err != nil {
		logger.Fatal("Invalid browser blocklist", zap.Error(err))
	}

	launcher := browser.NewChromeLauncher(browser.ChromeOptions{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.IsHeadless(),
		NoSandbox: cfg.Browser.NoSandbox,
		UserAgent: cfg.Browser.UserAgent,
		Blocklist: blocklist,
		OnBlocked: metricsCollector.RecordBlockedRequest,
	}, logger)

	poolConfig := &pool.Config{
		MaxTabs:         cfg.Browser.MaxTabs,
		IdleTabTimeout:  cfg.Browser.IdleTabTimeout.Std(),
		ProbeTimeout:    cfg.Browser.ProbeTimeout.Std(),
		LaunchTimeout:   cfg.Browser.LaunchTimeout.Std(),
		ShutdownTimeout: cfg.Browser.ShutdownTimeout.Std(),
	}

	logger.Info("Launching browser")
	tabPool, err := pool.NewTabPool(context.Background(), poolConfig, launcher, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to create tab pool", zap.Error(err))
	}

	s := scraper.NewScraper(tabPool, scraper.MarkdownConverter{}, &scraper.Config{
		ScrapeTimeout:   cfg.Browser.ScrapeTimeout.Std(),
		BodyWaitTimeout: cfg.Browser.BodyWaitTimeout.Std(),
	}, metricsCollector, logger)

	handler := service.NewHandler(s, cfg, metricsCollector, logger)

	serverTimeout := cfg.CalculateServerTimeout()
	server := &fasthttp.Server{
		Handler:      handler.HandleRequest,
		ReadTimeout:  serverTimeout,
		WriteTimeout: serverTimeout,
		IdleTimeout:  serverTimeout,
		Name:         "ScrapeService/" + cfg.Server.ID,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("listen", cfg.Server.Listen))
		if err := server.ListenAndServe(cfg.Server.Listen); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait briefly for HTTP server to start listening
	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-serverErrCh:
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	default:
	}

	// Advertise in Redis only once the server accepts requests
	var heartbeat *registry.Heartbeat
	var redisClient *redis.Client
	if cfg.Registry.Enabled {
		redisClient, err = redis.NewClient(&cfg.Registry.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}

		heartbeat = newHeartbeat(cfg, redisClient, tabPool, s, logger)
		if err := heartbeat.Start(context.Background()); err != nil {
			logger.Fatal("Failed to register service", zap.Error(err))
		}
	}

	logger.Info("Scrape Service ready",
		zap.String("id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.Int("capacity", tabPool.Capacity()),
		zap.String("browser", tabPool.BrowserVersion()))

	dynamicLogger.SwitchToConfiguredLevel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("Server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	// Stop advertising first so no new traffic is routed here
	if heartbeat != nil {
		unregisterCtx, unregisterCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := heartbeat.Stop(unregisterCtx); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
		unregisterCancel()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	if metricsServer != nil {
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(metricsShutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		metricsShutdownCancel()
	}

	// Complete in-flight requests
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Browser.ShutdownTimeout.Std()+serverTimeout)
	defer shutdownCancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := tabPool.Shutdown(); err != nil {
		logger.Error("Tab pool shutdown error", zap.Error(err))
	}

	logger.Info("Scrape Service stopped")
}

// newHeartbeat builds the registry heartbeat advertising this instance
func newHeartbeat(cfg *config.ScrapeConfig, redisClient *redis.Client, tabPool *pool.TabPool,
	stats registry.StatsSource, logger *zap.Logger,
) *registry.Heartbeat {
	advertise := cfg.Registry.Advertise
	if advertise == "" {
		advertise = cfg.Server.Listen
	}

	addr, err := configtypes.ParseListen(advertise)
	if err != nil {
		logger.Fatal("Failed to parse advertise address", zap.Error(err))
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = cfg.Server.ID
	}
	if addr.AllInterfaces() {
		addr.Host = hostname
	}

	interval := cfg.Registry.HeartbeatInterval.Std()
	reg := registry.NewRegistry(redisClient, registry.TTLMultiplier*interval, logger)

	info := registry.ServiceInfo{
		ID:      cfg.Server.ID,
		Address: addr.Host,
		Port:    addr.Port,
		Version: serviceVersion,
	}

	return registry.NewHeartbeat(reg, info, stats, tabPool.BrowserVersion, interval, hostname, logger)
}
