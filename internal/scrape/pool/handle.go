package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/scrape/browser"
	"github.com/edgecomet/distill/internal/scrape/metrics"
)

// ProcessHandle owns the shared browser process and replaces it when the connection is lost.
// Every process gets a generation number; tabs carry the generation they were opened under.
type ProcessHandle struct {
	launcher      browser.Launcher
	cache         *IdleCache
	launchTimeout time.Duration
	metrics       *metrics.MetricsCollector
	logger        *zap.Logger

	mu         sync.RWMutex
	current    browser.Process
	generation uint64

	restartMu sync.Mutex
	restarts  atomic.Int64
}

// NewProcessHandle launches the initial browser process
func NewProcessHandle(ctx context.Context, launcher browser.Launcher, cache *IdleCache,
	launchTimeout time.Duration, metricsCollector *metrics.MetricsCollector, logger *zap.Logger,
) (*ProcessHandle, error) {
	h := &ProcessHandle{
		launcher:      launcher,
		cache:         cache,
		launchTimeout: launchTimeout,
		metrics:       metricsCollector,
		logger:        logger,
		generation:    1,
	}

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	proc, err := launcher.Launch(launchCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	h.current = proc

	logger.Info("Browser process ready",
		zap.String("version", proc.Version()),
		zap.Uint64("generation", h.generation))

	return h, nil
}

// CreateTab opens a tab on the current process. If the process is found dead,
// it is restarted once and creation is retried on the replacement.
func (h *ProcessHandle) CreateTab(ctx context.Context) (browser.Tab, uint64, error) {
	tab, gen, err := h.newTab(ctx)
	if err == nil || errors.Is(err, ErrPoolShutdown) {
		return tab, gen, err
	}

	if !browser.IsProcessLost(err.Error()) {
		return nil, gen, fmt.Errorf("%w: %w", ErrTabCreate, err)
	}

	h.logger.Warn("Browser connection lost while creating tab",
		zap.Uint64("generation", gen),
		zap.Error(err))

	if err := h.Restart(ctx, gen); err != nil {
		return nil, gen, err
	}

	tab, gen, err = h.newTab(ctx)
	if err != nil {
		if errors.Is(err, ErrPoolShutdown) {
			return nil, gen, err
		}
		return nil, gen, fmt.Errorf("%w after restart: %w", ErrTabCreate, err)
	}
	return tab, gen, nil
}

func (h *ProcessHandle) newTab(ctx context.Context) (browser.Tab, uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.current == nil {
		return nil, h.generation, ErrPoolShutdown
	}

	tab, err := h.current.NewTab(ctx)
	return tab, h.generation, err
}

// Restart replaces the process if it is still at generation observed.
// Concurrent callers that saw the same dead process share one restart.
func (h *ProcessHandle) Restart(ctx context.Context, observed uint64) error {
	h.restartMu.Lock()
	defer h.restartMu.Unlock()

	h.mu.RLock()
	current, closed := h.generation, h.current == nil
	h.mu.RUnlock()

	if closed {
		return ErrPoolShutdown
	}
	if current != observed {
		return nil
	}

	dropped := h.cache.Clear()
	h.logger.Warn("Restarting browser process",
		zap.Uint64("generation", current),
		zap.Int("idle_tabs_dropped", dropped))

	// Launch is bounded by launchTimeout only, not by the caller
	launchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.launchTimeout)
	defer cancel()

	proc, err := h.launcher.Launch(launchCtx)
	if err != nil {
		h.logger.Error("Browser restart failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRestartFailed, err)
	}

	h.mu.Lock()
	if h.current == nil {
		h.mu.Unlock()
		_ = proc.Close()
		return ErrPoolShutdown
	}
	old := h.current
	h.current = proc
	h.generation++
	newGen := h.generation
	h.mu.Unlock()

	if err := old.Close(); err != nil {
		h.logger.Debug("Error closing previous browser process", zap.Error(err))
	}

	h.restarts.Add(1)
	h.metrics.RecordBrowserRestart()
	h.logger.Info("Browser process restarted",
		zap.String("version", proc.Version()),
		zap.Uint64("generation", newGen))

	return nil
}

// Generation returns the generation of the current process
func (h *ProcessHandle) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Version returns the product string of the current process
func (h *ProcessHandle) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return ""
	}
	return h.current.Version()
}

// Restarts returns how many times the process was replaced
func (h *ProcessHandle) Restarts() int64 {
	return h.restarts.Load()
}

// Close shuts the current process down. Later tab creation fails with ErrPoolShutdown.
func (h *ProcessHandle) Close() error {
	h.mu.Lock()
	proc := h.current
	h.current = nil
	h.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.Close()
}
