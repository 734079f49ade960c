package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/scrape/pool"
)

// StatsSource reports the current pool state
type StatsSource interface {
	Stats() pool.PoolStats
}

// Heartbeat periodically re-registers the service with its current load
type Heartbeat struct {
	registry *Registry
	stats    StatsSource
	interval time.Duration
	hostname string
	logger   *zap.Logger

	mu      sync.Mutex // Protects info
	info    ServiceInfo
	version func() string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewHeartbeat creates a heartbeat for info. browserVersion may be nil.
func NewHeartbeat(registry *Registry, info ServiceInfo, stats StatsSource, browserVersion func() string,
	interval time.Duration, hostname string, logger *zap.Logger,
) *Heartbeat {
	return &Heartbeat{
		registry: registry,
		stats:    stats,
		interval: interval,
		hostname: hostname,
		logger:   logger,
		info:     info,
		version:  browserVersion,
	}
}

// Start registers the service and begins periodic heartbeats.
// The first registration is synchronous so a bad Redis setup fails startup.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	if err := h.beat(ctx); err != nil {
		h.mu.Lock()
		h.started = false
		h.mu.Unlock()
		return fmt.Errorf("initial registration failed: %w", err)
	}

	// Entries of instances that died without unregistering
	if _, err := h.registry.Prune(ctx); err != nil {
		h.logger.Warn("Failed to prune service list", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	h.logger.Info("Starting periodic heartbeat",
		zap.Duration("interval", h.interval),
		zap.Duration("ttl", h.registry.TTL()))

	ticker := time.NewTicker(h.interval)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				beatCtx, beatCancel := context.WithTimeout(loopCtx, h.interval)
				if err := h.beat(beatCtx); err != nil && loopCtx.Err() == nil {
					h.logger.Warn("Heartbeat failed", zap.Error(err))
				}
				beatCancel()
			case <-loopCtx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop ends the heartbeat loop and removes the registration. Safe to call more than once.
func (h *Heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	h.wg.Wait()
	h.logger.Info("Heartbeat stopped")

	return h.registry.Unregister(ctx, h.info.ID)
}

// Info returns a copy of the last advertised service info
func (h *Heartbeat) Info() ServiceInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := h.info
	if h.info.Metadata != nil {
		info.Metadata = make(map[string]string, len(h.info.Metadata))
		for k, v := range h.info.Metadata {
			info.Metadata[k] = v
		}
	}
	return info
}

func (h *Heartbeat) beat(ctx context.Context) error {
	stats := h.stats.Stats()

	version := ""
	if h.version != nil {
		version = h.version()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.info.Capacity = stats.Capacity
	h.info.Load = stats.Active
	h.info.SetMetadata(stats.Available, stats.Idle, stats.Restarts, version, h.hostname)

	return h.registry.Register(ctx, &h.info)
}
