package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/scrape/browser"
	"github.com/edgecomet/distill/internal/scrape/metrics"
)

// PoolStats is a point-in-time view of the pool
type PoolStats struct {
	Capacity    int           // Maximum tabs in simultaneous use
	Available   int           // Free capacity slots
	Idle        int           // Released tabs waiting for reuse
	Active      int           // Capacity minus available
	TabsCreated int64         // Tabs opened on a browser process
	TabsReused  int64         // Leases served from the idle cache
	Restarts    int64         // Browser process replacements
	Generation  uint64        // Current browser process generation
	Uptime      time.Duration // Time since pool creation
}

// Lease is exclusive use of one tab. It must be returned with TabPool.Release.
type Lease struct {
	ID  string
	Tab browser.Tab

	generation  uint64
	token       *Token
	reused      bool
	broken      atomic.Bool
	releaseOnce sync.Once
}

// MarkBroken makes Release close the tab instead of caching it
func (l *Lease) MarkBroken() {
	l.broken.Store(true)
}

// Reused reports whether the tab came from the idle cache
func (l *Lease) Reused() bool {
	return l.reused
}

// Generation returns the browser process generation the tab belongs to
func (l *Lease) Generation() uint64 {
	return l.generation
}

// TabPool hands out browser tabs with bounded concurrency and short-lived reuse
type TabPool struct {
	config   *Config
	capacity int
	gate     *Gate
	cache    *IdleCache
	handle   *ProcessHandle

	tabsCreated atomic.Int64
	tabsReused  atomic.Int64
	createdAt   time.Time

	ctx              context.Context    // Cancelled on shutdown
	cancel           context.CancelFunc // Cancel function
	shutdownOnce     sync.Once
	metricsCollector *metrics.MetricsCollector
	logger           *zap.Logger
}

// NewTabPool launches the browser and creates a pool sized from config
func NewTabPool(ctx context.Context, config *Config, launcher browser.Launcher,
	metricsCollector *metrics.MetricsCollector, logger *zap.Logger,
) (*TabPool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	capacity := config.CalculateCapacity()
	cache := NewIdleCache(config.IdleTabTimeout, logger)

	handle, err := NewProcessHandle(ctx, launcher, cache, config.LaunchTimeout, metricsCollector, logger)
	if err != nil {
		return nil, err
	}

	poolCtx, cancel := context.WithCancel(context.Background())
	p := &TabPool{
		config:           config,
		capacity:         capacity,
		gate:             NewGate(capacity),
		cache:            cache,
		handle:           handle,
		createdAt:        time.Now().UTC(),
		ctx:              poolCtx,
		cancel:           cancel,
		metricsCollector: metricsCollector,
		logger:           logger,
	}
	p.updateGauges()

	logger.Info("Tab pool initialized",
		zap.Int("capacity", capacity),
		zap.String("max_tabs", config.MaxTabs),
		zap.Duration("idle_tab_timeout", config.IdleTabTimeout))

	return p, nil
}

// Acquire waits for capacity, then returns a reclaimed idle tab or a freshly created one
func (p *TabPool) Acquire(ctx context.Context) (*Lease, error) {
	if p.ctx.Err() != nil {
		return nil, ErrPoolShutdown
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	token, err := p.gate.Acquire(waitCtx)
	if err != nil {
		if p.ctx.Err() != nil {
			return nil, ErrPoolShutdown
		}
		return nil, fmt.Errorf("waiting for tab slot: %w", err)
	}

	// Double-check shutdown after getting the slot
	if p.ctx.Err() != nil {
		p.gate.Release(token)
		return nil, ErrPoolShutdown
	}

	if lease := p.reclaim(ctx, token); lease != nil {
		p.updateGauges()
		return lease, nil
	}

	tab, gen, err := p.handle.CreateTab(ctx)
	if err != nil {
		p.gate.Release(token)
		p.updateGauges()
		return nil, err
	}

	p.tabsCreated.Add(1)
	p.metricsCollector.RecordTabAcquired(metrics.SourceNew)
	p.updateGauges()

	lease := &Lease{
		ID:         uuid.NewString(),
		Tab:        tab,
		generation: gen,
		token:      token,
	}

	p.logger.Debug("Acquired new tab",
		zap.String("lease_id", lease.ID),
		zap.Uint64("generation", gen),
		zap.Int("available", p.gate.Free()))

	return lease, nil
}

// reclaim pops the newest idle tab and probes it. Stale or unresponsive tabs are closed.
func (p *TabPool) reclaim(ctx context.Context, token *Token) *Lease {
	entry, ok := p.cache.Reclaim()
	if !ok {
		return nil
	}

	if entry.Generation != p.handle.Generation() {
		_ = entry.Tab.Close()
		p.logger.Debug("Dropped idle tab from previous browser process",
			zap.String("lease_id", entry.ID),
			zap.Uint64("generation", entry.Generation))
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.config.ProbeTimeout)
	defer cancel()

	if err := entry.Tab.Ping(probeCtx); err != nil {
		_ = entry.Tab.Close()
		p.logger.Debug("Idle tab failed liveness probe",
			zap.String("lease_id", entry.ID),
			zap.Error(err))
		return nil
	}

	p.tabsReused.Add(1)
	p.metricsCollector.RecordTabAcquired(metrics.SourceReused)

	p.logger.Debug("Reused idle tab",
		zap.String("lease_id", entry.ID),
		zap.Duration("idle", time.Since(entry.ReleasedAt)))

	return &Lease{
		ID:         entry.ID,
		Tab:        entry.Tab,
		generation: entry.Generation,
		token:      token,
		reused:     true,
	}
}

// Release returns the lease. Healthy tabs are parked for reuse; broken ones,
// tabs of a replaced process and tabs released during shutdown are closed.
// Releasing a lease twice has no effect.
func (p *TabPool) Release(lease *Lease) {
	if lease == nil {
		return
	}

	lease.releaseOnce.Do(func() {
		var reason string
		switch {
		case lease.broken.Load():
			reason = "broken"
		case p.ctx.Err() != nil:
			reason = "shutdown"
		case lease.generation != p.handle.Generation():
			reason = "stale_generation"
		}

		if reason == "" {
			p.cache.Offer(lease.ID, lease.Tab, lease.generation)
		} else {
			_ = lease.Tab.Close()
			p.logger.Debug("Closed released tab",
				zap.String("lease_id", lease.ID),
				zap.String("reason", reason))
		}

		p.gate.Release(lease.token)
		p.updateGauges()
	})
}

// Stats returns current pool statistics
func (p *TabPool) Stats() PoolStats {
	available := p.gate.Free()
	return PoolStats{
		Capacity:    p.capacity,
		Available:   available,
		Idle:        p.cache.Len(),
		Active:      p.capacity - available,
		TabsCreated: p.tabsCreated.Load(),
		TabsReused:  p.tabsReused.Load(),
		Restarts:    p.handle.Restarts(),
		Generation:  p.handle.Generation(),
		Uptime:      time.Since(p.createdAt),
	}
}

// Capacity returns the maximum number of tabs in simultaneous use
func (p *TabPool) Capacity() int {
	return p.capacity
}

// BrowserVersion returns the product string of the current browser process
func (p *TabPool) BrowserVersion() string {
	return p.handle.Version()
}

// Shutdown stops the pool with the configured timeout
func (p *TabPool) Shutdown() error {
	return p.ShutdownWithTimeout(p.config.ShutdownTimeout)
}

// ShutdownWithTimeout rejects new acquisitions, waits up to timeout for active
// leases, then closes idle tabs and the browser process
func (p *TabPool) ShutdownWithTimeout(timeout time.Duration) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.cancel()

		stats := p.Stats()
		p.logger.Info("Shutdown initiated - waiting for active leases to complete",
			zap.Int("active", stats.Active),
			zap.Duration("timeout", timeout))

		if p.waitForActiveLeases(timeout) {
			p.logger.Info("All active leases released")
		} else {
			p.logger.Warn("Shutdown timeout exceeded, closing browser with active leases",
				zap.Int("active", p.capacity-p.gate.Free()))
		}

		dropped := p.cache.Clear()
		if closeErr := p.handle.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close browser: %w", closeErr)
		}

		finalStats := p.Stats()
		p.logger.Info("Tab pool shut down",
			zap.Int("idle_tabs_closed", dropped),
			zap.Int64("tabs_created", finalStats.TabsCreated),
			zap.Int64("tabs_reused", finalStats.TabsReused),
			zap.Int64("restarts", finalStats.Restarts),
			zap.Duration("uptime", finalStats.Uptime))
	})
	return err
}

// waitForActiveLeases returns true if every lease was released before timeout
func (p *TabPool) waitForActiveLeases(timeout time.Duration) bool {
	deadline := time.Now().UTC().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.gate.Free() == p.capacity {
			return true
		}

		<-ticker.C
		if time.Now().UTC().After(deadline) {
			return false
		}
	}
}

func (p *TabPool) updateGauges() {
	p.metricsCollector.UpdatePoolStats(p.capacity, p.gate.Free(), p.cache.Len())
}
