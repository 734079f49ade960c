package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/scrape/browser"
)

// IdleEntry is a released tab waiting to be reused
type IdleEntry struct {
	ID         string
	Tab        browser.Tab
	Generation uint64
	ReleasedAt time.Time

	timer *time.Timer
}

// IdleCache holds released tabs for a grace period.
// Reclaim hands out the most recently released tab first.
type IdleCache struct {
	mu      sync.Mutex
	entries []*IdleEntry
	grace   time.Duration
	logger  *zap.Logger
}

// NewIdleCache creates a cache that closes tabs left unclaimed for longer than grace
func NewIdleCache(grace time.Duration, logger *zap.Logger) *IdleCache {
	return &IdleCache{
		grace:  grace,
		logger: logger,
	}
}

// Offer parks tab under id and schedules its expiry.
// An entry already cached under id is replaced.
func (c *IdleCache) Offer(id string, tab browser.Tab, generation uint64) {
	entry := &IdleEntry{
		ID:         id,
		Tab:        tab,
		Generation: generation,
		ReleasedAt: time.Now(),
	}

	c.mu.Lock()
	replaced := c.removeLocked(id)
	c.entries = append(c.entries, entry)
	entry.timer = time.AfterFunc(c.grace, func() { c.expire(entry) })
	c.mu.Unlock()

	if replaced != nil {
		replaced.timer.Stop()
		if replaced.Tab != tab {
			_ = replaced.Tab.Close()
		}
	}
}

// Reclaim removes and returns the most recently released entry
func (c *IdleCache) Reclaim() (IdleEntry, bool) {
	c.mu.Lock()
	n := len(c.entries)
	if n == 0 {
		c.mu.Unlock()
		return IdleEntry{}, false
	}
	entry := c.entries[n-1]
	c.entries[n-1] = nil
	c.entries = c.entries[:n-1]
	c.mu.Unlock()

	entry.timer.Stop()
	return *entry, true
}

// Clear closes every cached tab and returns how many were dropped
func (c *IdleCache) Clear() int {
	c.mu.Lock()
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	for _, entry := range entries {
		entry.timer.Stop()
		_ = entry.Tab.Close()
	}
	return len(entries)
}

// Len returns the number of cached tabs
func (c *IdleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// expire closes entry if it is still cached. A reclaimed or cleared entry is left alone.
func (c *IdleCache) expire(entry *IdleEntry) {
	c.mu.Lock()
	idx := c.indexLocked(entry)
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	c.mu.Unlock()

	_ = entry.Tab.Close()
	c.logger.Debug("Idle tab expired",
		zap.String("lease_id", entry.ID),
		zap.Duration("idle", time.Since(entry.ReleasedAt)))
}

func (c *IdleCache) indexLocked(entry *IdleEntry) int {
	for i, e := range c.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

func (c *IdleCache) removeLocked(id string) *IdleEntry {
	for i, e := range c.entries {
		if e.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return e
		}
	}
	return nil
}
