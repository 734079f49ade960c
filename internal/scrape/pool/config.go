package pool

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	DefaultMaxTabs        = 50
	DefaultIdleTabTimeout = time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultLaunchTimeout  = 30 * time.Second
	DefaultShutdown       = 30 * time.Second

	minAutoTabs = 2
	maxAutoTabs = 50
)

// Config holds the configuration for the tab pool
type Config struct {
	MaxTabs         string        // "auto" or integer string
	IdleTabTimeout  time.Duration // How long a released tab stays reusable
	ProbeTimeout    time.Duration // Liveness probe bound for reclaimed tabs
	LaunchTimeout   time.Duration // Browser startup bound, initial and restarts
	ShutdownTimeout time.Duration // Wait for active leases on shutdown
}

// DefaultConfig is used in tests to avoid constructing full Config structs
func DefaultConfig() *Config {
	return &Config{
		MaxTabs:         strconv.Itoa(DefaultMaxTabs),
		IdleTabTimeout:  DefaultIdleTabTimeout,
		ProbeTimeout:    DefaultProbeTimeout,
		LaunchTimeout:   DefaultLaunchTimeout,
		ShutdownTimeout: DefaultShutdown,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MaxTabs != "auto" {
		size, err := strconv.Atoi(c.MaxTabs)
		if err != nil {
			return fmt.Errorf("max tabs must be 'auto' or valid integer")
		}
		if size <= 0 {
			return fmt.Errorf("max tabs must be positive")
		}
	}

	if c.IdleTabTimeout <= 0 {
		return fmt.Errorf("idle tab timeout must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.LaunchTimeout <= 0 {
		return fmt.Errorf("launch timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	return nil
}

// CalculateCapacity resolves MaxTabs to a concrete number of tabs
func (c *Config) CalculateCapacity() int {
	if c.MaxTabs == "auto" {
		return autoCapacity()
	}

	size, err := strconv.Atoi(c.MaxTabs)
	if err != nil || size <= 0 {
		return autoCapacity()
	}
	return size
}

// autoCapacity derives the tab limit from system RAM
// Formula: (Total RAM - 2GB) / 150MB per tab
func autoCapacity() int {
	v, err := mem.VirtualMemory()
	var totalRAMBytes int64
	if err != nil {
		totalRAMBytes = int64(8 * 1024 * 1024 * 1024) // 8GB fallback
	} else {
		totalRAMBytes = int64(v.Total)
	}

	reservedBytes := int64(2 * 1024 * 1024 * 1024)
	tabBytes := int64(150 * 1024 * 1024)

	size := int((totalRAMBytes - reservedBytes) / tabBytes)
	if size < minAutoTabs {
		size = minAutoTabs
	}
	if size > maxAutoTabs {
		size = maxAutoTabs
	}
	return size
}
