package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edgecomet/distill/internal/common/configtypes"
	"github.com/edgecomet/distill/internal/common/yamlutil"
	"github.com/edgecomet/distill/pkg/pattern"
	"github.com/edgecomet/distill/pkg/types"
)

// Environment variables that override file settings
const (
	EnvAPIKey         = "API_KEY"
	EnvMaxTabs        = "MAX_CONCURRENT_TABS"
	EnvPort           = "PORT"
	EnvChromePath     = "CHROME_PATH"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
)

const (
	// DefaultAPIKey is used when neither the file nor the environment set a key
	DefaultAPIKey = "changeme"

	// SafetyMargin is added to scrape_timeout for the FastHTTP read/write timeout
	SafetyMargin = 10 * time.Second

	defaultListen            = ":3000"
	defaultMaxTabs           = "50"
	defaultIdleTabTimeout    = time.Second
	defaultScrapeTimeout     = 10 * time.Second
	defaultBodyWaitTimeout   = 5 * time.Second
	defaultProbeTimeout      = 2 * time.Second
	defaultLaunchTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
	defaultHeartbeatInterval = time.Second
	defaultMetricsPath       = "/metrics"
	defaultMetricsNamespace  = "distill"
)

// ScrapeConfig represents the scrape service configuration
type ScrapeConfig struct {
	Server   ScrapeServerConfig `yaml:"server"`
	Browser  BrowserConfig      `yaml:"browser"`
	Registry RegistryConfig     `yaml:"registry"`
	Log      LogConfig          `yaml:"log"`
	Metrics  MetricsConfig      `yaml:"metrics"`

	// APIKeyDefaulted is set when no key was configured and DefaultAPIKey is in use
	APIKeyDefaulted bool `yaml:"-"`
}

// ScrapeServerConfig represents the HTTP server configuration
type ScrapeServerConfig struct {
	ID             string         `yaml:"id"`
	Listen         string         `yaml:"listen"`
	APIKey         string         `yaml:"api_key"`
	Timeout        types.Duration `yaml:"timeout"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
}

// BrowserConfig represents Chrome and tab pool configuration
type BrowserConfig struct {
	MaxTabs         string         `yaml:"max_tabs"`
	IdleTabTimeout  types.Duration `yaml:"idle_tab_timeout"`
	ScrapeTimeout   types.Duration `yaml:"scrape_timeout"`
	BodyWaitTimeout types.Duration `yaml:"body_wait_timeout"`
	ProbeTimeout    types.Duration `yaml:"probe_timeout"`
	LaunchTimeout   types.Duration `yaml:"launch_timeout"`
	ShutdownTimeout types.Duration `yaml:"shutdown_timeout"`
	ExecPath        string         `yaml:"exec_path"`
	Headless        *bool          `yaml:"headless"`
	NoSandbox       bool           `yaml:"no_sandbox"`
	UserAgent       string         `yaml:"user_agent"`

	BlockTrackers        *bool    `yaml:"block_trackers"`
	BlockedURLs          []string `yaml:"blocked_urls"`
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`
}

// IsHeadless reports the headless setting, true unless disabled explicitly
func (b *BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// TrackersBlocked reports whether the built-in tracker list applies, true unless disabled explicitly
func (b *BrowserConfig) TrackersBlocked() bool {
	return b.BlockTrackers == nil || *b.BlockTrackers
}

// RegistryConfig controls the optional Redis heartbeat
type RegistryConfig struct {
	Enabled           bool           `yaml:"enabled"`
	Redis             RedisConfig    `yaml:"redis"`
	Advertise         string         `yaml:"advertise"` // host:port other services use to reach this instance
	HeartbeatInterval types.Duration `yaml:"heartbeat_interval"`
}

// CalculateServerTimeout returns the FastHTTP server timeout
func (cfg *ScrapeConfig) CalculateServerTimeout() time.Duration {
	if cfg.Server.Timeout > 0 {
		return cfg.Server.Timeout.Std()
	}
	return cfg.Browser.ScrapeTimeout.Std() + SafetyMargin
}

// APIKeyMatches compares key against the configured key in constant time
func (cfg *ScrapeConfig) APIKeyMatches(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Server.APIKey)) == 1
}

// applyDefaults applies default values to configuration fields
func (cfg *ScrapeConfig) applyDefaults() {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultListen
	}
	if cfg.Server.ID == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Server.ID = "scrape-" + hostname
		} else {
			cfg.Server.ID = "scrape-1"
		}
	}

	b := &cfg.Browser
	if b.MaxTabs == "" {
		b.MaxTabs = defaultMaxTabs
	}
	setDefaultDuration(&b.IdleTabTimeout, defaultIdleTabTimeout)
	setDefaultDuration(&b.ScrapeTimeout, defaultScrapeTimeout)
	setDefaultDuration(&b.BodyWaitTimeout, defaultBodyWaitTimeout)
	setDefaultDuration(&b.ProbeTimeout, defaultProbeTimeout)
	setDefaultDuration(&b.LaunchTimeout, defaultLaunchTimeout)
	setDefaultDuration(&b.ShutdownTimeout, defaultShutdownTimeout)

	setDefaultDuration(&cfg.Registry.HeartbeatInterval, defaultHeartbeatInterval)

	// If both outputs are disabled (zero values), enable console by default
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}
}

func setDefaultDuration(d *types.Duration, def time.Duration) {
	if *d == 0 {
		*d = types.Duration(def)
	}
}

// ApplyEnv overrides file settings from the environment. lookup is os.LookupEnv outside tests.
func (cfg *ScrapeConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		cfg.Server.APIKey = v
	}

	if v, ok := lookup(EnvMaxTabs); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvMaxTabs, v)
		}
		cfg.Browser.MaxTabs = strconv.Itoa(n)
	}

	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a port number, got %q", EnvPort, v)
		}
		// An unparsable listen address falls back to every interface
		addr, _ := configtypes.ParseListen(cfg.Server.Listen)
		cfg.Server.Listen = addr.WithPort(port).String()
	}

	if v, ok := lookup(EnvChromePath); ok && v != "" {
		cfg.Browser.ExecPath = v
	}

	if v, ok := lookup(EnvAllowedOrigins); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}

	if cfg.Server.APIKey == "" {
		cfg.Server.APIKey = DefaultAPIKey
		cfg.APIKeyDefaulted = true
	}

	return nil
}

// Validate checks configuration validity
func (cfg *ScrapeConfig) Validate() error {
	// Server validation
	if cfg.Server.ID == "" {
		return fmt.Errorf("server.id is required")
	}
	if _, err := configtypes.ValidateListen(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}
	if cfg.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required")
	}
	if cfg.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}

	// Browser validation
	if cfg.Browser.MaxTabs != "auto" {
		size, err := strconv.Atoi(cfg.Browser.MaxTabs)
		if err != nil || size <= 0 {
			return fmt.Errorf("browser.max_tabs must be 'auto' or positive integer")
		}
	}

	durations := []struct {
		name  string
		value types.Duration
	}{
		{"browser.idle_tab_timeout", cfg.Browser.IdleTabTimeout},
		{"browser.scrape_timeout", cfg.Browser.ScrapeTimeout},
		{"browser.body_wait_timeout", cfg.Browser.BodyWaitTimeout},
		{"browser.probe_timeout", cfg.Browser.ProbeTimeout},
		{"browser.launch_timeout", cfg.Browser.LaunchTimeout},
		{"browser.shutdown_timeout", cfg.Browser.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	for _, rule := range cfg.Browser.BlockedURLs {
		if _, err := pattern.Compile(rule); err != nil {
			return fmt.Errorf("invalid browser.blocked_urls entry: %w", err)
		}
	}

	// Registry validation
	if cfg.Registry.Enabled {
		if cfg.Registry.Redis.Addr == "" {
			return fmt.Errorf("registry.redis.addr is required when registry enabled")
		}
		if cfg.Registry.Advertise != "" {
			if _, err := configtypes.ParseListen(cfg.Registry.Advertise); err != nil {
				return fmt.Errorf("invalid registry.advertise: %w", err)
			}
		}
		if cfg.Registry.HeartbeatInterval <= 0 {
			return fmt.Errorf("registry.heartbeat_interval must be positive")
		}
	}

	if err := cfg.Log.Validate(); err != nil {
		return err
	}

	return cfg.Metrics.Validate(cfg.Server.Listen)
}

// LoadScrapeConfig loads configuration from a file and the process environment
func LoadScrapeConfig(configPath string) (*ScrapeConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseScrapeConfig(data, os.LookupEnv)
}

// ParseScrapeConfig decodes YAML, applies defaults and environment overrides, then validates
func ParseScrapeConfig(data []byte, lookup func(string) (string, bool)) (*ScrapeConfig, error) {
	var cfg ScrapeConfig
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
