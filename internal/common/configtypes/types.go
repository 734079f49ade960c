package configtypes

import (
	"fmt"
	"regexp"
	"strings"
)

// Log level constants
const (
	LogLevelDebug  = "debug"
	LogLevelInfo   = "info"
	LogLevelWarn   = "warn"
	LogLevelError  = "error"
	LogLevelDPanic = "dpanic"
	LogLevelPanic  = "panic"
	LogLevelFatal  = "fatal"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// RedisConfig is the connection to the Redis instance holding the service registry
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig configures the console and file sinks of the service logger
type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig is passed through to lumberjack. Sizes in MB, ages in days.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

var validLogLevels = map[string]struct{}{
	LogLevelDebug:  {},
	LogLevelInfo:   {},
	LogLevelWarn:   {},
	LogLevelError:  {},
	LogLevelDPanic: {},
	LogLevelPanic:  {},
	LogLevelFatal:  {},
}

// Validate checks levels, formats and the file sink. Defaults must already be applied.
func (c *LogConfig) Validate() error {
	if _, ok := validLogLevels[c.Level]; !ok {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", c.Level)
	}

	if c.Console.Enabled && c.Console.Format != LogFormatJSON && c.Console.Format != LogFormatConsole {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", c.Console.Format)
	}

	if !c.File.Enabled {
		return nil
	}
	if c.File.Path == "" {
		return fmt.Errorf("log.file.path must be specified when file logging is enabled")
	}
	if c.File.Format != LogFormatJSON && c.File.Format != LogFormatText {
		return fmt.Errorf("invalid log.file.format: %s (must be json or text)", c.File.Format)
	}
	r := c.File.Rotation
	if r.MaxSize < 0 || r.MaxAge < 0 || r.MaxBackups < 0 {
		return fmt.Errorf("log.file.rotation values must be >= 0")
	}
	return nil
}

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks the metrics section against the API listener it must not share a port with
func (c *MetricsConfig) Validate(serverListen string) error {
	if c.Enabled {
		if c.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics enabled")
		}
		metricsAddr, err := ValidateListen(c.Listen)
		if err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}

		serverAddr, err := ParseListen(serverListen)
		if err == nil && metricsAddr.Port == serverAddr.Port {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d) when metrics enabled", metricsAddr.Port, serverAddr.Port)
		}
	}

	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", c.Path)
	}

	if c.Namespace != "" && !namespacePattern.MatchString(c.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", c.Namespace)
	}
	return nil
}
