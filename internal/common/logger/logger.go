package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/distill/internal/common/configtypes"
)

// DynamicLogger wraps zap.Logger with per-output levels that can be switched at runtime
type DynamicLogger struct {
	*zap.Logger
	consoleLevel *zap.AtomicLevel
	fileLevel    *zap.AtomicLevel
	configured   configtypes.LogConfig
	fileCloser   io.Closer
}

// SwitchToConfiguredLevel moves every output to its configured level
func (dl *DynamicLogger) SwitchToConfiguredLevel() {
	globalLevel := parseLogLevel(dl.configured.Level)

	dl.Info("Switching logger to configured level", zap.String("level", dl.configured.Level))

	if dl.consoleLevel != nil {
		dl.consoleLevel.SetLevel(resolveLogLevel(dl.configured.Console.Level, globalLevel))
	}
	if dl.fileLevel != nil {
		dl.fileLevel.SetLevel(resolveLogLevel(dl.configured.File.Level, globalLevel))
	}
}

// EnsureInfoLevelForShutdown lowers outputs above INFO so the shutdown sequence is visible
func (dl *DynamicLogger) EnsureInfoLevelForShutdown() {
	levelChanged := false

	for _, lvl := range []*zap.AtomicLevel{dl.consoleLevel, dl.fileLevel} {
		if lvl != nil && lvl.Level() > zap.InfoLevel {
			lvl.SetLevel(zap.InfoLevel)
			levelChanged = true
		}
	}

	if levelChanged {
		dl.Info("Switched to INFO level for shutdown visibility")
	}
}

// Close flushes buffered entries and closes the log file, if any
func (dl *DynamicLogger) Close() error {
	_ = dl.Sync()
	if dl.fileCloser != nil {
		return dl.fileCloser.Close()
	}
	return nil
}

// NewLogger creates a logger for service with the given output configuration
func NewLogger(config configtypes.LogConfig, service string) (*DynamicLogger, error) {
	globalLevel := parseLogLevel(config.Level)

	var cores []zapcore.Core
	dl := &DynamicLogger{configured: config}

	if config.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.Console.Level, globalLevel))
		dl.consoleLevel = &level
		cores = append(cores, zapcore.NewCore(createEncoder(config.Console.Format), zapcore.Lock(os.Stdout), level))
	}

	if config.File.Enabled {
		if config.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}

		level := zap.NewAtomicLevelAt(resolveLogLevel(config.File.Level, globalLevel))
		dl.fileLevel = &level
		writer := newRotatingWriter(config.File.Path, config.File.Rotation)
		dl.fileCloser = writer
		cores = append(cores, zapcore.NewCore(createEncoder(config.File.Format), zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	var opts []zap.Option
	if service != "" {
		opts = append(opts, zap.Fields(zap.String("service", service)))
	}
	dl.Logger = zap.New(core, opts...)

	return dl, nil
}

// NewLoggerWithStartupOverride starts at INFO when the configured level is higher,
// so startup is always logged. Call SwitchToConfiguredLevel once the service is ready.
func NewLoggerWithStartupOverride(config configtypes.LogConfig, service string) (*DynamicLogger, error) {
	if parseLogLevel(config.Level) <= zap.InfoLevel {
		return NewLogger(config, service)
	}

	startupConfig := config
	startupConfig.Level = configtypes.LogLevelInfo

	// Outputs with their own level keep it
	if startupConfig.Console.Enabled && startupConfig.Console.Level == "" {
		startupConfig.Console.Level = configtypes.LogLevelInfo
	}
	if startupConfig.File.Enabled && startupConfig.File.Level == "" {
		startupConfig.File.Level = configtypes.LogLevelInfo
	}

	dl, err := NewLogger(startupConfig, service)
	if err != nil {
		return nil, err
	}
	dl.configured = config

	return dl, nil
}

// NewDefaultLogger creates a debug console logger for use before configuration is loaded
func NewDefaultLogger() (*DynamicLogger, error) {
	return NewLogger(configtypes.LogConfig{
		Level: configtypes.LogLevelDebug,
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
		},
	}, "")
}

// parseLogLevel maps unknown names to INFO
func parseLogLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.InfoLevel
	}
	return lvl
}

// resolveLogLevel prefers the output's own level over the global one
func resolveLogLevel(outputLevel string, globalLevel zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLogLevel(outputLevel)
	}
	return globalLevel
}

func createEncoder(format string) zapcore.Encoder {
	if format == configtypes.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == configtypes.LogFormatText {
		// No color codes in files
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zapcore.NewConsoleEncoder(encoderConfig)
}

func newRotatingWriter(path string, rotation configtypes.RotationConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	}
}
