package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edgecomet/distill/internal/common/configtypes"
)

func fileConfig(path, level string) configtypes.LogConfig {
	return configtypes.LogConfig{
		Level: level,
		File: configtypes.FileLogConfig{
			Enabled: true,
			Path:    path,
			Format:  configtypes.LogFormatJSON,
			Rotation: configtypes.RotationConfig{
				MaxSize:    10,
				MaxAge:     7,
				MaxBackups: 3,
			},
		},
	}
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	logger, err := NewLogger(configtypes.LogConfig{
		Level:   configtypes.LogLevelInfo,
		Console: configtypes.ConsoleLogConfig{Enabled: true, Format: configtypes.LogFormatConsole},
	}, "scrape-service")
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, zap.InfoLevel, logger.consoleLevel.Level())
	assert.Nil(t, logger.fileLevel)
}

func TestNewLogger_FileOnly(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "scrape.log")

	logger, err := NewLogger(fileConfig(logPath, configtypes.LogLevelDebug), "scrape-service")
	require.NoError(t, err)

	logger.Debug("tab acquired", zap.String("lease_id", "abc"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"tab acquired"`)
	assert.Contains(t, string(data), `"service":"scrape-service"`)
	assert.Contains(t, string(data), `"lease_id":"abc"`)
}

func TestNewLogger_NoOutputs(t *testing.T) {
	_, err := NewLogger(configtypes.LogConfig{Level: configtypes.LogLevelInfo}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one log output")
}

func TestNewLogger_FileWithoutPath(t *testing.T) {
	_, err := NewLogger(configtypes.LogConfig{
		Level: configtypes.LogLevelInfo,
		File:  configtypes.FileLogConfig{Enabled: true},
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file.path must be specified")
}

func TestNewLogger_PerOutputLevels(t *testing.T) {
	cfg := fileConfig(filepath.Join(t.TempDir(), "x.log"), configtypes.LogLevelWarn)
	cfg.Console = configtypes.ConsoleLogConfig{Enabled: true, Format: configtypes.LogFormatJSON, Level: configtypes.LogLevelDebug}

	logger, err := NewLogger(cfg, "")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, zap.DebugLevel, logger.consoleLevel.Level())
	assert.Equal(t, zap.WarnLevel, logger.fileLevel.Level())
}

func TestNewLoggerWithStartupOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "startup.log")

	logger, err := NewLoggerWithStartupOverride(fileConfig(logPath, configtypes.LogLevelError), "")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, zap.InfoLevel, logger.fileLevel.Level(), "startup runs at INFO")

	logger.SwitchToConfiguredLevel()
	assert.Equal(t, zap.ErrorLevel, logger.fileLevel.Level())

	logger.EnsureInfoLevelForShutdown()
	assert.Equal(t, zap.InfoLevel, logger.fileLevel.Level())
}

func TestNewLoggerWithStartupOverride_LowLevelUnchanged(t *testing.T) {
	logger, err := NewLoggerWithStartupOverride(configtypes.LogConfig{
		Level:   configtypes.LogLevelDebug,
		Console: configtypes.ConsoleLogConfig{Enabled: true, Format: configtypes.LogFormatConsole},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, logger.consoleLevel.Level())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":  zap.DebugLevel,
		"info":   zap.InfoLevel,
		"warn":   zap.WarnLevel,
		"error":  zap.ErrorLevel,
		"dpanic": zap.DPanicLevel,
		"panic":  zap.PanicLevel,
		"fatal":  zap.FatalLevel,
		"":       zap.InfoLevel,
		"bogus":  zap.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, logger.consoleLevel.Level())
}
