package config

import "github.com/edgecomet/distill/internal/common/configtypes"

// Type aliases for the shared configuration sections
type (
	RedisConfig   = configtypes.RedisConfig
	LogConfig     = configtypes.LogConfig
	MetricsConfig = configtypes.MetricsConfig
)
