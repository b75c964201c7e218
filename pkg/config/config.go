// Package config provides a reusable loader for channel-engine configuration
// files and environment variables. It is versioned so that embedding
// applications can depend on a stable API contract.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/channelforge/engine/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for an embedding host of the
// channel engine. It mirrors the structure of the YAML files under
// cmd/channeld/config.
type Config struct {
	Engine struct {
		SnapshotInterval uint64 `mapstructure:"snapshot_interval" json:"snapshot_interval"`
		MaxSnapshots     int    `mapstructure:"max_snapshots" json:"max_snapshots"`
		SegmentSize      int    `mapstructure:"segment_size" json:"segment_size"`
		ValidationCache  int    `mapstructure:"validation_cache" json:"validation_cache"`
	} `mapstructure:"engine" json:"engine"`

	Storage struct {
		DataDir string `mapstructure:"data_dir" json:"data_dir"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/channeld/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge %s config: %w", env, err)
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// CHANNELD_* variables let an operator override the YAML-derived engine
	// tuning without editing the config file, e.g. in a container where only
	// env vars are practical to set per deployment. Each override validates
	// its value and keeps the configured one on a bad input.
	AppConfig.Engine.SnapshotInterval = utils.SnapshotIntervalOverride(AppConfig.Engine.SnapshotInterval)
	AppConfig.Engine.MaxSnapshots = utils.MaxSnapshotsOverride(AppConfig.Engine.MaxSnapshots)
	AppConfig.Engine.ValidationCache = utils.ValidationCacheOverride(AppConfig.Engine.ValidationCache)
	AppConfig.Engine.SnapshotInterval = fallbackSnapshotInterval(AppConfig.Engine.SnapshotInterval)
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CHANNELD_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.Env("ENV", ""))
}

// fallbackSnapshotInterval applies the engine's default snapshot interval
// (1000) when the loaded configuration left it unset.
func fallbackSnapshotInterval(configured uint64) uint64 {
	if configured == 0 {
		return 1000
	}
	return configured
}
