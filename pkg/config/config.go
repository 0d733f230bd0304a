// Package config loads CLI settings from an optional YAML file, a .env file
// and STICKIES_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aretw0/stickies/pkg/core"
)

// EnvPrefix prefixes every environment override, e.g. STICKIES_API_URL.
const EnvPrefix = "STICKIES"

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

type APIConfig struct {
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type StorageConfig struct {
	Adapter string `mapstructure:"adapter"` // fs, sqlite or memory
	Dir     string `mapstructure:"dir"`
}

type SyncConfig struct {
	FailurePolicy string `mapstructure:"failure_policy"` // keep or revert
}

// DefaultDir is where stickies.yaml is looked up besides the working
// directory. Storage falls back to it when no .stickies directory is found.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "stickies")
	}
	return ".stickies"
}

// Load reads the configuration. path may be empty, in which case
// stickies.yaml is looked up in the working directory and DefaultDir; a
// missing file is not an error. envFile is loaded first when it exists.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()

	v.SetDefault("api.url", "http://localhost:8000")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.refresh_interval", 4*time.Minute)
	v.SetDefault("storage.adapter", "fs")
	v.SetDefault("storage.dir", "") // resolved by the app
	v.SetDefault("sync.failure_policy", "keep")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("stickies")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown adapters and policies.
func (c *Config) Validate() error {
	switch c.Storage.Adapter {
	case "fs", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage adapter %q", c.Storage.Adapter)
	}
	if _, err := core.ParseFailurePolicy(c.Sync.FailurePolicy); err != nil {
		return err
	}
	if c.API.URL == "" {
		return fmt.Errorf("api.url is required")
	}
	return nil
}
