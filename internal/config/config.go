package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or BLIP_* environment variables.
type Config struct {
	DataDir            string        `mapstructure:"data_dir"`
	PageSize           int           `mapstructure:"page_size"`
	ScrollThreshold    int           `mapstructure:"scroll_threshold"`
	XKCDURL            string        `mapstructure:"xkcd_url"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	SyncConcurrency    int           `mapstructure:"sync_concurrency"`
	TranscriptRefresh  time.Duration `mapstructure:"transcript_refresh"`
	RedownloadInterval time.Duration `mapstructure:"redownload_interval"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	Host               string        `mapstructure:"host"`
	Port               string        `mapstructure:"port"`
}

var defaults = map[string]any{
	"data_dir":            "./data",
	"page_size":           20,
	"scroll_threshold":    4,
	"xkcd_url":            "https://xkcd.com",
	"http_timeout":        30 * time.Second,
	"sync_concurrency":    5,
	"transcript_refresh":  7 * 24 * time.Hour,
	"redownload_interval": 30 * 24 * time.Hour,
	"log_level":           "info",
	"log_format":          "text",
	"host":                "localhost",
	"port":                "6894",
}

// Load reads configuration from path/config.yaml and the environment.
// A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.ScrollThreshold < 0 {
		return fmt.Errorf("scroll_threshold must not be negative, got %d", c.ScrollThreshold)
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("sync_concurrency must be positive, got %d", c.SyncConcurrency)
	}
	if c.DataDir == "" {
		return errors.New("data_dir is not set")
	}
	return nil
}

// DBPath is the SQLite comic cache
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "blip.db")
}

// IndexPath is the Bleve keyword index
func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "bleve")
}

// SettingsPath is the Badger settings directory
func (c Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings")
}

// Addr is the browse API listen address
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
