package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxConcurrentDownloads = 3
	DefaultMetadataTimeout        = 30 * time.Second
	DefaultTrackTimeout           = 300 * time.Second
	DefaultProgressUpdateInterval = time.Second
)

type Config struct {
	ServerURL    string `yaml:"server_url"`
	APIToken     string `yaml:"api_token"`
	DownloadPath string `yaml:"download_path"`
	LogLevel     string `yaml:"log_level"`

	DownloadSettings DownloadConfig `yaml:"download"`
}

type DownloadConfig struct {
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	MetadataTimeout        time.Duration `yaml:"metadata_timeout"`
	TrackTimeout           time.Duration `yaml:"track_timeout"`
	ProgressUpdateInterval time.Duration `yaml:"progress_update_interval"`
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Load reads the YAML config file at path (if path is non-empty and the file
// exists), then applies environment-variable overrides and defaults.
func Load(path string) (*Config, error) {
	config := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnvOverrides() {
	c.ServerURL = getEnv("ABS_SERVER_URL", c.ServerURL)
	c.APIToken = getEnv("ABS_API_TOKEN", c.APIToken)
	c.DownloadPath = getEnv("ABS_DOWNLOAD_PATH", c.DownloadPath)
	c.LogLevel = getEnv("ABS_LOG_LEVEL", c.LogLevel)

	c.DownloadSettings.MaxConcurrentDownloads = getEnvInt(
		"ABS_MAX_CONCURRENT_DOWNLOADS", c.DownloadSettings.MaxConcurrentDownloads)
	c.DownloadSettings.MetadataTimeout = getEnvDuration(
		"ABS_METADATA_TIMEOUT", c.DownloadSettings.MetadataTimeout)
	c.DownloadSettings.TrackTimeout = getEnvDuration(
		"ABS_TRACK_TIMEOUT", c.DownloadSettings.TrackTimeout)
	c.DownloadSettings.ProgressUpdateInterval = getEnvDuration(
		"ABS_PROGRESS_UPDATE_INTERVAL", c.DownloadSettings.ProgressUpdateInterval)
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DownloadSettings.MaxConcurrentDownloads == 0 {
		c.DownloadSettings.MaxConcurrentDownloads = DefaultMaxConcurrentDownloads
	}
	if c.DownloadSettings.MetadataTimeout == 0 {
		c.DownloadSettings.MetadataTimeout = DefaultMetadataTimeout
	}
	if c.DownloadSettings.TrackTimeout == 0 {
		c.DownloadSettings.TrackTimeout = DefaultTrackTimeout
	}
	if c.DownloadSettings.ProgressUpdateInterval == 0 {
		c.DownloadSettings.ProgressUpdateInterval = DefaultProgressUpdateInterval
	}
}
