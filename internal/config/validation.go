package config

import (
	"errors"
	"fmt"
	"net/url"
)

func (c *Config) validate() error {
	if err := c.validateRequiredFields(); err != nil {
		return err
	}
	return c.validateDownloadSettings()
}

func (c *Config) validateRequiredFields() error {
	if c.DownloadPath == "" {
		return errors.New("download_path (ABS_DOWNLOAD_PATH) is required")
	}

	// Server URL and token are only needed for network operations; when set,
	// the URL must at least parse as absolute http(s).
	if c.ServerURL != "" {
		parsed, err := url.Parse(c.ServerURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("server_url is not a valid http(s) URL: %s", c.ServerURL)
		}
	}

	return nil
}

func (c *Config) validateDownloadSettings() error {
	if c.DownloadSettings.MaxConcurrentDownloads <= 0 {
		return errors.New("max_concurrent_downloads must be greater than 0")
	}
	if c.DownloadSettings.MetadataTimeout <= 0 {
		return errors.New("metadata_timeout must be greater than 0")
	}
	if c.DownloadSettings.TrackTimeout <= 0 {
		return errors.New("track_timeout must be greater than 0")
	}
	return nil
}
