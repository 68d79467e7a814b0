package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validatePolling(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateService() error {
	parsed, err := url.Parse(c.Service.BaseURL)
	if err != nil {
		return fmt.Errorf("service.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("service.base_url must use http or https, got %q", c.Service.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("service.base_url must include a host, got %q", c.Service.BaseURL)
	}
	if c.Service.RequestTimeout <= 0 {
		return errors.New("service.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validatePolling() error {
	if c.Polling.IntervalMS <= 0 {
		return errors.New("polling.interval_ms must be positive")
	}
	if c.Polling.TimeoutMS <= c.Polling.IntervalMS {
		return errors.New("polling.timeout_ms must be greater than polling.interval_ms")
	}
	if c.Polling.ModelTimeoutMS <= 0 {
		return errors.New("polling.model_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
