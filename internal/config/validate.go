package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.max_concurrent":            c.Pipeline.MaxConcurrent,
		"pipeline.task_timeout_seconds":      c.Pipeline.TaskTimeoutSeconds,
		"pipeline.retry_attempts":            c.Pipeline.RetryAttempts,
		"pipeline.watchdog_interval_seconds": c.Pipeline.WatchdogInterval,
	}); err != nil {
		return err
	}
	if c.Pipeline.RetryBackoffSeconds < 0 {
		return errors.New("pipeline.retry_backoff_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	parsed, err := url.Parse(c.LLM.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("llm.base_url %q is not an absolute URL", c.LLM.BaseURL)
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return errors.New("analysis.temperature must be between 0 and 2")
	}
	if c.Analysis.SummaryLength < 100 || c.Analysis.SummaryLength > 2000 {
		return errors.New("analysis.summary_length must be between 100 and 2000")
	}
	switch c.Analysis.SummaryStyle {
	case "academic", "simple", "bullet_points":
	default:
		return fmt.Errorf("analysis.summary_style %q must be academic, simple or bullet_points", c.Analysis.SummaryStyle)
	}
	if c.Analysis.KeyPoints < 1 || c.Analysis.KeyPoints > 20 {
		return errors.New("analysis.key_points must be between 1 and 20")
	}
	if c.Analysis.MaxSlides < 1 || c.Analysis.MaxSlides > 50 {
		return errors.New("analysis.max_slides must be between 1 and 50")
	}
	return nil
}

func (c *Config) validateRender() error {
	switch c.Render.Format {
	case "pptx", "pdf":
	default:
		return fmt.Errorf("render.format %q must be pptx or pdf", c.Render.Format)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.RedisAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Cache.RedisAddr); err != nil {
		return fmt.Errorf("cache.redis_addr must be host:port: %w", err)
	}
	if c.Cache.RedisDB < 0 {
		return errors.New("cache.redis_db must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
