package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLLM()
	c.normalizeAnalysis()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeCache()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SLIDEWRIGHT_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.WatchdogInterval <= 0 {
		c.Pipeline.WatchdogInterval = defaultWatchdogInterval
	}
	if c.Pipeline.RetryAttempts == 0 {
		c.Pipeline.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, name := range []string{"SLIDEWRIGHT_LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY"} {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.SummaryStyle = strings.ToLower(strings.TrimSpace(c.Analysis.SummaryStyle))
	if c.Analysis.SummaryStyle == "" {
		c.Analysis.SummaryStyle = defaultAnalysisSummaryStyle
	}
	c.Analysis.Language = strings.ToLower(strings.TrimSpace(c.Analysis.Language))
	if c.Analysis.Language == "" {
		c.Analysis.Language = defaultAnalysisLanguage
	}
	if c.Analysis.MaxInputChars <= 0 {
		c.Analysis.MaxInputChars = defaultAnalysisMaxInputChars
	}
}

func (c *Config) normalizeRender() error {
	c.Render.Template = strings.ToLower(strings.TrimSpace(c.Render.Template))
	if c.Render.Template == "" {
		c.Render.Template = defaultRenderTemplate
	}
	c.Render.Format = strings.ToLower(strings.TrimSpace(c.Render.Format))
	if c.Render.Format == "" {
		c.Render.Format = defaultRenderFormat
	}
	if strings.TrimSpace(c.Render.TemplatesFile) != "" {
		var err error
		if c.Render.TemplatesFile, err = expandPath(c.Render.TemplatesFile); err != nil {
			return fmt.Errorf("render.templates_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeCache() {
	c.Cache.RedisAddr = strings.TrimSpace(c.Cache.RedisAddr)
	if c.Cache.RedisAddr == "" {
		if value, ok := os.LookupEnv("SLIDEWRIGHT_REDIS_ADDR"); ok {
			c.Cache.RedisAddr = strings.TrimSpace(value)
		}
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = defaultCacheTTLHours
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = defaultCachePrefix
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SLIDEWRIGHT_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json", "auto":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
