package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"slidewright/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Pipeline contains scheduler admission, retry and watchdog settings.
type Pipeline struct {
	MaxConcurrent       int `toml:"max_concurrent"`
	TaskTimeoutSeconds  int `toml:"task_timeout_seconds"`
	RetryAttempts       int `toml:"retry_attempts"`
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	WatchdogInterval    int `toml:"watchdog_interval_seconds"`
}

// LLM contains the chat-completions connection settings used by the analyze stage.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis contains default options for the analyze stage. Individual stage
// requests may override any of them.
type Analysis struct {
	Temperature   float64 `toml:"temperature"`
	SummaryLength int     `toml:"summary_length"`
	SummaryStyle  string  `toml:"summary_style"`
	Language      string  `toml:"language"`
	KeyPoints     int     `toml:"key_points"`
	MaxSlides     int     `toml:"max_slides"`
	MaxInputChars int     `toml:"max_input_chars"`
}

// Render contains default options for the render stage.
type Render struct {
	Template       string `toml:"template"`
	Format         string `toml:"format"`
	IncludeFigures bool   `toml:"include_figures"`
	IncludeNotes   bool   `toml:"include_notes"`
	TemplatesFile  string `toml:"templates_file"`
}

// Cache contains the optional Redis analysis cache settings. An empty
// address disables caching.
type Cache struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLHours      int    `toml:"ttl_hours"`
	Prefix        string `toml:"prefix"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	StageCompleted    bool   `toml:"stage_completed"`
	DocumentCompleted bool   `toml:"document_completed"`
	Errors            bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for slidewright.
//
// Configuration sections by subsystem:
//   - Paths: data, log and deck output directories plus the API bind address
//   - Pipeline: concurrency ceiling, task timeout, retry policy, watchdog cadence
//   - LLM: chat-completions endpoint used by the analyze stage
//   - Analysis: default analyze options
//   - Render: default render options and custom template catalog
//   - Cache: optional Redis cache for analysis results
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	LLM           LLM           `toml:"llm"`
	Analysis      Analysis      `toml:"analysis"`
	Render        Render        `toml:"render"`
	Cache         Cache         `toml:"cache"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns ~/.config/slidewright/config.toml, expanded.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load builds the effective configuration. An explicit path is used as-is
// and may be missing; otherwise the user config and then ./slidewright.toml
// are tried. It returns the config, the file that was (or would be) read and
// whether that file exists. A .env file in the working directory is read
// first without overriding the process environment.
func Load(path string) (*Config, string, bool, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	source, found, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if found {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, "", false, fmt.Errorf("read %s: %w", source, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse %s: %w", source, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, source, found, nil
}

func locate(explicit string) (string, bool, error) {
	if explicit != "" {
		p, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		ok, err := isFile(p)
		return p, ok, err
	}

	userPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("slidewright.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	default:
		return !info.IsDir(), nil
	}
}

// EnsureDirectories creates the data, log, output and documents directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.OutputDir, c.DocumentsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "slidewright.db")
}

// DocumentsDir returns the directory holding uploaded source documents.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.Paths.DataDir, "documents")
}

// TemplatesPath returns the optional user template catalog location.
func (c *Config) TemplatesPath() string {
	if c.Render.TemplatesFile != "" {
		return c.Render.TemplatesFile
	}
	return filepath.Join(c.Paths.DataDir, "templates.yaml")
}

// TaskTimeout returns the watchdog deadline for a single task.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Pipeline.TaskTimeoutSeconds) * time.Second
}

// RetryBackoff returns the linear backoff unit between executor attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Pipeline.RetryBackoffSeconds) * time.Second
}

// WatchdogInterval returns how often the watchdog scans for overdue tasks.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Pipeline.WatchdogInterval) * time.Second
}

// CacheTTL returns the lifetime of cached analysis results.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// expandPath resolves a leading ~ or ~/ against the home directory and
// returns a clean absolute path. Empty input stays empty.
func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimLeft(p[1:], `/\`))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	return abs, nil
}

// ExpandPath applies the same ~ and absolute-path rules used for config paths.
func ExpandPath(p string) (string, error) {
	return expandPath(p)
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	_, err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, sampleConfig)
		return err
	})
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
