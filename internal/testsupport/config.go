package testsupport

import (
	"path/filepath"
	"testing"

	"slidewright/internal/config"
)

// ConfigOption adjusts the config returned by NewConfig.
type ConfigOption func(*config.Config)

// NewConfig returns defaults rooted in a fresh t.TempDir: data, logs and
// decks live side by side, the API binds an ephemeral port, the LLM key is a
// placeholder and retries do not back off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.OutputDir = filepath.Join(root, "decks")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.LLM.APIKey = "test"
	cfg.Pipeline.RetryBackoffSeconds = 0
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

func WithMaxConcurrent(n int) ConfigOption {
	return func(cfg *config.Config) { cfg.Pipeline.MaxConcurrent = n }
}

// WithLLMEndpoint points the analyze stage at a test server.
func WithLLMEndpoint(url string) ConfigOption {
	return func(cfg *config.Config) { cfg.LLM.BaseURL = url }
}

// BaseDir returns the temp root NewConfig created for cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
