package testsupport

import (
	"path/filepath"
	"testing"

	"banana3d/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Service.RequestTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServiceURL points the config at a test server.
func WithServiceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.BaseURL = url
	}
}

// WithPolling overrides the polling window in milliseconds.
func WithPolling(intervalMS, timeoutMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Polling.IntervalMS = intervalMS
		b.cfg.Polling.TimeoutMS = timeoutMS
	}
}

// WithNtfyTopic enables push notifications against the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithHistory toggles the run journal.
func WithHistory(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithModelTimeout overrides the model deadline in milliseconds.
func WithModelTimeout(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Polling.ModelTimeoutMS = ms
	}
}
