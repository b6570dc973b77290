package testsupport

import (
	"path/filepath"
	"testing"

	"deadwax/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The AI client stays disabled unless a test opts in with WithAIKey.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Catalog.DBPath = filepath.Join(base, "library.db")
	cfgVal.Paths.LibraryRoots = []string{filepath.Join(base, "music")}
	cfgVal.Paths.QuarantineDir = filepath.Join(base, "quarantine")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Resolve.RateIntervalMS = 250

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

// WithAIKey enables the AI client on the test config.
func WithAIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AI.APIKey = key
	}
}

// WithLibraryRoots overrides the library roots on the test config.
func WithLibraryRoots(roots ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LibraryRoots = roots
	}
}

// WithScanWorkers pins the scan and AI pool sizes, usually to 1 for
// deterministic ordering.
func WithScanWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.Workers = workers
		b.cfg.Scan.AIWorkers = workers
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
