package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the engine's own state.
type Paths struct {
	LibraryRoots  []string `toml:"library_roots"`
	QuarantineDir string   `toml:"quarantine_dir"`
	StateDir      string   `toml:"state_dir"`
	LogDir        string   `toml:"log_dir"`
}

// PathMapping rewrites a catalog path prefix to a local mount prefix.
type PathMapping struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// Catalog contains configuration for the read-only library catalog database.
type Catalog struct {
	DBPath         string        `toml:"db_path"`
	PathMappings   []PathMapping `toml:"path_mappings"`
	TrashAfterMove bool          `toml:"trash_after_move"`
}

// Probe contains configuration for the technical metadata probe.
type Probe struct {
	Binary         string `toml:"binary"`
	Workers        int    `toml:"workers"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	SampleFiles    int    `toml:"sample_files"`
}

// Scan contains worker pool sizes and grouping thresholds.
type Scan struct {
	Workers                    int     `toml:"workers"`
	AIWorkers                  int     `toml:"ai_workers"`
	GapThreshold               int     `toml:"gap_threshold"`
	MissingTrackPct            float64 `toml:"missing_track_pct"`
	MaxConsecutiveEmptyArtists int     `toml:"max_consecutive_empty_artists"`
	ClassicalDurationTolerance int     `toml:"classical_duration_tolerance_seconds"`
}

// Resolve contains configuration for the primary metadata catalog client and
// the rate-limited request queue in front of it.
type Resolve struct {
	BaseURL             string `toml:"base_url"`
	CoverArtBaseURL     string `toml:"cover_art_base_url"`
	UserAgent           string `toml:"user_agent"`
	RateIntervalMS      int    `toml:"rate_interval_ms"`
	QueueTimeoutSeconds int    `toml:"queue_timeout_seconds"`
}

// AI contains shared LLM connection settings.
type AI struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WebSearch contains configuration for the optional snippet provider.
type WebSearch struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Discogs contains configuration for the record-store database provider.
type Discogs struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// LastFM contains configuration for the social listening database provider.
type LastFM struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Bandcamp contains configuration for the storefront scrape provider.
type Bandcamp struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// Providers groups the secondary metadata catalogs.
type Providers struct {
	Discogs  Discogs  `toml:"discogs"`
	LastFM   LastFM   `toml:"lastfm"`
	Bandcamp Bandcamp `toml:"bandcamp"`
}

// Notifications contains configuration for webhook push notifications.
type Notifications struct {
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	ScanComplete   bool   `toml:"scan_complete"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// History contains scan-history retention settings.
type History struct {
	KeepRuns int `toml:"keep_runs"`
}

// Config encapsulates all configuration values for the engine.
//
// Configuration sections by subsystem:
//   - Paths: library mounts, quarantine root, state and log directories
//   - Catalog: read-only library database and path prefix mappings
//   - Probe: ffprobe binary, worker pool, timeouts
//   - Scan: worker pools, broken-album thresholds, circuit breaker
//   - Resolve: primary metadata catalog endpoint and rate budget
//   - AI: LLM connection settings for disambiguation and best-edition picks
//   - WebSearch: optional snippet provider for the final AI pass
//   - Providers: secondary catalogs (Discogs, Last.fm, Bandcamp)
//   - Notifications: webhook settings
//   - Logging: log format, level, and retention
//   - History: scan-history retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Probe         Probe         `toml:"probe"`
	Scan          Scan          `toml:"scan"`
	Resolve       Resolve       `toml:"resolve"`
	AI            AI            `toml:"ai"`
	WebSearch     WebSearch     `toml:"websearch"`
	Providers     Providers     `toml:"providers"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	History       History       `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/deadwax/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("DEADWAX_CONFIG"))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("deadwax.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the engine writes to. The
// quarantine root is created on a best-effort basis so the engine can start
// when mass storage is temporarily offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.QuarantineDir) != "" {
		_ = os.MkdirAll(c.Paths.QuarantineDir, 0o755)
	}
	return nil
}

// StateDBPath returns the path of the engine's SQLite state database.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.StateDir, "deadwax.db")
}

// LockFilePath returns the flock path guarding single-scan execution.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "deadwax.lock")
}

// LogFilePath returns the active log file location, or "" when file logging
// is disabled.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "deadwax.log")
}

// MapCatalogPath rewrites a catalog-reported path through the configured
// prefix mappings. Paths without a matching prefix pass through unchanged.
func (c *Config) MapCatalogPath(path string) string {
	for _, mapping := range c.Catalog.PathMappings {
		from := strings.TrimRight(mapping.From, "/")
		if from == "" {
			continue
		}
		if path == from {
			return mapping.To
		}
		if strings.HasPrefix(path, from+"/") {
			return filepath.Join(mapping.To, strings.TrimPrefix(path, from+"/"))
		}
	}
	return path
}

// AIEnabled reports whether an AI provider is configured.
func (c *Config) AIEnabled() bool {
	return strings.TrimSpace(c.AI.APIKey) != "" && strings.TrimSpace(c.AI.Model) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ResolvePath reports which configuration file Load would read for the given
// override, and whether that file exists yet.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
