package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Duration is a time.Duration that reads and writes as a Go duration string ("30s", "168h").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler (used by both JSON and env parsing).
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds application configuration.
type Config struct {
	// Listen is the address the edge server binds to.
	Listen string `json:"listen,omitempty" env:"STORYSYNC_LISTEN"`

	// APIBaseURL is the remote story API, e.g. https://story-api.dicoding.dev/v1.
	// Its host decides which requests classify as api-data or offline-submission.
	APIBaseURL string `json:"api_base_url,omitempty" env:"STORYSYNC_API_BASE_URL"`

	// TileBaseURL is where /tiles/... requests are forwarded.
	TileBaseURL string `json:"tile_base_url,omitempty" env:"STORYSYNC_TILE_BASE_URL"`

	// TileHost is the map-tile provider host. Subdomains (a.tile...) match too.
	TileHost string `json:"tile_host,omitempty" env:"STORYSYNC_TILE_HOST"`

	// AppOrigin serves the client application's static assets.
	AppOrigin string `json:"app_origin,omitempty" env:"STORYSYNC_APP_ORIGIN"`

	// ManifestPath points at the TOML precache manifest. Relative paths resolve against the base dir.
	// Empty uses <base>/precache.toml when present, else the built-in manifest.
	ManifestPath string `json:"manifest_path,omitempty" env:"STORYSYNC_MANIFEST"`

	// Partition names for the opportunistic caches.
	DynamicPartition string `json:"dynamic_partition,omitempty"`
	APIPartition     string `json:"api_partition,omitempty"`
	TilePartition    string `json:"tile_partition,omitempty"`

	// TileCacheMaxEntries bounds the map-tile partition. 0 disables the bound.
	TileCacheMaxEntries int `json:"tile_cache_max_entries,omitempty" env:"STORYSYNC_TILE_CACHE_MAX_ENTRIES"`

	// TileCacheTTL expires map tiles older than this. 0 disables expiry.
	TileCacheTTL Duration `json:"tile_cache_ttl,omitempty" env:"STORYSYNC_TILE_CACHE_TTL"`

	// FetchTimeout bounds every outbound request.
	FetchTimeout Duration `json:"fetch_timeout,omitempty" env:"STORYSYNC_FETCH_TIMEOUT"`

	// TokenTimeout bounds the GET_AUTH_TOKEN round-trip to a view context.
	TokenTimeout Duration `json:"token_timeout,omitempty" env:"STORYSYNC_TOKEN_TIMEOUT"`

	// ProbeInterval is how often connectivity to the story API is checked.
	ProbeInterval Duration `json:"probe_interval,omitempty" env:"STORYSYNC_PROBE_INTERVAL"`

	// SyncConcurrency bounds parallel uploads during reconciliation.
	SyncConcurrency int `json:"sync_concurrency,omitempty" env:"STORYSYNC_SYNC_CONCURRENCY"`

	// StaticToken is used when no view context can supply a credential.
	// Leave empty to require a connected client.
	StaticToken string `json:"static_token,omitempty" env:"STORYSYNC_TOKEN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" env:"STORYSYNC_LOG_LEVEL"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"STORYSYNC_DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"STORYSYNC_DB_MAX_IDLE_CONNS"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"STORYSYNC_DISABLED_TOOLS" envSeparator:","`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8787",
		APIBaseURL:          "https://story-api.dicoding.dev/v1",
		TileBaseURL:         "https://tile.openstreetmap.org",
		TileHost:            "tile.openstreetmap.org",
		AppOrigin:           "http://localhost:9000",
		DynamicPartition:    "dynamic-cache-v2",
		APIPartition:        "api-cache-v1",
		TilePartition:       "map-tiles-v1",
		TileCacheMaxEntries: 2000,
		TileCacheTTL:        Duration(7 * 24 * time.Hour),
		FetchTimeout:        Duration(30 * time.Second),
		TokenTimeout:        Duration(5 * time.Second),
		ProbeInterval:       Duration(15 * time.Second),
		SyncConcurrency:     4,
		LogLevel:            "info",
	}
}

// Load loads configuration from baseDir/config.json, then applies STORYSYNC_* environment overrides.
// Returns default config (plus env) if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.storysync.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	fromEnv, err := ParseEnv()
	if err != nil {
		return nil, err
	}
	cfg = Merge(cfg, fromEnv)

	if cfg.ManifestPath != "" && !filepath.IsAbs(cfg.ManifestPath) {
		cfg.ManifestPath = filepath.Join(baseDir, cfg.ManifestPath)
	}
	if cfg.ManifestPath == "" {
		candidate := filepath.Join(baseDir, "precache.toml")
		if _, err := os.Stat(candidate); err == nil {
			cfg.ManifestPath = candidate
		}
	}
	return cfg, nil
}

// ParseEnv reads STORYSYNC_* variables into a zero-valued Config.
// Unset variables stay zero so Merge keeps the file/default value.
func ParseEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Listen = pickString(overlay.Listen, base.Listen)
	result.APIBaseURL = pickString(overlay.APIBaseURL, base.APIBaseURL)
	result.TileBaseURL = pickString(overlay.TileBaseURL, base.TileBaseURL)
	result.TileHost = pickString(overlay.TileHost, base.TileHost)
	result.AppOrigin = pickString(overlay.AppOrigin, base.AppOrigin)
	result.ManifestPath = pickString(overlay.ManifestPath, base.ManifestPath)
	result.DynamicPartition = pickString(overlay.DynamicPartition, base.DynamicPartition)
	result.APIPartition = pickString(overlay.APIPartition, base.APIPartition)
	result.TilePartition = pickString(overlay.TilePartition, base.TilePartition)
	result.StaticToken = pickString(overlay.StaticToken, base.StaticToken)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	result.TileCacheMaxEntries = pickInt(overlay.TileCacheMaxEntries, base.TileCacheMaxEntries)
	result.SyncConcurrency = pickInt(overlay.SyncConcurrency, base.SyncConcurrency)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.TileCacheTTL = Duration(pickInt(int64(overlay.TileCacheTTL), int64(base.TileCacheTTL)))
	result.FetchTimeout = Duration(pickInt(int64(overlay.FetchTimeout), int64(base.FetchTimeout)))
	result.TokenTimeout = Duration(pickInt(int64(overlay.TokenTimeout), int64(base.TokenTimeout)))
	result.ProbeInterval = Duration(pickInt(int64(overlay.ProbeInterval), int64(base.ProbeInterval)))

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt[T int | int64](overlay, base T) T {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
