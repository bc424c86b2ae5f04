package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != DefaultConfig().APIBaseURL {
		t.Fatalf("APIBaseURL = %q, want %q", cfg.APIBaseURL, DefaultConfig().APIBaseURL)
	}
	if cfg.TileCacheMaxEntries != 2000 {
		t.Fatalf("TileCacheMaxEntries = %d, want 2000", cfg.TileCacheMaxEntries)
	}
	if cfg.ManifestPath != "" {
		t.Fatalf("ManifestPath = %q, want empty", cfg.ManifestPath)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	content := `{"api_base_url": "http://127.0.0.1:9999/v1", "tile_cache_ttl": "1h", "sync_concurrency": 2}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "http://127.0.0.1:9999/v1" {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.TileCacheTTL.Std() != time.Hour {
		t.Fatalf("TileCacheTTL = %v, want 1h", cfg.TileCacheTTL.Std())
	}
	if cfg.SyncConcurrency != 2 {
		t.Fatalf("SyncConcurrency = %d, want 2", cfg.SyncConcurrency)
	}
	// Untouched fields keep defaults
	if cfg.TilePartition != "map-tiles-v1" {
		t.Fatalf("TilePartition = %q, want default", cfg.TilePartition)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"fetch_timeout": "soon"}`), 0600))

	_, err := Load(tmpDir)
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"listen": "127.0.0.1:1111"}`), 0600))

	t.Setenv("STORYSYNC_LISTEN", "127.0.0.1:2222")
	t.Setenv("STORYSYNC_TOKEN_TIMEOUT", "250ms")
	t.Setenv("STORYSYNC_DISABLED_TOOLS", "story_delete, cache_activate")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2222", cfg.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.TokenTimeout.Std())
	assert.Equal(t, []string{"story_delete", "cache_activate"}, cfg.DisabledTools)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("STORYSYNC_SYNC_CONCURRENCY", "not-an-int")

	_, err := ParseEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad_ManifestPathResolution(t *testing.T) {
	t.Run("relative path joins base dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"manifest_path": "assets.toml"}`), 0600))

		cfg, err := Load(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "assets.toml"), cfg.ManifestPath)
	})

	t.Run("precache.toml picked up when present", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "precache.toml"), []byte("version = \"v1\"\n"), 0600))

		cfg, err := Load(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "precache.toml"), cfg.ManifestPath)
	})
}

func TestMerge(t *testing.T) {
	base := &Config{
		Listen:        "a",
		FetchTimeout:  Duration(time.Second),
		DisabledTools: []string{"story_delete"},
	}
	overlay := &Config{
		APIBaseURL:    "http://api",
		FetchTimeout:  Duration(2 * time.Second),
		DisabledTools: []string{" story_delete ", "cache_install"},
	}

	got := Merge(base, overlay)

	assert.Equal(t, "a", got.Listen)
	assert.Equal(t, "http://api", got.APIBaseURL)
	assert.Equal(t, 2*time.Second, got.FetchTimeout.Std())
	assert.Equal(t, []string{"story_delete", "cache_install"}, got.DisabledTools)
}

func TestMergeStringSlice_Empty(t *testing.T) {
	if got := mergeStringSlice(nil, []string{"", "  "}); got != nil {
		t.Fatalf("mergeStringSlice() = %v, want nil", got)
	}
}

func TestLoadManifest(t *testing.T) {
	t.Run("empty path uses default", func(t *testing.T) {
		m, err := LoadManifest("")
		require.NoError(t, err)
		assert.Equal(t, DefaultManifest().Version, m.Version)
		assert.Equal(t, "static-v6", m.StaticPartition())
	})

	t.Run("missing file uses default", func(t *testing.T) {
		m, err := LoadManifest(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.Len(t, m.Assets, len(DefaultManifest().Assets))
	})

	t.Run("toml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "precache.toml")
		content := "version = \"v7\"\nassets = [\"/\", \"/index.html\", \"/index.html\", \"/app.js\"]\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		m, err := LoadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, "v7", m.Version)
		assert.Equal(t, []string{"/", "/index.html", "/app.js"}, m.Assets)
		assert.Equal(t, "static-v7", m.StaticPartition())
	})

	t.Run("missing version", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "precache.toml")
		require.NoError(t, os.WriteFile(path, []byte("assets = [\"/\"]\n"), 0600))

		_, err := LoadManifest(path)
		require.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "precache.toml")
		require.NoError(t, os.WriteFile(path, []byte("version = \n"), 0600))

		_, err := LoadManifest(path)
		require.Error(t, err)
	})
}
