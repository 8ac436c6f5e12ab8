package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "SHELLKIT_ADDR", "SHELLKIT_BACKEND", "SHELLKIT_DOMAIN", "SHELLKIT_VERSION",
		"SHELLKIT_DIST_DIR", "SHELLKIT_STATS", "SHELLKIT_LEGACY_STATS", "SHELLKIT_ASSET_PREFIX",
		"SHELLKIT_LEGACY_ASSET_PREFIX", "SHELLKIT_STORAGE_PATH", "DEBUG", "SHELLKIT_LOG_LEVEL",
		"SHELLKIT_LOG_FORMAT", "SHELLKIT_RATE_LIMIT", "SHELLKIT_ALLOWED_ORIGINS", "SHELLKIT_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresBackend(t *testing.T) {
	clearEnv(t)
	_, err := Load(Overrides{})
	require.ErrorIs(t, err, ErrNoBackend)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELLKIT_BACKEND", "http://backend:4000")
	t.Setenv("PORT", "8080")
	t.Setenv("DEBUG", "1")
	t.Setenv("SHELLKIT_RATE_LIMIT", "5")
	t.Setenv("SHELLKIT_ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "http://backend:4000", cfg.Backend)
	require.Equal(t, "example.com", cfg.Domain)
	require.Equal(t, "__development__", cfg.Version)
	require.True(t, cfg.Debug)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5.0, cfg.RateLimit)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
	require.Empty(t, cfg.KnownRoutes)
}

func TestOverridesWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELLKIT_BACKEND", "http://env")
	t.Setenv("SHELLKIT_ADDR", ":1")

	addr, backend, debug := ":2", "http://flag", false
	cfg, err := Load(Overrides{Addr: &addr, Backend: &backend, Debug: &debug})
	require.NoError(t, err)
	require.Equal(t, ":2", cfg.Addr)
	require.Equal(t, "http://flag", cfg.Backend)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestInvalidRateLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELLKIT_BACKEND", "http://env")
	t.Setenv("SHELLKIT_RATE_LIMIT", "fast")
	_, err := Load(Overrides{})
	require.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELLKIT_BACKEND", "http://env")

	path := filepath.Join(t.TempDir(), "shellkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
known_routes:
  - prefix: /search
    type: SEARCH
  - prefix: /account
    type: ACCOUNT
    id: 3
navigation:
  same_base:
    - prev.base == next.base
  min_delay: 150ms
  scroll_duration: 0s
allowed_origins:
  - https://shop.test
`), 0o644))
	t.Setenv("SHELLKIT_CONFIG", path)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, []Route{{Prefix: "/search", Type: "SEARCH"}, {Prefix: "/account", Type: "ACCOUNT", ID: 3}}, cfg.KnownRoutes)
	require.Equal(t, []string{"prev.base == next.base"}, cfg.SameBase)
	require.Equal(t, 150*time.Millisecond, cfg.MinDelay)
	require.Zero(t, cfg.ScrollDuration)
	require.Equal(t, []string{"https://shop.test"}, cfg.AllowedOrigins)

	routes := cfg.Routes()
	require.Len(t, routes, 2)
	require.Equal(t, "ACCOUNT", routes[1].Value.Type)
	require.Equal(t, 3, *routes[1].Value.ID)
}

func TestBadConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELLKIT_BACKEND", "http://env")

	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Load(Overrides{ConfigFile: &missing})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("known_routes:\n  - type: SEARCH\n"), 0o644))
	_, err = Load(Overrides{ConfigFile: &path})
	require.Error(t, err)
}
