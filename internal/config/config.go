package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/version"
)

// ErrNoBackend is returned when no GraphQL origin is configured.
var ErrNoBackend = errors.New("SHELLKIT_BACKEND environment variable is required")

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// Backend is the GraphQL origin serving /graphql.
	Backend string
	Domain  string
	Version string

	DistDir           string
	StatsFile         string
	LegacyStatsFile   string
	AssetPrefix       string
	LegacyAssetPrefix string

	StoragePath string

	Debug     bool
	LogLevel  string
	LogFormat string

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string

	// Fields below come from the optional config file.
	KnownRoutes []Route
	// SameBase are expressions deciding whether two locations share a base.
	SameBase       []string
	MinDelay       time.Duration
	ScrollDuration time.Duration
}

// Route is one known-route entry of the config file.
type Route struct {
	Prefix string `mapstructure:"prefix"`
	Type   string `mapstructure:"type"`
	ID     int    `mapstructure:"id"`
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr        *string
	Backend     *string
	Domain      *string
	Version     *string
	DistDir     *string
	StoragePath *string
	Debug       *bool
	LogLevel    *string
	ConfigFile  *string
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func pick(v *string, cur string) string {
	if v != nil {
		return *v
	}
	return cur
}

// Load loads server configuration from environment variables, the optional
// config file (SHELLKIT_CONFIG) and any explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := 3000
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	addr := env("SHELLKIT_ADDR", fmt.Sprintf(":%d", port))

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	rateLimit := 0.0
	if s := os.Getenv("SHELLKIT_RATE_LIMIT"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("invalid SHELLKIT_RATE_LIMIT %q", s)
		}
		rateLimit = r
	}

	var origins []string
	if s := os.Getenv("SHELLKIT_ALLOWED_ORIGINS"); s != "" {
		for _, o := range strings.Split(s, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	cfg := &Config{
		Addr:              pick(overrides.Addr, addr),
		Backend:           pick(overrides.Backend, os.Getenv("SHELLKIT_BACKEND")),
		Domain:            pick(overrides.Domain, env("SHELLKIT_DOMAIN", "example.com")),
		Version:           pick(overrides.Version, env("SHELLKIT_VERSION", version.Deployed())),
		DistDir:           pick(overrides.DistDir, env("SHELLKIT_DIST_DIR", "./dist")),
		StatsFile:         os.Getenv("SHELLKIT_STATS"),
		LegacyStatsFile:   os.Getenv("SHELLKIT_LEGACY_STATS"),
		AssetPrefix:       env("SHELLKIT_ASSET_PREFIX", "static"),
		LegacyAssetPrefix: env("SHELLKIT_LEGACY_ASSET_PREFIX", "static-legacy"),
		StoragePath:       pick(overrides.StoragePath, env("SHELLKIT_STORAGE_PATH", "./shellkit.db")),
		Debug:             debug,
		LogLevel:          pick(overrides.LogLevel, env("SHELLKIT_LOG_LEVEL", "info")),
		LogFormat:         env("SHELLKIT_LOG_FORMAT", "text"),
		RateLimit:         rateLimit,
		RateBurst:         20,
		AllowedOrigins:    origins,
	}
	if cfg.Debug && overrides.LogLevel == nil && os.Getenv("SHELLKIT_LOG_LEVEL") == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.Backend == "" {
		return nil, ErrNoBackend
	}

	if file := pick(overrides.ConfigFile, os.Getenv("SHELLKIT_CONFIG")); file != "" {
		if err := cfg.readFile(file); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// readFile merges the routing and navigation settings of a YAML, TOML or
// JSON file.
func (c *Config) readFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := v.UnmarshalKey("known_routes", &c.KnownRoutes); err != nil {
		return fmt.Errorf("config %s: known_routes: %w", path, err)
	}
	for i, r := range c.KnownRoutes {
		if r.Prefix == "" || r.Type == "" {
			return fmt.Errorf("config %s: known_routes[%d] needs prefix and type", path, i)
		}
	}
	c.SameBase = v.GetStringSlice("navigation.same_base")
	if v.IsSet("navigation.min_delay") {
		c.MinDelay = v.GetDuration("navigation.min_delay")
	}
	if v.IsSet("navigation.scroll_duration") {
		c.ScrollDuration = v.GetDuration("navigation.scroll_duration")
	}
	if v.IsSet("allowed_origins") && len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = v.GetStringSlice("allowed_origins")
	}
	return nil
}

// Routes converts the known-route table for the resolver.
func (c *Config) Routes() []resolve.RouteData {
	out := make([]resolve.RouteData, 0, len(c.KnownRoutes))
	for _, r := range c.KnownRoutes {
		out = append(out, resolve.PrefixRoute(r.Prefix, r.Type, r.ID))
	}
	return out
}
