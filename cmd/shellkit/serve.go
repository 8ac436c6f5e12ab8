package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bhandras/shellkit/internal/api/middleware"
	"github.com/bhandras/shellkit/internal/config"
	"github.com/bhandras/shellkit/internal/navigation"
	"github.com/bhandras/shellkit/internal/ssr"
	"github.com/bhandras/shellkit/internal/storage"
	"github.com/bhandras/shellkit/internal/versionws"
	"github.com/bhandras/shellkit/pkg/logger"
)

const (
	shutdownTimeout     = 10 * time.Second
	maintenanceInterval = time.Hour
	visitorIdle         = 10 * time.Minute
)

func newServeCommand() *cobra.Command {
	var (
		addr, backend, configFile, storagePath, logLevel string
		debug                                            bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve server rendered pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var o config.Overrides
			flags := cmd.Flags()
			if flags.Changed("addr") {
				o.Addr = &addr
			}
			if flags.Changed("backend") {
				o.Backend = &backend
			}
			if flags.Changed("config") {
				o.ConfigFile = &configFile
			}
			if flags.Changed("storage") {
				o.StoragePath = &storagePath
			}
			if flags.Changed("log-level") {
				o.LogLevel = &logLevel
			}
			if flags.Changed("debug") {
				o.Debug = &debug
			}
			return serve(cmd.Context(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (default :$PORT or :3000)")
	f.StringVar(&backend, "backend", "", "GraphQL origin")
	f.StringVar(&configFile, "config", "", "routing and navigation config file")
	f.StringVar(&storagePath, "storage", "", "sqlite storage path")
	f.StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error")
	f.BoolVar(&debug, "debug", false, "debug logging and gin debug mode")
	return cmd
}

func serve(ctx context.Context, o config.Overrides) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(o)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LogFormat, lvl); err != nil {
		return err
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Same-base rules run in the browser; here they are only compiled so a
	// typo fails the start.
	if _, err := navigation.PolicyFromExprs(cfg.SameBase...); err != nil {
		return fmt.Errorf("navigation.same_base: %w", err)
	}

	logger.Infof("Opening storage: %s", cfg.StoragePath)
	db, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	// Rendered pages read the local namespace. Cookie storage is per visitor
	// and never lives on the server.
	local := storage.NewKV(db, storage.Local, nil)
	purge := func() {
		if n, err := local.PurgeExpired(ctx); err != nil {
			logger.Warnf("purge expired entries: %v", err)
		} else if n > 0 {
			logger.Debugf("purged %d expired entries", n)
		}
	}
	purge()

	stats, err := ssr.LoadStats(cfg.StatsFile)
	if err != nil {
		return err
	}
	legacyStats, err := ssr.LoadStats(cfg.LegacyStatsFile)
	if err != nil {
		return err
	}
	render, err := ssr.NewMiddleware(ssr.Params{
		Stats:             stats,
		LegacyStats:       legacyStats,
		AssetPrefix:       cfg.AssetPrefix,
		LegacyAssetPrefix: cfg.LegacyAssetPrefix,
		DistDir:           cfg.DistDir,
		Backend:           cfg.Backend,
		Domain:            cfg.Domain,
		Version:           cfg.Version,
		App:               ssr.PlaceholderApp(),
		KnownRoutes:       cfg.Routes(),
		Setup:             ssr.SetupParams{Storage: local},
	})
	if err != nil {
		return fmt.Errorf("build ssr middleware: %w", err)
	}

	metrics, err := middleware.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	versions := versionws.NewServer(cfg.Version)
	defer versions.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware())
	router.Use(metrics.Handler())

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
		router.Use(limiter.Handler())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET(versionws.Path, versions.Handle)
	// An empty prefix would shadow every route; such assets are left to the
	// fronting server.
	served := map[string]bool{}
	for _, prefix := range []string{cfg.AssetPrefix, cfg.LegacyAssetPrefix} {
		prefix = strings.Trim(prefix, "/")
		if prefix == "" || served[prefix] {
			continue
		}
		served[prefix] = true
		router.Static("/"+prefix, cfg.DistDir)
	}
	router.NoRoute(render)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("shellkit starting on http://localhost%s", cfg.Addr)
		logger.Infof("Backend: %s", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ticker.C:
			purge()
			if limiter != nil {
				limiter.Forget(visitorIdle)
			}
		case <-ctx.Done():
			logger.Infof("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			versions.Close()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
