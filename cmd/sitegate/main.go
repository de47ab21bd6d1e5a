package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/config"
	"github.com/tryandromeda/sitegate/internal/db"
	dbMemory "github.com/tryandromeda/sitegate/internal/db/memory"
	dbRedis "github.com/tryandromeda/sitegate/internal/db/redis"
	logpkg "github.com/tryandromeda/sitegate/internal/logger"
	"github.com/tryandromeda/sitegate/internal/metrics"
	"github.com/tryandromeda/sitegate/internal/repository/index"
	"github.com/tryandromeda/sitegate/internal/repository/webcache"
	chiTransport "github.com/tryandromeda/sitegate/internal/transport/chi"
	"github.com/tryandromeda/sitegate/internal/transport/upstream"
	healthuc "github.com/tryandromeda/sitegate/internal/usecase/health"
	"github.com/tryandromeda/sitegate/internal/usecase/offline"
	preloaduc "github.com/tryandromeda/sitegate/internal/usecase/preload"
	searchuc "github.com/tryandromeda/sitegate/internal/usecase/search"
	"github.com/tryandromeda/sitegate/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting sitegate gateway",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_version", cfg.Cache.Version),
	)

	// Create storage based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	case "memory":
		store = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for storage to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to storage")

	// Register cache metrics explicitly (no init())
	metrics.RegisterCacheMetrics()

	// Search index — falls back to the built-in document set
	idx, err := index.Load(cfg.Search.IndexPath)
	if err != nil {
		logger.Fatal("Failed to load search index", zap.Error(err))
	}
	logger.Info("Search index loaded",
		zap.Int("documents", len(idx.Documents)),
		zap.Int("phrases", len(idx.Phrases)),
	)

	searchSvc := searchuc.New(idx.Documents, idx.Phrases).
		WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit, cfg.Search.SuggestLimit)

	// Cache partitions + routing controller
	cache := webcache.New(store, cfg.Cache.Project, cfg.Cache.Version, logger).
		WithDynamicCap(cfg.Cache.DynamicMaxEntries).
		WithMetrics(metrics.CacheResultTotal)

	fetcher := upstream.New(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.TimeoutSec)*time.Second)

	opts, err := gatewayOptions(cfg.Cache)
	if err != nil {
		logger.Fatal("Invalid cache configuration", zap.Error(err))
	}
	gateway := offline.New(cache, fetcher, opts, logger).
		WithMetrics(metrics.StrategyTotal)

	var preloadSvc *preloaduc.Service
	if cfg.Preload.Enabled {
		preloadSvc = preloaduc.New(store, cache, fetcher, logger).
			WithTopN(cfg.Preload.TopN).
			WithMetrics(metrics.PreloadPagesTotal)
	}

	healthSvc := healthuc.New(store, fetcher)

	// Sweep stale partitions, then re-seed the current version. The
	// install runs in the background; serving starts immediately and
	// cache-first routes fill in as seeding completes.
	if _, err := gateway.Activate(ctx); err != nil {
		logger.Error("Startup partition sweep failed", zap.Error(err))
	}
	if !cfg.Cache.DevMode {
		go func() {
			if _, err := gateway.Install(context.Background()); err != nil {
				logger.Error("Startup cache install failed", zap.Error(err))
			}
		}()
	}

	// Scheduled popular-page preload
	var scheduler *cron.Cron
	if preloadSvc != nil {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Preload.Schedule, func() {
			if _, err := preloadSvc.Preload(context.Background()); err != nil {
				logger.Error("Scheduled preload failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("Invalid preload schedule",
				zap.String("schedule", cfg.Preload.Schedule), zap.Error(err))
		}
		scheduler.Start()
		logger.Info("Preload scheduler started", zap.String("schedule", cfg.Preload.Schedule))
	}

	// Create chi server
	server := chiTransport.NewServer(searchSvc, gateway, preloadSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.CORS())
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// Drain opportunistic cache writes before the store closes.
	gateway.Flush()

	logger.Info("Server stopped gracefully")
}

// gatewayOptions compiles the cache config into controller options.
// Patterns are validated at config load; compile errors here mean the
// config was bypassed.
func gatewayOptions(cfg config.CacheConfig) (offline.Options, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.ContentPatterns))
	for _, p := range cfg.ContentPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return offline.Options{}, fmt.Errorf("content pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return offline.Options{
		DevMode:           cfg.DevMode,
		NetworkFirstPaths: cfg.NetworkFirstPaths,
		ContentPrefixes:   cfg.ContentPrefixes,
		ContentPatterns:   patterns,
		OfflinePath:       cfg.OfflinePath,
		HomePath:          cfg.HomePath,
		Manifest:          cfg.Manifest,
		DiscoverPaths:     cfg.DiscoverPaths,
	}, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
