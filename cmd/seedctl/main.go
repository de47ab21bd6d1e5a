// seedctl runs cache lifecycle operations against the configured storage
// without starting the gateway: seed the static partition from the
// manifest, sweep stale-version partitions, or both.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/config"
	"github.com/tryandromeda/sitegate/internal/db"
	dbMemory "github.com/tryandromeda/sitegate/internal/db/memory"
	dbRedis "github.com/tryandromeda/sitegate/internal/db/redis"
	logpkg "github.com/tryandromeda/sitegate/internal/logger"
	"github.com/tryandromeda/sitegate/internal/repository/webcache"
	"github.com/tryandromeda/sitegate/internal/transport/upstream"
	"github.com/tryandromeda/sitegate/internal/usecase/offline"
)

func main() {
	install := flag.Bool("install", false, "seed the static partition from the manifest")
	activate := flag.Bool("activate", false, "sweep partitions left by previous versions")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall operation timeout")
	flag.Parse()

	if !*install && !*activate {
		fmt.Fprintln(os.Stderr, "usage: seedctl [-install] [-activate]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fail("load config: %v", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		fail("create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			fail("create store: %v", err)
		}
	case "memory":
		// Useful only for dry runs: nothing persists after exit.
		store = dbMemory.NewStore()
		color.Yellow("warning: memory driver selected, results will not persist")
	default:
		fail("unknown database driver %q", cfg.Database.Driver)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		fail("storage not ready: %v", err)
	}

	cache := webcache.New(store, cfg.Cache.Project, cfg.Cache.Version, logger).
		WithDynamicCap(cfg.Cache.DynamicMaxEntries)
	fetcher := upstream.New(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.TimeoutSec)*time.Second)

	patterns := make([]*regexp.Regexp, 0, len(cfg.Cache.ContentPatterns))
	for _, p := range cfg.Cache.ContentPatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	gateway := offline.New(cache, fetcher, offline.Options{
		DevMode:           cfg.Cache.DevMode,
		NetworkFirstPaths: cfg.Cache.NetworkFirstPaths,
		ContentPrefixes:   cfg.Cache.ContentPrefixes,
		ContentPatterns:   patterns,
		OfflinePath:       cfg.Cache.OfflinePath,
		HomePath:          cfg.Cache.HomePath,
		Manifest:          cfg.Cache.Manifest,
		DiscoverPaths:     cfg.Cache.DiscoverPaths,
	}, logger)

	if *activate {
		deleted, err := gateway.Activate(ctx)
		if err != nil {
			fail("activate: %v", err)
		}
		color.Green("activate: swept %d stale partition(s)", len(deleted))
		for _, name := range deleted {
			fmt.Printf("  - %s\n", name)
		}
	}

	if *install {
		report, err := gateway.Install(ctx)
		if err != nil {
			fail("install: %v", err)
		}
		color.Green("install: %d seeded, %d discovered", report.Seeded, report.Discovered)
		if report.Failed > 0 {
			color.Yellow("install: %d path(s) failed", report.Failed)
		}
		logger.Info("seedctl install finished",
			zap.Int("seeded", report.Seeded),
			zap.Int("discovered", report.Discovered),
			zap.Int("failed", report.Failed))
	}
}

func fail(format string, args ...any) {
	color.Red("seedctl: "+format, args...)
	os.Exit(1)
}
