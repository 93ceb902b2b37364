package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/accounts"
	"github.com/pcrguild/pcrdb-collector/internal/cache"
	"github.com/pcrguild/pcrdb-collector/internal/config"
	"github.com/pcrguild/pcrdb-collector/internal/logging"
	"github.com/pcrguild/pcrdb-collector/internal/metrics"
	"github.com/pcrguild/pcrdb-collector/internal/pipeline"
	"github.com/pcrguild/pcrdb-collector/internal/rpc"
	"github.com/pcrguild/pcrdb-collector/internal/scheduler"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

// seedLockTTL bounds how long a crashed task holds its overlap guard before
// the next scheduled run is allowed through anyway.
const seedLockTTL = 30 * time.Minute

var registerMetricsOnce sync.Once

// app bundles the process-wide dependencies every subcommand needs.
type app struct {
	cfg      *config.Config
	store    *snapshot.Store
	registry *accounts.Registry
	runner   *pipeline.Runner
	log      *logrus.Entry
}

func newApp(envPath string) (*app, error) {
	cfg, err := config.Load(envPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := snapshot.Open(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	versions, err := rpc.NewFileVersionStore(cfg.Crawler.VersionFile, rpc.DefaultAppVersion)
	if err != nil {
		return nil, fmt.Errorf("open version store: %w", err)
	}

	registerMetricsOnce.Do(func() { metrics.MustRegister(prometheus.DefaultRegisterer) })

	log := logging.Component(logging.New(), "task")

	registry := accounts.NewRegistry(store.DB())
	seedLock := cache.NewSeedLock(cfg.Crawler.RedisAddr, seedLockTTL)

	newClient := func(viewerID int64) *rpc.Client {
		return rpc.NewClient(cfg.Crawler.APIBaseURL, viewerID, versions, log)
	}

	runner := &pipeline.Runner{
		Registry:    registry,
		Store:       store,
		NewClient:   newClient,
		Concurrency: cfg.Crawler.SyncNum,
		BatchSize:   cfg.Crawler.BatchSize,
		Log:         log,
		SeedLock:    seedLock,
	}

	return &app{cfg: cfg, store: store, registry: registry, runner: runner, log: log}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

// taskFuncs maps the CLI/scheduler task names to their four Runner bodies;
// player_profile_sync and player_profile_sync_monthly share ProfileSync.
func (a *app) taskFuncs() map[string]scheduler.TaskFunc {
	return map[string]scheduler.TaskFunc{
		"clan_sync":                   a.runner.ClanSync,
		"player_profile_sync":         a.runner.ProfileSync,
		"player_profile_sync_monthly": a.runner.ProfileSync,
		"grand_sync":                  a.runner.GrandArenaSync,
		"arena_deck_sync":             a.runner.ArenaDeckSync,
	}
}
