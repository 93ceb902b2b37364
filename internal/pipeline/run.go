package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/accounts"
	"github.com/pcrguild/pcrdb-collector/internal/cache"
	"github.com/pcrguild/pcrdb-collector/internal/queue"
	"github.com/pcrguild/pcrdb-collector/internal/rpc"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
	"github.com/pcrguild/pcrdb-collector/internal/tasklog"
)

// clanRecordsPerQueryID approximates one clan_sync query's yield: one
// ClanSnapshot plus up to 30 PlayerClanSnapshot rows.
const clanRecordsPerQueryID = 31

// Runner wires the Account Registry, RPC client factory and Snapshot Store
// together into the four task bodies the scheduler and cmd/task dispatch
// by name.
type Runner struct {
	Registry    *accounts.Registry
	Store       *snapshot.Store
	NewClient   ClientFactory
	Concurrency int
	BatchSize   int
	Log         *logrus.Entry
	SeedLock    *cache.SeedLock // nil disables overlap guarding
}

// guardOverlap skips fn entirely if taskName is already running under lock,
// preventing a still-running job from being double-scheduled — enforced via
// redis since task dispatch is a separate process invocation (cmd/task run)
// that can't see an in-memory flag.
func (r *Runner) guardOverlap(ctx context.Context, taskName string, fn func() (int, error)) (int, error) {
	if r.SeedLock == nil {
		return fn()
	}
	acquired, err := r.SeedLock.Acquire(ctx, taskName)
	if err != nil {
		return 0, fmt.Errorf("pipeline: seed lock acquire for %s: %w", taskName, err)
	}
	if !acquired {
		r.Log.Warnf("pipeline: %s already in flight, skipping this run", taskName)
		return 0, nil
	}
	defer func() {
		if relErr := r.SeedLock.Release(ctx, taskName); relErr != nil {
			r.Log.WithError(relErr).Warnf("pipeline: release seed lock for %s", taskName)
		}
	}()
	return fn()
}

// runLogged wraps fn in a tasklog.Logger lifecycle scoped to this single
// call, recording recordsExpected up front the way clan_sync.py and
// player_profile_sync.py compute it before starting their TaskLogger.
func (r *Runner) runLogged(ctx context.Context, taskName string, recordsExpected int, params map[string]any, fn func(ctx context.Context) (int, error)) (int, error) {
	logger := tasklog.NewLogger(r.Store.DB(), taskName)
	var fetched int
	err := logger.Run(ctx, recordsExpected, params, func(ctx context.Context) (int, error) {
		n, ferr := fn(ctx)
		fetched = n
		return n, ferr
	})
	return fetched, err
}

// clientPool holds the one *rpc.Client each work-queue worker logs in with,
// keyed by account id so Fetcher (which only receives the account, not a
// client) can find the session the matching Login call established.
type clientPool struct {
	mu      sync.Mutex
	clients map[int64]*rpc.Client
}

func newClientPool() *clientPool {
	return &clientPool{clients: make(map[int64]*rpc.Client)}
}

func (p *clientPool) set(accountID int64, c *rpc.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[accountID] = c
}

func (p *clientPool) get(accountID int64) *rpc.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[accountID]
}

func (r *Runner) login(pool *clientPool) queue.Login {
	return func(ctx context.Context, acc accounts.Account) error {
		var viewerID int64
		if acc.ViewerID != nil {
			viewerID = *acc.ViewerID
		}
		client := r.NewClient(viewerID)
		if _, _, err := client.Login(ctx, acc.UpstreamUID, acc.AccessKey); err != nil {
			return fmt.Errorf("pipeline: login account %s: %w", acc.UpstreamUID, err)
		}
		pool.set(acc.ID, client)
		return nil
	}
}

func (r *Runner) fetch(pool *clientPool) queue.Fetcher {
	return func(ctx context.Context, acc accounts.Account, mode queue.QueryMode, id int64) (map[string]any, error) {
		client := pool.get(acc.ID)
		if client == nil {
			return nil, fmt.Errorf("pipeline: no logged-in client for account %d", acc.ID)
		}
		switch mode {
		case queue.ModeClan:
			return client.QueryClan(ctx, acc.UpstreamUID, acc.AccessKey, id), nil
		case queue.ModeProfile:
			return client.QueryProfile(ctx, acc.UpstreamUID, acc.AccessKey, id), nil
		default:
			return nil, fmt.Errorf("pipeline: unknown query mode %d", mode)
		}
	}
}

// ClanSync is the clan_sync task body: builds the query list, drains it
// through the Work Queue, and inserts processed batches. params may carry
// "new_clan_add" (default 100).
func (r *Runner) ClanSync(ctx context.Context, params map[string]any) (int, error) {
	return r.guardOverlap(ctx, "clan_sync", func() (int, error) {
		newClanAdd := 100
		if v, ok := params["new_clan_add"]; ok {
			newClanAdd = asInt(v)
		}

		seeds, err := BuildClanQueryList(ctx, r.Store, newClanAdd, time.Now())
		if err != nil {
			return 0, err
		}
		active, err := r.Registry.ListActive(ctx)
		if err != nil {
			return 0, fmt.Errorf("pipeline: list active accounts: %w", err)
		}

		return r.runLogged(ctx, "clan_sync", len(seeds)*clanRecordsPerQueryID, params, func(ctx context.Context) (int, error) {
			var fetched int
			pool := newClientPool()
			cfg := queue.Config{
				SeedIDs:       seeds,
				Processor:     ProcessClan,
				Fetcher:       r.fetch(pool),
				BatchInserter: countingInserter(InsertClanRecords(r.Store), &fetched),
				Login:         r.login(pool),
				Concurrency:   r.Concurrency,
				BatchSize:     r.BatchSize,
				PipelineName:  "clan_sync",
				Log:           r.Log,
			}
			if _, err := queue.Run(ctx, cfg, active); err != nil {
				return fetched, err
			}
			return fetched, nil
		})
	})
}

// ProfileSync is the player_profile_sync / player_profile_sync_monthly task
// body. params carries "mode" (ModeTopClans default, or ModeActiveAll) and
// "rank_limit" (default 30, ModeTopClans only).
func (r *Runner) ProfileSync(ctx context.Context, params map[string]any) (int, error) {
	return r.guardOverlap(ctx, "player_profile_sync", func() (int, error) {
		mode := ModeTopClans
		if v, ok := params["mode"]; ok {
			if s, ok := v.(string); ok && s != "" {
				mode = s
			}
		}
		rankLimit := 30
		if v, ok := params["rank_limit"]; ok {
			rankLimit = asInt(v)
		}

		viewerIDs, memberInfo, err := GetTargetPlayers(ctx, r.Store, mode, rankLimit)
		if err != nil {
			return 0, err
		}

		taskName := "player_profile_sync"
		if mode == ModeActiveAll {
			taskName = "player_profile_sync_monthly"
		}

		if len(viewerIDs) == 0 {
			r.Log.Info("pipeline: no target players resolved, skipping")
			return r.runLogged(ctx, taskName, 0, params, func(ctx context.Context) (int, error) {
				return 0, nil
			})
		}

		active, err := r.Registry.ListActive(ctx)
		if err != nil {
			return 0, fmt.Errorf("pipeline: list active accounts: %w", err)
		}

		return r.runLogged(ctx, taskName, len(viewerIDs), params, func(ctx context.Context) (int, error) {
			var fetched int
			pool := newClientPool()
			cfg := queue.Config{
				SeedIDs:       viewerIDs,
				Processor:     ProcessProfile(memberInfo),
				Fetcher:       r.fetch(pool),
				BatchInserter: countingInserter(InsertProfileRecords(r.Store), &fetched),
				Login:         r.login(pool),
				Concurrency:   r.Concurrency,
				BatchSize:     r.BatchSize,
				PipelineName:  "player_profile_sync",
				Log:           r.Log,
			}
			if _, err := queue.Run(ctx, cfg, active); err != nil {
				return fetched, err
			}
			return fetched, nil
		})
	})
}

// GrandArenaSync is the grand_sync task body.
func (r *Runner) GrandArenaSync(ctx context.Context, params map[string]any) (int, error) {
	return r.guardOverlap(ctx, "grand_sync", func() (int, error) {
		return r.runLogged(ctx, "grand_sync", 0, params, func(ctx context.Context) (int, error) {
			return RunGrandArena(ctx, r.Registry, r.NewClient, r.Store, r.Log)
		})
	})
}

// ArenaDeckSync is the arena_deck_sync task body.
func (r *Runner) ArenaDeckSync(ctx context.Context, params map[string]any) (int, error) {
	return r.guardOverlap(ctx, "arena_deck_sync", func() (int, error) {
		return r.runLogged(ctx, "arena_deck_sync", 0, params, func(ctx context.Context) (int, error) {
			return RunArenaDeck(ctx, r.Registry, r.NewClient, r.Store, r.Log)
		})
	})
}

// countingInserter wraps a BatchInserter to tally how many records it wrote
// into fetched, mirroring the Python originals' inserter_with_count
// closures that feed TaskLog's records_fetched.
func countingInserter(inner queue.BatchInserter, fetched *int) queue.BatchInserter {
	return func(ctx context.Context, records []any) error {
		*fetched += len(records)
		return inner(ctx, records)
	}
}
