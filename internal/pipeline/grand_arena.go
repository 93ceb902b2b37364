package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/accounts"
	"github.com/pcrguild/pcrdb-collector/internal/rpc"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

// Grounded on original_source/src/pcrdb/tasks/grand_sync.py.

const (
	grandArenaPages = 10
)

// ClientFactory builds an unauthenticated RPC client bound to viewerID; the
// caller supplies one so pipelines don't need to know the base URL or
// version store directly.
type ClientFactory func(viewerID int64) *rpc.Client

// RunGrandArena fetches grandArenaPages pages of grand_arena/ranking per
// account.GrandArenaGroup, one account per group run concurrently (ground:
// run_async's asyncio.gather over one task per group), and writes every
// group's rows under a single collected_at each.
func RunGrandArena(ctx context.Context, registry *accounts.Registry, newClient ClientFactory, store *snapshot.Store, log *logrus.Entry) (fetched int, err error) {
	groups, err := registry.GroupMap(ctx, accounts.GrandArenaGroupKind)
	if err != nil {
		return 0, fmt.Errorf("pipeline: grand arena group map: %w", err)
	}
	if len(groups) == 0 {
		log.Warn("pipeline: no accounts configured with a grand_arena_group")
		return 0, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for group, accs := range groups {
		if len(accs) == 0 {
			continue
		}
		acc := accs[0]
		wg.Add(1)
		go func(group int, acc accounts.Account) {
			defer wg.Done()
			n, gerr := crawlGrandArenaGroup(ctx, newClient, acc, group, store, log)
			if gerr != nil {
				log.WithError(gerr).Errorf("pipeline: grand arena group %d failed", group)
				return
			}
			mu.Lock()
			fetched += n
			mu.Unlock()
		}(group, acc)
	}
	wg.Wait()
	return fetched, nil
}

func crawlGrandArenaGroup(ctx context.Context, newClient ClientFactory, acc accounts.Account, group int, store *snapshot.Store, log *logrus.Entry) (int, error) {
	client, err := loginAccount(ctx, newClient, acc)
	if err != nil {
		return 0, err
	}

	var rows []snapshot.GrandArenaSnapshot
	for page := 1; page <= grandArenaPages; page++ {
		resp := client.QueryGrandArenaRanking(ctx, acc.UpstreamUID, acc.AccessKey, page)
		ranking := asSlice(resp["ranking"])
		if len(ranking) == 0 {
			log.Debugf("pipeline: grand arena group %d page %d empty", group, page)
			continue
		}
		for _, r := range ranking {
			user := asMap(r)
			if user == nil {
				continue
			}
			rows = append(rows, snapshot.GrandArenaSnapshot{
				ViewerID:        asInt64(user["viewer_id"]),
				UserName:        asString(user["user_name"]),
				TeamLevel:       asInt(user["team_level"]),
				GrandArenaRank:  asInt(user["rank"]),
				GrandArenaGroup: group,
				WinningNumber:   asInt(user["winning_number"]),
				FavoriteUnit:    favoriteUnitID(user["favorite_unit"]),
			})
		}
	}

	if len(rows) == 0 {
		return 0, nil
	}
	now := time.Now()
	for i := range rows {
		rows[i].CollectedAt = now
	}
	if err := store.InsertGrandArenaBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("pipeline: insert grand arena batch (group %d): %w", group, err)
	}
	return len(rows), nil
}

// loginAccount builds a client for acc's bound viewer-id and logs it in,
// giving pipelines that iterate one account per group a shared helper.
func loginAccount(ctx context.Context, newClient ClientFactory, acc accounts.Account) (*rpc.Client, error) {
	var viewerID int64
	if acc.ViewerID != nil {
		viewerID = *acc.ViewerID
	}
	client := newClient(viewerID)
	if _, _, err := client.Login(ctx, acc.UpstreamUID, acc.AccessKey); err != nil {
		return nil, fmt.Errorf("pipeline: login account %s: %w", acc.UpstreamUID, err)
	}
	return client, nil
}

// favoriteUnitID handles both documented shapes: a bare numeric id, or a
// {"id": ...} object (ground: grand_sync.py's fav_unit.get('id', 0)).
func favoriteUnitID(v any) int64 {
	if m := asMap(v); m != nil {
		return asInt64(m["id"])
	}
	return asInt64(v)
}
