package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/accounts"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

// Grounded on original_source/src/pcrdb/tasks/arena_deck_sync.py. Pages 1-2
// (top 40), not the Python original's pages=5.
const (
	arenaDeckPages    = 2
	arenaDeckNPCFloor = 1_000_000_000
)

// RunArenaDeck mirrors RunGrandArena's per-group concurrency but against
// the solo-arena ranking endpoint, filtering out NPC rows and compressing
// each real row's defensive deck into a DeckSlots sequence.
func RunArenaDeck(ctx context.Context, registry *accounts.Registry, newClient ClientFactory, store *snapshot.Store, log *logrus.Entry) (fetched int, err error) {
	groups, err := registry.GroupMap(ctx, accounts.ArenaGroupKind)
	if err != nil {
		return 0, fmt.Errorf("pipeline: arena deck group map: %w", err)
	}
	if len(groups) == 0 {
		log.Warn("pipeline: no accounts configured with an arena_group")
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
			n, gerr := crawlArenaDeckGroup(ctx, newClient, acc, group, store, log)
			if gerr != nil {
				log.WithError(gerr).Errorf("pipeline: arena deck group %d failed", group)
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

func crawlArenaDeckGroup(ctx context.Context, newClient ClientFactory, acc accounts.Account, group int, store *snapshot.Store, log *logrus.Entry) (int, error) {
	client, err := loginAccount(ctx, newClient, acc)
	if err != nil {
		return 0, err
	}

	var rows []snapshot.ArenaDeckSnapshot
	for page := 1; page <= arenaDeckPages; page++ {
		resp := client.QueryArenaRanking(ctx, acc.UpstreamUID, acc.AccessKey, page)
		ranking := asSlice(resp["ranking"])
		if len(ranking) == 0 {
			log.Debugf("pipeline: arena deck group %d page %d empty", group, page)
			continue
		}
		for _, r := range ranking {
			user := asMap(r)
			if user == nil {
				continue
			}
			viewerID := asInt64(user["viewer_id"])
			if viewerID <= arenaDeckNPCFloor {
				continue
			}
			rows = append(rows, snapshot.ArenaDeckSnapshot{
				ViewerID:   viewerID,
				TeamLevel:  asInt(user["team_level"]),
				ArenaGroup: group,
				ArenaRank:  asInt(user["rank"]),
				Deck:       extractDeck(user),
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
	if err := store.InsertArenaDeckBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("pipeline: insert arena deck batch (group %d): %w", group, err)
	}
	return len(rows), nil
}

// extractDeck compresses a ranking entry's defensive lineup into an ordered
// 4-tuple sequence (unit-id, rarity, level, power), checking the field
// names the solo-arena ranking payload is documented to use before falling
// back to the team-mode "arena_deck" alias some server builds expose.
func extractDeck(user map[string]any) snapshot.DeckSlots {
	units := asSlice(user["unit_list"])
	if units == nil {
		units = asSlice(user["arena_deck"])
	}
	if units == nil {
		return nil
	}
	slots := make(snapshot.DeckSlots, 0, len(units))
	for _, u := range units {
		unit := asMap(u)
		if unit == nil {
			continue
		}
		slots = append(slots, snapshot.DeckSlot{
			UnitID: asInt64(unit["unit_id"]),
			Rarity: asInt(unit["rarity"]),
			Level:  asInt(unit["unit_level"]),
			Power:  asInt64(unit["power"]),
		})
	}
	return slots
}
