package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pcrguild/pcrdb-collector/internal/queue"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

// Grounded on original_source/src/pcrdb/tasks/player_profile_sync.py.

const (
	ModeTopClans  = "top_clans"
	ModeActiveAll = "active_all"

	highPowerThreshold = 1_000_000
)

// MemberInfo is the join-clan context get_target_players threads through to
// insert_profile_batch so a profile row can carry the clan it was sourced
// from even though the API response itself doesn't include it.
type MemberInfo struct {
	JoinClanID   int64
	JoinClanName string
}

// GetTargetPlayers resolves the viewer-id seed list for ModeTopClans (the
// members of the rankLimit best-ranked clans as of the latest snapshot day)
// or ModeActiveAll (every high-power account active in the last 30 days).
func GetTargetPlayers(ctx context.Context, store *snapshot.Store, mode string, rankLimit int) ([]int64, map[int64]MemberInfo, error) {
	db := store.DB()

	if mode == ModeActiveAll {
		return queryMembers(ctx, db, `
			SELECT DISTINCT ON (viewer_id) viewer_id, join_clan_id, join_clan_name
			  FROM player_clan_snapshots
			 WHERE total_power > $1
			   AND last_login_time > NOW() - INTERVAL '30 days'
			 ORDER BY viewer_id, collected_at DESC`, highPowerThreshold)
	}

	var topClans []int64
	err := db.SelectContext(ctx, &topClans, `
		WITH latest_date AS (
			SELECT DATE(MAX(collected_at)) AS max_date
			  FROM clan_snapshots
			 WHERE collected_at > NOW() - INTERVAL '30 days'
		)
		SELECT DISTINCT clan_id
		  FROM clan_snapshots
		 WHERE current_period_ranking > 0
		   AND current_period_ranking <= $1
		   AND exist = TRUE
		   AND DATE(collected_at) = (SELECT max_date FROM latest_date)
		 ORDER BY clan_id`, rankLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: query top clans: %w", err)
	}

	if len(topClans) == 0 {
		err := db.SelectContext(ctx, &topClans, `
			WITH latest_date AS (
				SELECT DATE(MAX(collected_at)) AS max_date
				  FROM clan_snapshots
				 WHERE collected_at > NOW() - INTERVAL '30 days'
			)
			SELECT DISTINCT clan_id
			  FROM clan_snapshots
			 WHERE grade_rank > 0 AND grade_rank <= 3
			   AND exist = TRUE
			   AND DATE(collected_at) = (SELECT max_date FROM latest_date)
			 ORDER BY clan_id`)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: query top clans by grade: %w", err)
		}
	}

	if len(topClans) == 0 {
		return nil, nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT DISTINCT ON (viewer_id) viewer_id, join_clan_id, join_clan_name
		  FROM player_clan_snapshots
		 WHERE join_clan_id IN (?)
		   AND collected_at > NOW() - INTERVAL '30 days'
		 ORDER BY viewer_id, collected_at DESC`, topClans)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: build clan-members query: %w", err)
	}
	return queryMembers(ctx, db, db.Rebind(query), args...)
}

func queryMembers(ctx context.Context, db *sqlx.DB, query string, args ...any) ([]int64, map[int64]MemberInfo, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: query target players: %w", err)
	}
	defer rows.Close()

	var viewerIDs []int64
	info := make(map[int64]MemberInfo)
	for rows.Next() {
		var viewerID int64
		var joinClanID *int64
		var joinClanName *string
		if err := rows.Scan(&viewerID, &joinClanID, &joinClanName); err != nil {
			return nil, nil, fmt.Errorf("pipeline: scan target player row: %w", err)
		}
		viewerIDs = append(viewerIDs, viewerID)
		m := MemberInfo{}
		if joinClanID != nil {
			m.JoinClanID = *joinClanID
		}
		if joinClanName != nil {
			m.JoinClanName = *joinClanName
		}
		info[viewerID] = m
	}
	return viewerIDs, info, rows.Err()
}

// ProcessProfile builds a queue.Processor closed over the member-info map
// GetTargetPlayers returned, extracting the fields process_profile pulls
// out of a profile/get_profile response (user_info, talent_quest clear
// counts, favorite unit, princess-knight exp).
func ProcessProfile(memberInfo map[int64]MemberInfo) queue.Processor {
	return func(queryID int64, resp map[string]any) queue.ProcessResult {
		user := asMap(resp["user_info"])
		if user == nil {
			return queue.ProcessResult{Outcome: queue.Drop}
		}

		record := snapshot.PlayerProfileSnapshot{
			ViewerID:              asInt64(user["viewer_id"]),
			UserName:              asString(user["user_name"]),
			TeamLevel:             asInt(user["team_level"]),
			UnitNum:               asInt(user["unit_num"]),
			TotalPower:            asInt64(user["total_power"]),
			ArenaRank:             asInt(user["arena_rank"]),
			ArenaGroup:            asInt(user["arena_group"]),
			GrandArenaRank:        asInt(user["grand_arena_rank"]),
			GrandArenaGroup:       asInt(user["grand_arena_group"]),
			UserComment:           asString(user["user_comment"]),
			PrincessKnightRankExp: asInt64(user["princess_knight_rank_total_exp"]),
		}

		if fav := asMap(resp["favorite_unit"]); fav != nil {
			record.FavoriteUnit = asInt64(fav["id"])
		}

		questInfo := asMap(resp["quest_info"])
		for idx, tq := range asSlice(questInfo["talent_quest"]) {
			if idx >= len(record.TalentQuestClear) {
				break
			}
			record.TalentQuestClear[idx] = asInt(asMap(tq)["clear_count"])
		}

		if info, ok := memberInfo[record.ViewerID]; ok {
			joinClanID := info.JoinClanID
			joinClanName := info.JoinClanName
			record.JoinClanID = &joinClanID
			record.JoinClanName = &joinClanName
		}

		return queue.ProcessResult{Outcome: queue.Ok, Record: record}
	}
}

// InsertProfileRecords stamps the batch with one collected_at and flushes
// it through the Snapshot Store.
func InsertProfileRecords(store *snapshot.Store) queue.BatchInserter {
	return func(ctx context.Context, records []any) error {
		now := time.Now()
		out := make([]snapshot.PlayerProfileSnapshot, 0, len(records))
		for _, r := range records {
			rec, ok := r.(snapshot.PlayerProfileSnapshot)
			if !ok {
				continue
			}
			rec.CollectedAt = now
			out = append(out, rec)
		}
		return store.InsertProfileBatch(ctx, out)
	}
}
