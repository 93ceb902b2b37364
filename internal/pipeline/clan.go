package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pcrguild/pcrdb-collector/internal/queue"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

// Grounded on original_source/src/pcrdb/tasks/clan_sync.py.

const (
	disbandedMarker    = "此行会已解散"
	connectionDropMark = "连接中断"
	defaultClanCeiling = 5000
)

// BuildClanQueryList reproduces build_query_list: active clans are those
// with at least one member whose last_login_time is newer than
// max(collected_at)-30d; January and July are full-scan months that widen
// the range to maxID+500, other months just probe newClanAdd ids past the
// max active id.
func BuildClanQueryList(ctx context.Context, store *snapshot.Store, newClanAdd int, now time.Time) ([]int64, error) {
	var active []int64
	err := store.DB().SelectContext(ctx, &active, `
		SELECT join_clan_id
		  FROM player_clan_snapshots
		 WHERE join_clan_id IS NOT NULL
		 GROUP BY join_clan_id
		HAVING MAX(last_login_time) > MAX(collected_at) - INTERVAL '30 days'
		 ORDER BY join_clan_id`)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build clan query list: %w", err)
	}

	if len(active) == 0 {
		out := make([]int64, defaultClanCeiling)
		for i := range out {
			out[i] = int64(i + 1)
		}
		return out, nil
	}

	maxID := active[len(active)-1] // ORDER BY join_clan_id, so the last row is the max.

	isFullScanMonth := now.Month() == time.January || now.Month() == time.July
	if isFullScanMonth {
		out := make([]int64, 0, maxID+500)
		for i := int64(1); i <= maxID+500; i++ {
			out = append(out, i)
		}
		return out, nil
	}

	seen := make(map[int64]struct{}, len(active)+newClanAdd)
	merged := make([]int64, 0, len(active)+newClanAdd)
	for _, id := range active {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	for i := maxID + 1; i <= maxID+int64(newClanAdd); i++ {
		if _, ok := seen[i]; !ok {
			seen[i] = struct{}{}
			merged = append(merged, i)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	return merged, nil
}

// clanRecord pairs one clan snapshot with its member snapshots so a single
// BatchInserter flush can write both idempotently.
type clanRecord struct {
	Clan    snapshot.ClanSnapshot
	Members []snapshot.PlayerClanSnapshot
}

// ProcessClan turns one clan/others_info response into a ProcessResult.
// Resolves §9-OQ-1: the disbanded marker carries no clan payload back from
// the API, so the processor attaches queryID to a tombstone record instead
// of silently dropping it.
func ProcessClan(queryID int64, resp map[string]any) queue.ProcessResult {
	if clan := asMap(resp["clan"]); clan != nil {
		detail := asMap(clan["detail"])
		if detail == nil {
			return queue.ProcessResult{Outcome: queue.Drop}
		}
		record := clanRecord{
			Clan: snapshot.ClanSnapshot{
				ClanID:               asInt64(detail["clan_id"]),
				ClanName:             asString(detail["clan_name"]),
				LeaderViewerID:       asInt64(detail["leader_viewer_id"]),
				LeaderName:           asString(detail["leader_name"]),
				JoinCondition:        asInt(detail["join_condition"]),
				Activity:             asInt(detail["activity"]),
				ClanBattleMode:       asInt(detail["clan_battle_mode"]),
				MemberNum:            asInt(detail["member_num"]),
				CurrentPeriodRanking: asInt(detail["current_period_ranking"]),
				GradeRank:            asInt(detail["grade_rank"]),
				Description:          asString(detail["description"]),
				Exist:                true,
			},
		}
		for _, m := range asSlice(clan["members"]) {
			member := asMap(m)
			if member == nil {
				continue
			}
			record.Members = append(record.Members, snapshot.PlayerClanSnapshot{
				ViewerID:      asInt64(member["viewer_id"]),
				Name:          asString(member["name"]),
				Level:         asInt(member["level"]),
				Role:          asInt(member["role"]),
				TotalPower:    asInt64(member["total_power"]),
				JoinClanID:    record.Clan.ClanID,
				JoinClanName:  record.Clan.ClanName,
				LastLoginTime: unixOrNil(member["last_login_time"]),
			})
		}
		return queue.ProcessResult{Outcome: queue.Ok, Record: record}
	}

	if serverErr := asMap(resp["server_error"]); serverErr != nil {
		msg := asString(serverErr["message"])
		switch {
		case strings.Contains(msg, disbandedMarker):
			return queue.ProcessResult{
				Outcome: queue.Drop,
				Record:  clanRecord{Clan: snapshot.ClanSnapshot{ClanID: queryID, Exist: false}},
			}
		case strings.Contains(msg, connectionDropMark):
			return queue.ProcessResult{Outcome: queue.Retry}
		}
	}

	return queue.ProcessResult{Outcome: queue.Drop}
}

// InsertClanRecords is the BatchInserter half: it stamps every record in
// the batch with one collected_at and writes clans and members through one
// InsertClanBatch call (one INSERT statement per table), mirroring
// insert_clan_batch's single `now = datetime.now()` per flush.
func InsertClanRecords(store *snapshot.Store) queue.BatchInserter {
	return func(ctx context.Context, records []any) error {
		now := time.Now()
		var clans []snapshot.ClanSnapshot
		var members []snapshot.PlayerClanSnapshot
		for _, r := range records {
			rec, ok := r.(clanRecord)
			if !ok {
				continue
			}
			rec.Clan.CollectedAt = now
			clans = append(clans, rec.Clan)
			for _, m := range rec.Members {
				m.CollectedAt = now
				members = append(members, m)
			}
		}
		return store.InsertClanBatch(ctx, clans, members)
	}
}
