package snapshot

import (
	"context"
	"fmt"
	"time"
)

// ClanPeriod is one grouped period in a clan's history, following
// original_source/src/pcrdb/analysis/clan.py's get_clan_history: snapshots
// taken less than 20 days after a period's first snapshot collapse into
// that period, and the settled
// ranking for a period is the *next* period's grade_rank (the latest
// period has no next one, so it reports current_period_ranking as an
// estimate instead).
type ClanPeriod struct {
	Period           string `db:"period" json:"period"`
	Ranking          int    `db:"ranking" json:"ranking"`
	IsEstimate       bool   `db:"is_estimate" json:"is_estimate"`
	MemberNum        int    `db:"member_num" json:"member_num"`
	LeaderName       string `db:"leader_name" json:"leader_name"`
	LeaderViewerID   int64  `db:"leader_viewer_id" json:"leader_viewer_id"`
	ClanName         string `db:"clan_name" json:"clan_name"`
}

type clanHistoryRow struct {
	CollectedAt          time.Time `db:"collected_at"`
	CurrentPeriodRanking int       `db:"current_period_ranking"`
	GradeRank            int       `db:"grade_rank"`
	MemberNum            int       `db:"member_num"`
	ClanName             string    `db:"clan_name"`
	LeaderName           string    `db:"leader_name"`
	LeaderViewerID       int64     `db:"leader_viewer_id"`
}

// ClanHistory groups a clan's snapshots into periods (a new period starts
// with the first snapshot at least 20 days after the current period's first
// snapshot) and reports each
// period's settled ranking, newest period first.
func (s *Store) ClanHistory(ctx context.Context, clanID int64) ([]ClanPeriod, error) {
	var rows []clanHistoryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT collected_at, current_period_ranking, grade_rank, member_num,
		       clan_name, leader_name, leader_viewer_id
		  FROM clan_snapshots
		 WHERE clan_id = $1 AND exist = TRUE
		 ORDER BY collected_at ASC`, clanID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: clan history: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	type period struct {
		label                string
		collectedAt          time.Time
		currentPeriodRanking int
		gradeRank            int
		memberNum            int
		clanName             string
		leaderName           string
		leaderViewerID       int64
	}
	var periods []period
	monthCount := map[string]int{}
	var lastDate time.Time

	for _, row := range rows {
		if lastDate.IsZero() || row.CollectedAt.Sub(lastDate).Hours() >= 20*24 {
			month := row.CollectedAt.Format("2006-01")
			monthCount[month]++
			label := month
			if monthCount[month] > 1 {
				label = fmt.Sprintf("%s/%d", month, monthCount[month])
			}
			periods = append(periods, period{
				label: label, collectedAt: row.CollectedAt,
				currentPeriodRanking: row.CurrentPeriodRanking, gradeRank: row.GradeRank,
				memberNum: row.MemberNum, clanName: row.ClanName,
				leaderName: row.LeaderName, leaderViewerID: row.LeaderViewerID,
			})
			lastDate = row.CollectedAt
		}
	}

	history := make([]ClanPeriod, len(periods))
	for i, p := range periods {
		ranking := p.currentPeriodRanking
		isEstimate := true
		if i+1 < len(periods) {
			ranking = periods[i+1].gradeRank
			isEstimate = false
		}
		history[i] = ClanPeriod{
			Period: p.label, Ranking: ranking, IsEstimate: isEstimate,
			MemberNum: p.memberNum, LeaderName: p.leaderName,
			LeaderViewerID: p.leaderViewerID, ClanName: p.clanName,
		}
	}

	// Newest period first.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// PlayerHistory returns every player-profile snapshot for viewerID, oldest
// first.
func (s *Store) PlayerHistory(ctx context.Context, viewerID int64) ([]PlayerProfileSnapshot, error) {
	var out []PlayerProfileSnapshot
	err := s.db.SelectContext(ctx, &out, `
		SELECT viewer_id, collected_at, user_name, team_level, unit_num, total_power,
		       arena_rank, arena_group, grand_arena_rank, grand_arena_group,
		       favorite_unit, user_comment, join_clan_id, join_clan_name,
		       princess_knight_rank_total_exp, talent_quest_clear
		  FROM player_profile_snapshots
		 WHERE viewer_id = $1
		 ORDER BY collected_at ASC`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: player history: %w", err)
	}
	return out, nil
}

// ClanPowerRow is one row of ClanPowerRanking.
type ClanPowerRow struct {
	Rank        int    `db:"rank" json:"rank"`
	ClanID      int64  `db:"clan_id" json:"clan_id"`
	ClanName    string `db:"clan_name" json:"clan_name"`
	AvgPower    int64  `db:"avg_power" json:"avg_power"`
	MemberCount int    `db:"member_count" json:"member_count"`
}

// ClanPowerRanking ranks clans by average member power over the latest
// per-member snapshot within the last 7 days, requiring at least 10
// counted members (ground: analysis/clan.py's get_clan_power_ranking).
func (s *Store) ClanPowerRanking(ctx context.Context, limit int) ([]ClanPowerRow, error) {
	var rows []ClanPowerRow
	err := s.db.SelectContext(ctx, &rows, `
		WITH latest_data AS (
			SELECT DISTINCT ON (viewer_id)
				viewer_id, join_clan_id, join_clan_name, total_power
			  FROM player_clan_snapshots
			 WHERE collected_at > NOW() - INTERVAL '7 days'
			   AND join_clan_id IS NOT NULL
			   AND total_power > 0
			 ORDER BY viewer_id, collected_at DESC
		)
		SELECT
			ROW_NUMBER() OVER (ORDER BY AVG(total_power) DESC) AS rank,
			join_clan_id AS clan_id,
			join_clan_name AS clan_name,
			ROUND(AVG(total_power)) AS avg_power,
			COUNT(*) AS member_count
		  FROM latest_data
		 GROUP BY join_clan_id, join_clan_name
		HAVING COUNT(*) >= 10
		 ORDER BY avg_power DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: clan power ranking: %w", err)
	}
	return rows, nil
}

// GrandArenaWinningRanking returns the latest per-viewer grand-arena
// snapshot for group (0 = all groups), ordered by winning number descending
// (ground: analysis/grand.py's get_winning_ranking).
func (s *Store) GrandArenaWinningRanking(ctx context.Context, group int, limit int) ([]GrandArenaSnapshot, error) {
	var rows []GrandArenaSnapshot
	var err error
	if group == 0 {
		err = s.db.SelectContext(ctx, &rows, `
			WITH latest_per_group AS (
				SELECT grand_arena_group, MAX(collected_at) AS max_time
				  FROM grand_arena_snapshots
				 GROUP BY grand_arena_group
			)
			SELECT * FROM (
				SELECT DISTINCT ON (t.viewer_id)
					t.viewer_id, t.collected_at, t.user_name, t.team_level,
					t.grand_arena_rank, t.grand_arena_group, t.winning_number, t.favorite_unit
				  FROM grand_arena_snapshots t
				  JOIN latest_per_group l
				    ON t.grand_arena_group = l.grand_arena_group AND t.collected_at = l.max_time
				 ORDER BY t.viewer_id, t.collected_at DESC, t.winning_number DESC
			) latest
			 ORDER BY winning_number DESC
			 LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			WITH latest_time AS (
				SELECT MAX(collected_at) AS max_time
				  FROM grand_arena_snapshots
				 WHERE grand_arena_group = $1
			)
			SELECT * FROM (
				SELECT DISTINCT ON (viewer_id)
					viewer_id, collected_at, user_name, team_level,
					grand_arena_rank, grand_arena_group, winning_number, favorite_unit
				  FROM grand_arena_snapshots, latest_time
				 WHERE grand_arena_group = $1 AND collected_at = latest_time.max_time
				 ORDER BY viewer_id, collected_at DESC, winning_number DESC
			) latest
			 ORDER BY winning_number DESC
			 LIMIT $2`, group, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: grand arena winning ranking: %w", err)
	}
	return rows, nil
}

// TalentQuestStat is one viewer's aggregated talent-quest clear vector
// within a TalentQuestStats window.
type TalentQuestStat struct {
	ViewerID         int64            `db:"viewer_id" json:"viewer_id"`
	UserName         string           `db:"user_name" json:"user_name"`
	TalentQuestClear TalentQuestClear `db:"talent_quest_clear" json:"talent_quest_clear"`
}

// TalentQuestStats reports the latest talent-quest clear vector per viewer
// whose profile was collected within window.
func (s *Store) TalentQuestStats(ctx context.Context, window time.Duration) ([]TalentQuestStat, error) {
	var rows []TalentQuestStat
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (viewer_id)
			viewer_id, user_name, talent_quest_clear
		  FROM player_profile_snapshots
		 WHERE collected_at > NOW() - $1::interval
		 ORDER BY viewer_id, collected_at DESC`, fmt.Sprintf("%d seconds", int(window.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("snapshot: talent quest stats: %w", err)
	}
	return rows, nil
}
