// Package snapshot is the Snapshot Store: an append-only relational schema
// with idempotent batch inserts and the analytical read helpers in
// reads.go.
//
// Grounded on original_source/src/pcrdb/db/connection.py (table shapes,
// insert_snapshot/insert_snapshots_batch) and
// services/indexer/storage.go + types.go (db/json struct tags, pool
// tuning, ON CONFLICT upserts).
package snapshot

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ClanSnapshot is one row per (clan_id, collected_at).
type ClanSnapshot struct {
	ClanID                int64     `db:"clan_id" json:"clan_id"`
	CollectedAt           time.Time `db:"collected_at" json:"collected_at"`
	ClanName              string    `db:"clan_name" json:"clan_name"`
	LeaderViewerID        int64     `db:"leader_viewer_id" json:"leader_viewer_id"`
	LeaderName            string    `db:"leader_name" json:"leader_name"`
	JoinCondition         int       `db:"join_condition" json:"join_condition"`
	Activity              int       `db:"activity" json:"activity"`
	ClanBattleMode        int       `db:"clan_battle_mode" json:"clan_battle_mode"`
	MemberNum             int       `db:"member_num" json:"member_num"`
	CurrentPeriodRanking  int       `db:"current_period_ranking" json:"current_period_ranking"`
	GradeRank             int       `db:"grade_rank" json:"grade_rank"`
	Description           string    `db:"description" json:"description"`
	Exist                 bool      `db:"exist" json:"exist"`
}

// PlayerClanSnapshot is one row per (viewer_id, collected_at): a
// denormalized member-as-seen-inside-a-clan record.
type PlayerClanSnapshot struct {
	ViewerID      int64     `db:"viewer_id" json:"viewer_id"`
	CollectedAt   time.Time `db:"collected_at" json:"collected_at"`
	Name          string    `db:"name" json:"name"`
	Level         int       `db:"level" json:"level"`
	Role          int       `db:"role" json:"role"`
	TotalPower    int64     `db:"total_power" json:"total_power"`
	JoinClanID    int64     `db:"join_clan_id" json:"join_clan_id"`
	JoinClanName  string    `db:"join_clan_name" json:"join_clan_name"`
	LastLoginTime *time.Time `db:"last_login_time" json:"last_login_time,omitempty"`
}

// TalentQuestClear is the length-5 talent-quest clear-count vector, one
// per elemental attribute. It stores as JSONB.
type TalentQuestClear [5]int

func (t TalentQuestClear) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TalentQuestClear) Scan(src any) error {
	if src == nil {
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("snapshot: TalentQuestClear.Scan: unsupported type %T", src)
	}
	return json.Unmarshal(raw, t)
}

// PlayerProfileSnapshot is one row per (viewer_id, collected_at).
type PlayerProfileSnapshot struct {
	ViewerID                 int64            `db:"viewer_id" json:"viewer_id"`
	CollectedAt              time.Time        `db:"collected_at" json:"collected_at"`
	UserName                 string           `db:"user_name" json:"user_name"`
	TeamLevel                int              `db:"team_level" json:"team_level"`
	UnitNum                  int              `db:"unit_num" json:"unit_num"`
	TotalPower               int64            `db:"total_power" json:"total_power"`
	ArenaRank                int              `db:"arena_rank" json:"arena_rank"`
	ArenaGroup               int              `db:"arena_group" json:"arena_group"`
	GrandArenaRank           int              `db:"grand_arena_rank" json:"grand_arena_rank"`
	GrandArenaGroup          int              `db:"grand_arena_group" json:"grand_arena_group"`
	FavoriteUnit             int64            `db:"favorite_unit" json:"favorite_unit"`
	UserComment              string           `db:"user_comment" json:"user_comment"`
	JoinClanID               *int64           `db:"join_clan_id" json:"join_clan_id,omitempty"`
	JoinClanName             *string          `db:"join_clan_name" json:"join_clan_name,omitempty"`
	PrincessKnightRankExp    int64            `db:"princess_knight_rank_total_exp" json:"princess_knight_rank_total_exp"`
	TalentQuestClear         TalentQuestClear `db:"talent_quest_clear" json:"talent_quest_clear"`
}

// GrandArenaSnapshot is one row per (viewer_id, collected_at): a team-mode
// ranked-arena page scrape result.
type GrandArenaSnapshot struct {
	ViewerID        int64     `db:"viewer_id" json:"viewer_id"`
	CollectedAt     time.Time `db:"collected_at" json:"collected_at"`
	UserName        string    `db:"user_name" json:"user_name"`
	TeamLevel       int       `db:"team_level" json:"team_level"`
	GrandArenaRank  int       `db:"grand_arena_rank" json:"grand_arena_rank"`
	GrandArenaGroup int       `db:"grand_arena_group" json:"grand_arena_group"`
	WinningNumber   int       `db:"winning_number" json:"winning_number"`
	FavoriteUnit    int64     `db:"favorite_unit" json:"favorite_unit"`
}

// DeckSlot is one unit in a compact defensive deck.
type DeckSlot struct {
	UnitID int64 `json:"unit_id"`
	Rarity int   `json:"rarity"`
	Level  int   `json:"level"`
	Power  int64 `json:"power"`
}

// DeckSlots is a JSONB-storable sequence of DeckSlot.
type DeckSlots []DeckSlot

func (d DeckSlots) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DeckSlots) Scan(src any) error {
	if src == nil {
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("snapshot: DeckSlots.Scan: unsupported type %T", src)
	}
	return json.Unmarshal(raw, d)
}

// ArenaDeckSnapshot is one row per (viewer_id, collected_at): a solo-mode
// top-N snapshot with the defensive deck extracted as a structured
// sequence (§3 — overriding the original's raw-JSON punt).
type ArenaDeckSnapshot struct {
	ViewerID    int64      `db:"viewer_id" json:"viewer_id"`
	CollectedAt time.Time  `db:"collected_at" json:"collected_at"`
	TeamLevel   int        `db:"team_level" json:"team_level"`
	ArenaGroup  int        `db:"arena_group" json:"arena_group"`
	ArenaRank   int       `db:"arena_rank" json:"arena_rank"`
	Deck        DeckSlots `db:"arena_deck" json:"arena_deck"`
}
