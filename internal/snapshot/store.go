package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps a *sqlx.DB with the insert helpers every pipeline writes
// through. Connection pool tuning mirrors services/indexer/storage.go.
type Store struct {
	db *sqlx.DB
}

// Open opens a postgres connection pool at dsn and verifies it with a
// ping before returning.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an already-open *sqlx.DB, the path pipelines and tests use
// when the connection is built or mocked elsewhere.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// InsertClanBatch writes one ClanSnapshot row per clan and one
// PlayerClanSnapshot row per member, both idempotent on
// (natural_id, collected_at).
func (s *Store) InsertClanBatch(ctx context.Context, clans []ClanSnapshot, members []PlayerClanSnapshot) error {
	if len(clans) > 0 {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO clan_snapshots
				(clan_id, collected_at, clan_name, leader_viewer_id, leader_name,
				 join_condition, activity, clan_battle_mode, member_num,
				 current_period_ranking, grade_rank, description, exist)
			VALUES
				(:clan_id, :collected_at, :clan_name, :leader_viewer_id, :leader_name,
				 :join_condition, :activity, :clan_battle_mode, :member_num,
				 :current_period_ranking, :grade_rank, :description, :exist)
			ON CONFLICT (clan_id, collected_at) DO NOTHING`, clans)
		if err != nil {
			return fmt.Errorf("snapshot: insert clan_snapshots: %w", err)
		}
	}
	if len(members) > 0 {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO player_clan_snapshots
				(viewer_id, collected_at, name, level, role, total_power,
				 join_clan_id, join_clan_name, last_login_time)
			VALUES
				(:viewer_id, :collected_at, :name, :level, :role, :total_power,
				 :join_clan_id, :join_clan_name, :last_login_time)
			ON CONFLICT (viewer_id, collected_at) DO NOTHING`, members)
		if err != nil {
			return fmt.Errorf("snapshot: insert player_clan_snapshots: %w", err)
		}
	}
	return nil
}

// InsertProfileBatch writes PlayerProfileSnapshot rows.
func (s *Store) InsertProfileBatch(ctx context.Context, records []PlayerProfileSnapshot) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO player_profile_snapshots
			(viewer_id, collected_at, user_name, team_level, unit_num, total_power,
			 arena_rank, arena_group, grand_arena_rank, grand_arena_group,
			 favorite_unit, user_comment, join_clan_id, join_clan_name,
			 princess_knight_rank_total_exp, talent_quest_clear)
		VALUES
			(:viewer_id, :collected_at, :user_name, :team_level, :unit_num, :total_power,
			 :arena_rank, :arena_group, :grand_arena_rank, :grand_arena_group,
			 :favorite_unit, :user_comment, :join_clan_id, :join_clan_name,
			 :princess_knight_rank_total_exp, :talent_quest_clear)
		ON CONFLICT (viewer_id, collected_at) DO NOTHING`, records)
	if err != nil {
		return fmt.Errorf("snapshot: insert player_profile_snapshots: %w", err)
	}
	return nil
}

// InsertGrandArenaBatch writes GrandArenaSnapshot rows.
func (s *Store) InsertGrandArenaBatch(ctx context.Context, records []GrandArenaSnapshot) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO grand_arena_snapshots
			(viewer_id, collected_at, user_name, team_level, grand_arena_rank,
			 grand_arena_group, winning_number, favorite_unit)
		VALUES
			(:viewer_id, :collected_at, :user_name, :team_level, :grand_arena_rank,
			 :grand_arena_group, :winning_number, :favorite_unit)
		ON CONFLICT (viewer_id, collected_at) DO NOTHING`, records)
	if err != nil {
		return fmt.Errorf("snapshot: insert grand_arena_snapshots: %w", err)
	}
	return nil
}

// InsertArenaDeckBatch writes ArenaDeckSnapshot rows.
func (s *Store) InsertArenaDeckBatch(ctx context.Context, records []ArenaDeckSnapshot) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO arena_deck_snapshots
			(viewer_id, collected_at, team_level, arena_group, arena_rank, arena_deck)
		VALUES
			(:viewer_id, :collected_at, :team_level, :arena_group, :arena_rank, :arena_deck)
		ON CONFLICT (viewer_id, collected_at) DO NOTHING`, records)
	if err != nil {
		return fmt.Errorf("snapshot: insert arena_deck_snapshots: %w", err)
	}
	return nil
}
