package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClanHistoryGroupsByTwentyDayGap(t *testing.T) {
	store, mock := newMockStore(t)

	jan := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	janLater := jan.Add(5 * 24 * time.Hour)
	feb := jan.Add(30 * 24 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"collected_at", "current_period_ranking", "grade_rank", "member_num",
		"clan_name", "leader_name", "leader_viewer_id",
	}).
		AddRow(jan, 10, 8, 30, "Clan A", "Leader", int64(1)).
		AddRow(janLater, 10, 8, 30, "Clan A", "Leader", int64(1)).
		AddRow(feb, 9, 7, 31, "Clan A", "Leader", int64(1))

	mock.ExpectQuery("SELECT collected_at, current_period_ranking").WillReturnRows(rows)

	history, err := store.ClanHistory(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest period first; the January period settles on February's grade_rank.
	assert.Equal(t, "2026-02", history[0].Period)
	assert.True(t, history[0].IsEstimate)
	assert.Equal(t, "2026-01", history[1].Period)
	assert.False(t, history[1].IsEstimate)
	assert.Equal(t, 7, history[1].Ranking)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClanHistoryEmptyReturnsNil(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"collected_at", "current_period_ranking", "grade_rank", "member_num",
		"clan_name", "leader_name", "leader_viewer_id",
	})
	mock.ExpectQuery("SELECT collected_at, current_period_ranking").WillReturnRows(rows)

	history, err := store.ClanHistory(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestPlayerHistoryReturnsRows(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"viewer_id", "collected_at", "user_name", "team_level", "unit_num", "total_power",
		"arena_rank", "arena_group", "grand_arena_rank", "grand_arena_group",
		"favorite_unit", "user_comment", "join_clan_id", "join_clan_name",
		"princess_knight_rank_total_exp", "talent_quest_clear",
	}).AddRow(
		int64(7), time.Now(), "Viewer", 200, 300, int64(5_000_000),
		100, 1, 50, 2,
		int64(1001), "hi", int64(4), "Clan",
		int64(0), nil,
	)
	mock.ExpectQuery("SELECT viewer_id, collected_at").WillReturnRows(rows)

	out, err := store.PlayerHistory(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].ViewerID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClanPowerRankingRequiresTenMembers(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"rank", "clan_id", "clan_name", "avg_power", "member_count"}).
		AddRow(1, int64(4), "Clan", int64(1_000_000), 12)
	mock.ExpectQuery(`WITH latest_data AS(.|\n)*HAVING COUNT\(\*\) >= 10`).WillReturnRows(rows)

	out, err := store.ClanPowerRanking(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 12, out[0].MemberCount)
}

func TestTalentQuestStatsPassesWindowAsSeconds(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"viewer_id", "user_name", "talent_quest_clear"}).
		AddRow(int64(3), "Viewer", nil)
	mock.ExpectQuery("SELECT DISTINCT ON \\(viewer_id\\)").
		WithArgs("604800 seconds").
		WillReturnRows(rows)

	out, err := store.TalentQuestStats(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].ViewerID)
}
