package pipeline

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcrguild/pcrdb-collector/internal/queue"
	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

func TestProcessClanSuccess(t *testing.T) {
	resp := map[string]any{
		"clan": map[string]any{
			"detail": map[string]any{
				"clan_id":                 int64(7),
				"clan_name":               "Princess",
				"leader_viewer_id":        int64(100),
				"leader_name":             "Leader",
				"join_condition":          1,
				"activity":                2,
				"clan_battle_mode":        0,
				"member_num":              2,
				"current_period_ranking":  3,
				"grade_rank":              1,
				"description":             "desc",
			},
			"members": []any{
				map[string]any{"viewer_id": int64(1), "name": "A", "level": 10, "role": 1, "total_power": int64(5000), "last_login_time": int64(1700000000)},
				map[string]any{"viewer_id": int64(2), "name": "B", "level": 20, "role": 2, "total_power": int64(6000)},
			},
		},
	}

	result := ProcessClan(7, resp)
	require.Equal(t, queue.Ok, result.Outcome)

	rec, ok := result.Record.(clanRecord)
	require.True(t, ok)
	assert.Equal(t, int64(7), rec.Clan.ClanID)
	assert.True(t, rec.Clan.Exist)
	assert.Len(t, rec.Members, 2)
	assert.Equal(t, int64(7), rec.Members[0].JoinClanID)
	assert.NotNil(t, rec.Members[0].LastLoginTime)
	assert.Nil(t, rec.Members[1].LastLoginTime)
}

// TestProcessClanDisbanded is scenario S3: the server_error marker for a
// disbanded clan drops the id but still reports it as Exist:false, not a
// silent no-op.
func TestProcessClanDisbanded(t *testing.T) {
	resp := map[string]any{
		"server_error": map[string]any{"message": "此行会已解散"},
	}
	result := ProcessClan(42, resp)
	assert.Equal(t, queue.Drop, result.Outcome)

	rec, ok := result.Record.(clanRecord)
	require.True(t, ok)
	assert.Equal(t, int64(42), rec.Clan.ClanID)
	assert.False(t, rec.Clan.Exist)
}

func TestProcessClanConnectionInterrupted(t *testing.T) {
	resp := map[string]any{
		"server_error": map[string]any{"message": "连接中断，请重试"},
	}
	result := ProcessClan(1, resp)
	assert.Equal(t, queue.Retry, result.Outcome)
}

func TestProcessClanUnknownDrops(t *testing.T) {
	result := ProcessClan(1, map[string]any{})
	assert.Equal(t, queue.Drop, result.Outcome)
}

func TestInsertClanRecordsSplitsClansAndMembers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := snapshot.NewStore(sqlx.NewDb(db, "postgres"))

	mock.ExpectExec("INSERT INTO clan_snapshots").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO player_clan_snapshots").WillReturnResult(sqlmock.NewResult(0, 2))

	inserter := InsertClanRecords(store)
	records := []any{clanRecord{
		Clan: snapshot.ClanSnapshot{ClanID: 1, Exist: true},
		Members: []snapshot.PlayerClanSnapshot{
			{ViewerID: 10}, {ViewerID: 11},
		},
	}}
	require.NoError(t, inserter(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}
