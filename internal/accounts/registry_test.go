package accounts

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewRegistry(sqlxDB), mock
}

func TestListActive(t *testing.T) {
	r, mock := newMockRegistry(t)

	rows := sqlmock.NewRows([]string{"id", "upstream_uid", "access_key", "viewer_id",
		"display_name", "arena_group", "grand_arena_group", "active", "note", "updated_at"}).
		AddRow(1, "uid-1", "key-1", nil, "alice", 1, 2, true, "", nil)

	mock.ExpectQuery("SELECT (.|\n)* FROM accounts").WillReturnRows(rows)

	out, err := r.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "uid-1", out[0].UpstreamUID)
	assert.Equal(t, 1, out[0].ArenaGroup)
}

func TestGroupMapSkipsUnassigned(t *testing.T) {
	r, mock := newMockRegistry(t)

	rows := sqlmock.NewRows([]string{"id", "upstream_uid", "access_key", "viewer_id",
		"display_name", "arena_group", "grand_arena_group", "active", "note", "updated_at"}).
		AddRow(1, "uid-1", "key-1", nil, "alice", 1, 0, true, "", nil).
		AddRow(2, "uid-2", "key-2", nil, "bob", 2, 3, true, "", nil)

	mock.ExpectQuery("SELECT (.|\n)* FROM accounts").WillReturnRows(rows)

	out, err := r.GroupMap(context.Background(), GrandArenaGroupKind)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out, 3)
	assert.NotContains(t, out, 0)
}
