// Package accounts is the Account Registry: the persistent store of
// crawler credentials, exposing an active-accounts iterator and per-group
// lookup. It is read-only during a pipeline run (§5).
package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Account is the persistent crawler credential row.
type Account struct {
	ID              int64     `db:"id"`
	UpstreamUID     string    `db:"upstream_uid"`
	AccessKey       string    `db:"access_key"`
	ViewerID        *int64    `db:"viewer_id"`
	DisplayName     string    `db:"display_name"`
	ArenaGroup      int       `db:"arena_group"`
	GrandArenaGroup int       `db:"grand_arena_group"`
	Active          bool      `db:"active"`
	Note            string    `db:"note"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// GroupKind selects which group membership a caller wants accounts
// partitioned by.
type GroupKind int

const (
	ArenaGroupKind GroupKind = iota
	GrandArenaGroupKind
)

// Registry is the sqlx-backed Account Registry.
type Registry struct {
	db *sqlx.DB
}

func NewRegistry(db *sqlx.DB) *Registry {
	return &Registry{db: db}
}

// ListActive returns every account with active=true, ordered by id for
// deterministic worker assignment.
func (r *Registry) ListActive(ctx context.Context) ([]Account, error) {
	var out []Account
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, upstream_uid, access_key, viewer_id, display_name,
		        arena_group, grand_arena_group, active, note, updated_at
		   FROM accounts
		  WHERE active = true
		  ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("accounts: list active: %w", err)
	}
	return out, nil
}

// GetByGroup returns every active account belonging to the given group id
// under kind (arena or grand-arena), ordered by id. The grand-arena and
// arena-deck pipelines seed from GroupMap instead.
func (r *Registry) GetByGroup(ctx context.Context, kind GroupKind, group int) ([]Account, error) {
	column := "arena_group"
	if kind == GrandArenaGroupKind {
		column = "grand_arena_group"
	}
	var out []Account
	query := fmt.Sprintf(
		`SELECT id, upstream_uid, access_key, viewer_id, display_name,
		        arena_group, grand_arena_group, active, note, updated_at
		   FROM accounts
		  WHERE active = true AND %s = $1
		  ORDER BY id`, column)
	if err := r.db.SelectContext(ctx, &out, query, group); err != nil {
		return nil, fmt.Errorf("accounts: get by group: %w", err)
	}
	return out, nil
}

// GroupMap partitions every active account by their group membership under
// kind, the shape the grand-arena pipeline's seeding phase iterates over.
func (r *Registry) GroupMap(ctx context.Context, kind GroupKind) (map[int][]Account, error) {
	active, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]Account)
	for _, acc := range active {
		group := acc.ArenaGroup
		if kind == GrandArenaGroupKind {
			group = acc.GrandArenaGroup
		}
		if group == 0 {
			continue // 0 = unassigned
		}
		out[group] = append(out[group], acc)
	}
	return out, nil
}

// Bind is the one-shot binding job from §3's Account lifecycle note: an
// admin-imported account has no bound viewer-id or group memberships until
// this logs in once and persists what the server reports back.
type LoginFunc func(ctx context.Context, uid, accessKey string) (viewerID int64, arenaGroup, grandArenaGroup int, err error)

func (r *Registry) Bind(ctx context.Context, accountID int64, login LoginFunc) error {
	var acc Account
	if err := r.db.GetContext(ctx, &acc,
		`SELECT id, upstream_uid, access_key FROM accounts WHERE id = $1`, accountID); err != nil {
		return fmt.Errorf("accounts: bind: load account %d: %w", accountID, err)
	}

	viewerID, arenaGroup, grandArenaGroup, err := login(ctx, acc.UpstreamUID, acc.AccessKey)
	if err != nil {
		return fmt.Errorf("accounts: bind: login for account %d: %w", accountID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE accounts
		    SET viewer_id = $1, arena_group = $2, grand_arena_group = $3, updated_at = now()
		  WHERE id = $4`,
		viewerID, arenaGroup, grandArenaGroup, accountID)
	if err != nil {
		return fmt.Errorf("accounts: bind: persist account %d: %w", accountID, err)
	}
	return nil
}
