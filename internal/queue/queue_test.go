package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcrguild/pcrdb-collector/internal/accounts"
)

func TestDedupSorted(t *testing.T) {
	got := dedupSorted([]int64{5, 1, 1, 3, 5, 2})
	assert.Equal(t, []int64{1, 2, 3, 5}, got)
}

func TestInferMode(t *testing.T) {
	assert.Equal(t, ModeClan, inferMode([]int64{1, 2, 3}))
	assert.Equal(t, ModeProfile, inferMode([]int64{2_000_000_000_000}))
	assert.Equal(t, ModeClan, inferMode(nil))
}

// TestRetryAccounting is invariant 6: the final processed counter equals
// the deduplicated seed-list length regardless of per-item failure counts.
func TestRetryAccounting(t *testing.T) {
	seed := []int64{1, 2, 3, 4, 5}
	active := []accounts.Account{
		{ID: 1, UpstreamUID: "u1"},
		{ID: 2, UpstreamUID: "u2"},
	}

	calls := map[int64]int{}
	cfg := Config{
		SeedIDs:     seed,
		Concurrency: 2,
		BatchSize:   10,
		Login:       func(ctx context.Context, acc accounts.Account) error { return nil },
		Fetcher: func(ctx context.Context, acc accounts.Account, mode QueryMode, id int64) (map[string]any, error) {
			calls[id]++
			return map[string]any{"id": id}, nil
		},
		Processor: func(queryID int64, resp map[string]any) ProcessResult {
			// id 3 always fails, everything else succeeds on first try.
			if queryID == 3 {
				return ProcessResult{Outcome: Retry}
			}
			return ProcessResult{Outcome: Ok, Record: resp}
		},
	}

	// id 3 sleeps retryDelay (2s) between each of its 4 attempts, so the
	// deadline must leave room for 3 * 2s of backoff.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	processed, err := Run(ctx, cfg, active)
	require.NoError(t, err)
	assert.Equal(t, len(seed), processed)
	assert.Equal(t, 4, calls[3]) // id 3 retried all 4 attempts
}

func TestDropDoesNotRetry(t *testing.T) {
	active := []accounts.Account{{ID: 1, UpstreamUID: "u1"}}
	attempts := 0
	cfg := Config{
		SeedIDs:     []int64{42},
		Concurrency: 1,
		BatchSize:   1,
		Login:       func(ctx context.Context, acc accounts.Account) error { return nil },
		Fetcher: func(ctx context.Context, acc accounts.Account, mode QueryMode, id int64) (map[string]any, error) {
			attempts++
			return map[string]any{}, nil
		},
		Processor: func(queryID int64, resp map[string]any) ProcessResult {
			return ProcessResult{Outcome: Drop}
		},
	}

	processed, err := Run(context.Background(), cfg, active)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, attempts)
}

// TestDropWithRecordReachesBatchInserter covers the disbanded-clan tombstone
// path: a Drop outcome that still carries a non-nil Record (internal/pipeline's
// ProcessClan building a ClanSnapshot{Exist: false}) must flow to the
// BatchInserter rather than being discarded just because it wasn't Ok.
func TestDropWithRecordReachesBatchInserter(t *testing.T) {
	active := []accounts.Account{{ID: 1, UpstreamUID: "u1"}}
	var inserted []any
	cfg := Config{
		SeedIDs:     []int64{7, 8},
		Concurrency: 1,
		BatchSize:   10,
		Login:       func(ctx context.Context, acc accounts.Account) error { return nil },
		Fetcher: func(ctx context.Context, acc accounts.Account, mode QueryMode, id int64) (map[string]any, error) {
			return map[string]any{"id": id}, nil
		},
		Processor: func(queryID int64, resp map[string]any) ProcessResult {
			if queryID == 7 {
				return ProcessResult{Outcome: Drop, Record: "tombstone-7"}
			}
			return ProcessResult{Outcome: Drop}
		},
		BatchInserter: func(ctx context.Context, records []any) error {
			inserted = append(inserted, records...)
			return nil
		},
	}

	processed, err := Run(context.Background(), cfg, active)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []any{"tombstone-7"}, inserted)
}

// TestProcessedCountSurvivesConcurrentWorkers is invariant 6 under
// contention: many workers incrementing the shared counter concurrently
// must not lose increments to a non-atomic read-modify-write.
func TestProcessedCountSurvivesConcurrentWorkers(t *testing.T) {
	seed := make([]int64, 500)
	for i := range seed {
		seed[i] = int64(i + 1)
	}
	active := make([]accounts.Account, 8)
	for i := range active {
		active[i] = accounts.Account{ID: int64(i + 1), UpstreamUID: "u"}
	}

	cfg := Config{
		SeedIDs:     seed,
		Concurrency: 8,
		BatchSize:   5,
		Login:       func(ctx context.Context, acc accounts.Account) error { return nil },
		Fetcher: func(ctx context.Context, acc accounts.Account, mode QueryMode, id int64) (map[string]any, error) {
			return map[string]any{"id": id}, nil
		},
		Processor: func(queryID int64, resp map[string]any) ProcessResult {
			return ProcessResult{Outcome: Ok, Record: resp}
		},
	}

	processed, err := Run(context.Background(), cfg, active)
	require.NoError(t, err)
	assert.Equal(t, len(seed), processed)
}
