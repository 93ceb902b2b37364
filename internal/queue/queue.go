// Package queue implements the Work Queue: a bounded pool of account
// workers that drain a shared id queue, retrying per-id with a re-login,
// batching processed records, and flushing them to a batch inserter.
//
// Grounded on original_source/src/pcrdb/tasks/base.py's TaskQueue.
package queue

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/accounts"
	"github.com/pcrguild/pcrdb-collector/internal/metrics"
)

// Outcome tags the result of processing one item, replacing the original's
// null-overloaded return value (DESIGN NOTES §9).
type Outcome int

const (
	Ok Outcome = iota
	Drop
	Retry
)

// ProcessResult is what a Processor returns for one fetched response.
type ProcessResult struct {
	Outcome Outcome
	Record  any
}

// QueryMode selects which RPC endpoint a worker calls for a given id.
type QueryMode int

const (
	ModeClan QueryMode = iota
	ModeProfile
)

// viewerIDThreshold is the boundary §4.4 uses to infer query mode: ids
// above it are viewer-ids, below are clan-ids.
const viewerIDThreshold = 1_000_000_000_000

// Fetcher performs the RPC call for one id under the given mode, using the
// session the owning account's Login established, and returns the raw
// decoded response.
type Fetcher func(ctx context.Context, acc accounts.Account, mode QueryMode, id int64) (map[string]any, error)

// Processor turns one fetched response into a ProcessResult. It receives
// the query id (resolving §9-OQ-1) so a dropped record can still report
// which id it belonged to.
type Processor func(queryID int64, resp map[string]any) ProcessResult

// BatchInserter persists one flushed batch of processed records. It
// reports only success or failure; records_saved is computed separately by
// TaskLog from table row counts.
type BatchInserter func(ctx context.Context, records []any) error

// Login logs an account's worker in; the session it establishes is kept
// by the caller for the Fetcher to find. Re-login on retry just calls this
// again.
type Login func(ctx context.Context, acc accounts.Account) error

// Config are the construction parameters for one Work Queue run.
type Config struct {
	SeedIDs       []int64
	Processor     Processor
	Fetcher       Fetcher
	BatchInserter BatchInserter
	Login         Login
	Concurrency   int
	BatchSize     int
	PipelineName  string // for metrics labels
	Log           *logrus.Entry
}

const (
	workerStaggerDelay = 500 * time.Millisecond
	retryAttempts      = 4
	retryDelay         = 2 * time.Second
	monitorInterval    = 200 * time.Millisecond // 5Hz cap on progress refresh
)

// Run drains cfg.SeedIDs across up to min(Concurrency, len(accounts))
// workers and blocks until every worker has exited. It returns the total
// number of ids processed: len(dedupedSeedIDs) whenever at least one worker
// logs in, per invariant 6 (retries are local, a permanently failing id
// still counts as processed), and 0 when there are no active accounts or no
// worker logs in.
func Run(ctx context.Context, cfg Config, active []accounts.Account) (processed int, err error) {
	ids := dedupSorted(cfg.SeedIDs)
	mode := inferMode(ids)

	n := cfg.Concurrency
	if n > len(active) {
		n = len(active)
	}
	if n <= 0 {
		return 0, nil
	}

	idCh := make(chan int64, len(ids))
	for _, id := range ids {
		idCh <- id
	}
	close(idCh)

	var processedCount int64
	total := int64(len(ids))
	done := make(chan struct{})
	go monitorProgress(&processedCount, total, done, cfg.PipelineName, cfg.Log)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		acc := active[i]
		wg.Add(1)
		go func(acc accounts.Account) {
			defer wg.Done()
			runWorker(ctx, cfg, mode, acc, idCh, &processedCount)
		}(acc)
		time.Sleep(workerStaggerDelay)
	}
	wg.Wait()
	close(done)

	return int(processedCount), nil
}

func runWorker(ctx context.Context, cfg Config, mode QueryMode, acc accounts.Account, idCh <-chan int64, processedCount *int64) {
	if err := cfg.Login(ctx, acc); err != nil {
		if cfg.Log != nil {
			cfg.Log.WithError(err).WithField("account", acc.UpstreamUID).Warn("worker login failed, dropping from pool")
		}
		return
	}

	for {
		batch := drainBatch(idCh, cfg.BatchSize)
		if len(batch) == 0 {
			return
		}

		var records []any
		for _, id := range batch {
			record, outcome := processOne(ctx, cfg, mode, acc, id)
			if outcome == Ok || record != nil {
				records = append(records, record)
			}
			metrics.ItemsProcessed.WithLabelValues(cfg.PipelineName, outcomeLabel(outcome)).Inc()
			atomic.AddInt64(processedCount, 1)
		}

		if len(records) > 0 && cfg.BatchInserter != nil {
			if err := cfg.BatchInserter(ctx, records); err != nil && cfg.Log != nil {
				cfg.Log.WithError(err).Error("batch insert failed")
			}
		}
	}
}

// processOne runs the fetch-process-retry loop for a single id, mirroring
// base.py's `for retry in range(4)` loop: up to 4 attempts, sleeping 2s and
// re-logging-in between attempts whenever the processor doesn't settle on
// Ok or Drop.
func processOne(ctx context.Context, cfg Config, mode QueryMode, acc accounts.Account, id int64) (any, Outcome) {
	for attempt := 0; attempt < retryAttempts; attempt++ {
		resp, err := cfg.Fetcher(ctx, acc, mode, id)
		if err == nil {
			result := cfg.Processor(id, resp)
			switch result.Outcome {
			case Ok:
				return result.Record, Ok
			case Drop:
				return result.Record, Drop
			}
			// Retry falls through to the backoff below.
		}

		if attempt < retryAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, Drop
			case <-time.After(retryDelay):
			}
			_ = cfg.Login(ctx, acc)
		}
	}
	return nil, Retry
}

func drainBatch(idCh <-chan int64, size int) []int64 {
	batch := make([]int64, 0, size)
	for i := 0; i < size; i++ {
		id, ok := <-idCh
		if !ok {
			break
		}
		batch = append(batch, id)
	}
	return batch
}

func dedupSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func inferMode(ids []int64) QueryMode {
	if len(ids) > 0 && ids[0] > viewerIDThreshold {
		return ModeProfile
	}
	return ModeClan
}

func outcomeLabel(o Outcome) string {
	switch o {
	case Ok:
		return "ok"
	case Drop:
		return "drop"
	default:
		return "retry_exhausted"
	}
}
