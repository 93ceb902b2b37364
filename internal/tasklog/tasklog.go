// Package tasklog is the Task Log: per-run observability recording
// started/finished timestamps, duration, status, expected/fetched/saved
// record counts, and failure reason.
//
// Grounded on original_source/src/pcrdb/db/task_logger.py.
package tasklog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TaskTables maps a task name to the snapshot tables whose row-count delta
// approximates how many records that task saved.
var TaskTables = map[string][]string{
	"clan_sync":                   {"clan_snapshots", "player_clan_snapshots"},
	"player_profile_sync":         {"player_profile_snapshots"},
	"player_profile_sync_monthly": {"player_profile_snapshots"},
	"grand_sync":                  {"grand_arena_snapshots"},
	"arena_deck_sync":             {"arena_deck_snapshots"},
}

// Logger tracks one run's lifecycle: Start snapshots row counts, and
// FinishSuccess/FinishFailed compute the delta as records_saved before
// persisting a task_logs row.
type Logger struct {
	db *sqlx.DB

	taskName        string
	startTime       time.Time
	recordsExpected int
	details         map[string]any
	initialCounts   map[string]int
}

func NewLogger(db *sqlx.DB, taskName string) *Logger {
	return &Logger{db: db, taskName: taskName}
}

// Start records the run's start time and snapshots the current row counts
// of every table TaskTables associates with this task name.
func (l *Logger) Start(ctx context.Context, recordsExpected int, details map[string]any) {
	l.startTime = time.Now()
	l.recordsExpected = recordsExpected
	l.details = details
	l.initialCounts = l.snapshotCounts(ctx)
}

func (l *Logger) snapshotCounts(ctx context.Context) map[string]int {
	tables := TaskTables[l.taskName]
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := l.db.GetContext(ctx, &count, query); err != nil {
			count = 0
		}
		counts[table] = count
	}
	return counts
}

func (l *Logger) calculateSaved(ctx context.Context) int {
	current := l.snapshotCounts(ctx)
	total := 0
	for table, initial := range l.initialCounts {
		delta := current[table] - initial
		if delta > 0 {
			total += delta
		}
	}
	return total
}

// FinishSuccess persists a successful task_logs row with recordsFetched
// and the computed records_saved delta.
func (l *Logger) FinishSuccess(ctx context.Context, recordsFetched int) error {
	return l.saveLog(ctx, "success", recordsFetched, "")
}

// FinishFailed persists a failed task_logs row carrying errMessage.
func (l *Logger) FinishFailed(ctx context.Context, errMessage string, recordsFetched int) error {
	return l.saveLog(ctx, "failed", recordsFetched, errMessage)
}

func (l *Logger) saveLog(ctx context.Context, status string, recordsFetched int, errMessage string) error {
	if l.startTime.IsZero() {
		return nil
	}
	finishedAt := time.Now()
	duration := finishedAt.Sub(l.startTime).Seconds()
	recordsSaved := l.calculateSaved(ctx)

	var detailsJSON []byte
	if l.details != nil {
		var err error
		detailsJSON, err = json.Marshal(l.details)
		if err != nil {
			return fmt.Errorf("tasklog: marshal details: %w", err)
		}
	}

	var errMsg *string
	if errMessage != "" {
		errMsg = &errMessage
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO task_logs
			(task_name, started_at, finished_at, duration_seconds, status,
			 records_expected, records_fetched, records_saved, error_message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.taskName, l.startTime, finishedAt, duration, status,
		l.recordsExpected, recordsFetched, recordsSaved, errMsg, detailsJSON)
	if err != nil {
		return fmt.Errorf("tasklog: insert task_logs row: %w", err)
	}
	return nil
}

// Run wraps fn with a full TaskLog lifecycle: Start, then FinishSuccess or
// FinishFailed depending on whether fn panics or returns an error,
// recovering from any panic so one pipeline failure cannot crash the
// scheduler (§4.7/§7).
func (l *Logger) Run(ctx context.Context, recordsExpected int, details map[string]any, fn func(ctx context.Context) (recordsFetched int, err error)) (err error) {
	l.Start(ctx, recordsExpected, details)

	var fetched int
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tasklog: task %s panicked: %v", l.taskName, r)
			}
		}()
		fetched, err = fn(ctx)
	}()

	if err != nil {
		if logErr := l.FinishFailed(ctx, err.Error(), fetched); logErr != nil {
			return fmt.Errorf("%w (and failed to log failure: %v)", err, logErr)
		}
		return err
	}
	return l.FinishSuccess(ctx, fetched)
}
