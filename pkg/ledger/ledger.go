// Package ledger persists one row per [refineplan.Controller] Update
// call - its inputs, its published outputs, and the predicted-at-
// next-gc figures - to a SQLite database for offline analysis. This
// is diagnostic-only: nothing on the mutator hot path in pkg/cardqueue
// depends on it. cardrefine-sim treats a failure to open the ledger as
// fatal, but only logs a failed Record and keeps running.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/region-gc/cardrefine/pkg/refineplan"
)

const sqliteBusyTimeoutMS = 10000

const schemaVersion = 1

var errEmptyPath = errors.New("ledger: path is empty")

// Ledger records controller decisions to a SQLite-backed log.
type Ledger struct {
	db *sql.DB
}

// Open creates or reuses the SQLite database at path, applies the WAL
// pragma batch, and ensures the decisions table exists.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, errEmptyPath
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ledger: ping sqlite: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Ledger{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeoutMS))
	if err != nil {
		return fmt.Errorf("ledger: apply pragmas: %w", err)
	}

	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("ledger: read user_version: %w", err)
	}

	if version >= schemaVersion {
		return nil
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS decisions (
			id                                   INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at_unix_ms                  INTEGER NOT NULL,
			active_threads                       INTEGER NOT NULL,
			available_bytes                      INTEGER NOT NULL,
			num_written_cards                    INTEGER NOT NULL,
			num_dirty_cards                      INTEGER NOT NULL,
			target_dirty_cards                   INTEGER NOT NULL,
			threads_needed                       INTEGER NOT NULL,
			written_cards_deactivation_threshold INTEGER NOT NULL,
			predicted_time_until_next_gc_ms       REAL NOT NULL,
			predicted_written_cards_at_next_gc    INTEGER NOT NULL,
			predicted_dirty_cards_at_next_gc      INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ledger: create schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("ledger: set user_version: %w", err)
	}

	return nil
}

// Record inserts one row capturing a single Update() call's inputs
// and outputs, stamped with recordedAt.
func (l *Ledger) Record(ctx context.Context, recordedAt time.Time, in refineplan.Inputs, out refineplan.Outputs) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO decisions (
			recorded_at_unix_ms, active_threads, available_bytes,
			num_written_cards, num_dirty_cards, target_dirty_cards,
			threads_needed, written_cards_deactivation_threshold,
			predicted_time_until_next_gc_ms,
			predicted_written_cards_at_next_gc,
			predicted_dirty_cards_at_next_gc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		recordedAt.UnixMilli(), in.ActiveThreads, in.AvailableBytes,
		in.NumWrittenCards, in.NumDirtyCards, in.TargetDirtyCards,
		out.ThreadsNeeded, out.WrittenCardsDeactivationThreshold,
		out.PredictedTimeUntilNextGCMS,
		out.PredictedWrittenCardsAtNextGC,
		out.PredictedDirtyCardsAtNextGC,
	)
	if err != nil {
		return fmt.Errorf("ledger: record decision: %w", err)
	}

	return nil
}

// Decision is one row read back from the ledger.
type Decision struct {
	ID         int64
	RecordedAt time.Time
	Inputs     refineplan.Inputs
	Outputs    refineplan.Outputs
}

// Recent returns the limit most recently recorded decisions, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Decision, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, recorded_at_unix_ms, active_threads, available_bytes,
		       num_written_cards, num_dirty_cards, target_dirty_cards,
		       threads_needed, written_cards_deactivation_threshold,
		       predicted_time_until_next_gc_ms,
		       predicted_written_cards_at_next_gc,
		       predicted_dirty_cards_at_next_gc
		FROM decisions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query recent: %w", err)
	}
	defer rows.Close()

	var out []Decision

	for rows.Next() {
		var (
			d          Decision
			recordedMS int64
		)

		if err := rows.Scan(
			&d.ID, &recordedMS, &d.Inputs.ActiveThreads, &d.Inputs.AvailableBytes,
			&d.Inputs.NumWrittenCards, &d.Inputs.NumDirtyCards, &d.Inputs.TargetDirtyCards,
			&d.Outputs.ThreadsNeeded, &d.Outputs.WrittenCardsDeactivationThreshold,
			&d.Outputs.PredictedTimeUntilNextGCMS,
			&d.Outputs.PredictedWrittenCardsAtNextGC,
			&d.Outputs.PredictedDirtyCardsAtNextGC,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan row: %w", err)
		}

		d.RecordedAt = time.UnixMilli(recordedMS)
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate rows: %w", err)
	}

	return out, nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
