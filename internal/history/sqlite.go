package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tabi-core/internal/dispatch"
)

// Recent limits.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// timeLayout is fixed width so created_at compares correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrInvalidLimit is returned by Recent for a non-positive limit.
var ErrInvalidLimit = errors.New("history: limit must be positive")

// Logger is the minimal logging interface used by the pruner.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// SQLiteStore persists dispatches in the dispatch_log table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a store on db. The dispatch_log migration must
// already be applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// RecordDispatch writes one row per outcome in a single transaction.
func (s *SQLiteStore) RecordDispatch(ctx context.Context, rec dispatch.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch_log
			(dispatch_id, kind, target, command, device_id, device_name, room, status, topic, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: preparing insert: %w", err)
	}
	defer stmt.Close()

	createdAt := rec.Timestamp.UTC().Format(timeLayout)
	for _, o := range rec.Outcomes {
		var errText sql.NullString
		if o.Error != "" {
			errText = sql.NullString{String: o.Error, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, string(rec.Kind), rec.Target, rec.Command.Wire(),
			o.DeviceID, o.DeviceName, o.Room, string(o.Status), o.Topic, errText,
			createdAt,
		); err != nil {
			return fmt.Errorf("history: inserting %s: %w", o.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: committing: %w", err)
	}
	return nil
}

// LastCommands returns the latest successful command per device.
func (s *SQLiteStore) LastCommands(ctx context.Context, deviceIDs []string) (map[string]LastCommand, error) {
	want := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = true
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, command, created_at FROM dispatch_log
		WHERE id IN (
			SELECT MAX(id) FROM dispatch_log WHERE status = 'success' GROUP BY device_id
		)`)
	if err != nil {
		return nil, fmt.Errorf("history: querying last commands: %w", err)
	}
	defer rows.Close()

	out := make(map[string]LastCommand)
	for rows.Next() {
		var id, cmd, at string
		if err := rows.Scan(&id, &cmd, &at); err != nil {
			return nil, fmt.Errorf("history: scanning last command: %w", err)
		}
		if !want[id] {
			continue
		}
		ts, _ := time.Parse(timeLayout, at) //nolint:errcheck // Format is controlled
		out[id] = LastCommand{Command: cmd, At: ts}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating last commands: %w", err)
	}
	return out, nil
}

// Recent returns the newest limit rows, newest first. limit is capped at
// MaxRecentLimit.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dispatch_id, kind, target, command, device_id, device_name, room, status, topic, error, created_at
		FROM dispatch_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying recent: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var at string
		if err := rows.Scan(&e.DispatchID, &e.Kind, &e.Target, &e.Command,
			&e.DeviceID, &e.DeviceName, &e.Room, &e.Status, &e.Topic, &errText, &at); err != nil {
			return nil, fmt.Errorf("history: scanning entry: %w", err)
		}
		e.Error = errText.String
		e.Timestamp, _ = time.Parse(timeLayout, at) //nolint:errcheck // Format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating recent: %w", err)
	}
	return entries, nil
}

// Prune deletes rows older than before and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM dispatch_log WHERE created_at < ?",
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("history: pruning: %w", err)
	}
	return res.RowsAffected()
}

// RunPruner deletes rows older than retention every interval until ctx is
// cancelled. A zero retention disables pruning.
func (s *SQLiteStore) RunPruner(ctx context.Context, interval, retention time.Duration, logger Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Prune(ctx, now.Add(-retention))
			if err != nil {
				logger.Warn("dispatch log prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("dispatch log pruned", "rows", n)
			}
		}
	}
}
