// Package audit records accepted changes to the blind configuration so
// operators can see who changed which blind and when.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionAdd     = "add"
	ActionUpdate  = "update"
	ActionRemove  = "remove"
	ActionEnable  = "enable"
	ActionDisable = "disable"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

var (
	// ErrUnknownAction is returned for an action outside the recorded set.
	ErrUnknownAction = errors.New("audit: unknown action")

	// ErrMissingBlindID is returned by Create for an entry without a blind.
	ErrMissingBlindID = errors.New("audit: blind id is required")
)

// ValidAction reports whether action is one of the recorded actions.
func ValidAction(action string) bool {
	switch action {
	case ActionAdd, ActionUpdate, ActionRemove, ActionEnable, ActionDisable:
		return true
	}
	return false
}

// Entry is one configuration change.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	BlindID   string         `json:"blind_id"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action  string // optional
	BlindID string // optional
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// SQLiteRepository stores entries in the config_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository on db. The config_audit
// migration must already be applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if !ValidAction(e.Action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	if e.BlindID == "" {
		return ErrMissingBlindID
	}
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit: encoding details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	var requestID sql.NullString
	if e.RequestID != "" {
		requestID = sql.NullString{String: e.RequestID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO config_audit (id, action, blind_id, request_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.BlindID, requestID, details,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("audit: inserting entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Action != "" && !ValidAction(filter.Action) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, filter.Action)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.BlindID != "" {
		conditions = append(conditions, "blind_id = ?")
		args = append(args, filter.BlindID)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM config_audit " + where //nolint:gosec // WHERE built from fixed fragments
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("audit: counting entries: %w", err)
	}

	query := "SELECT id, action, blind_id, request_id, details, created_at FROM config_audit " + //nolint:gosec // WHERE built from fixed fragments
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("audit: querying entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var requestID, details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.BlindID, &requestID, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: scanning entry: %w", err)
		}
		e.RequestID = requestID.String
		if details.Valid && details.String != "" {
			var m map[string]any
			if json.Unmarshal([]byte(details.String), &m) == nil {
				e.Details = m
			}
		}
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("audit: parsing timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterating entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
