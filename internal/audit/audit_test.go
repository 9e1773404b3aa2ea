package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
	"github.com/nerrad567/tabi-core/internal/infrastructure/database"
	"github.com/nerrad567/tabi-core/migrations"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e := &Entry{Action: ActionAdd, BlindID: "blind_004", RequestID: "req-1",
		Details: map[string]any{"room": "study"}}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("Create() left ID=%q CreatedAt=%v", e.ID, e.CreatedAt)
	}

	got, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 1 || len(got.Entries) != 1 {
		t.Fatalf("List() total=%d entries=%d, want 1/1", got.Total, len(got.Entries))
	}
	entry := got.Entries[0]
	if entry.ID != e.ID || entry.RequestID != "req-1" || entry.Details["room"] != "study" {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", entry.CreatedAt, e.CreatedAt)
	}
}

func TestCreate_Rejects(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name  string
		entry Entry
		want  error
	}{
		{"unknown action", Entry{Action: "rename", BlindID: "blind_001"}, ErrUnknownAction},
		{"no blind", Entry{Action: ActionRemove}, ErrMissingBlindID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(context.Background(), &tt.entry)
			if !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []Entry{
		{Action: ActionAdd, BlindID: "blind_004", CreatedAt: t0},
		{Action: ActionDisable, BlindID: "blind_004", CreatedAt: t0.Add(time.Minute)},
		{Action: ActionDisable, BlindID: "blind_001", CreatedAt: t0.Add(2 * time.Minute)},
		// Sub-second timestamp must still sort after the whole-second one above.
		{Action: ActionEnable, BlindID: "blind_001", CreatedAt: t0.Add(2*time.Minute + 500*time.Millisecond)},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
		wantLen   int
	}{
		{"all newest first", Filter{}, 4, ActionEnable, 4},
		{"by action", Filter{Action: ActionDisable}, 2, ActionDisable, 2},
		{"by blind", Filter{BlindID: "blind_004"}, 2, ActionDisable, 2},
		{"both", Filter{Action: ActionAdd, BlindID: "blind_004"}, 1, ActionAdd, 1},
		{"paged", Filter{Limit: 2, Offset: 2}, 4, ActionDisable, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.wantTotal || len(got.Entries) != tt.wantLen {
				t.Fatalf("List() total=%d len=%d, want %d/%d", got.Total, len(got.Entries), tt.wantTotal, tt.wantLen)
			}
			if got.Entries[0].Action != tt.wantFirst {
				t.Errorf("first action = %q, want %q", got.Entries[0].Action, tt.wantFirst)
			}
		})
	}
}

func TestList_ClampsAndValidates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.List(ctx, Filter{Limit: 10_000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Limit != MaxListLimit || got.Offset != 0 {
		t.Errorf("List() limit=%d offset=%d, want %d/0", got.Limit, got.Offset, MaxListLimit)
	}
	if got.Entries == nil {
		t.Error("List() Entries = nil, want empty slice")
	}

	if _, err := repo.List(ctx, Filter{Action: "bogus"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("List(bogus) error = %v, want ErrUnknownAction", err)
	}
}
