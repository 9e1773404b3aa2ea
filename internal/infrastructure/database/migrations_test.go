package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/tabi-core/migrations"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_create_a.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"20260101_000000_create_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"20260102_000000_create_b.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"README.md":                         {Data: []byte("ignored")},
		"orphan.down.sql":                   {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "a") || !tableExists(t, db, "b") {
		t.Fatal("migrations did not create tables a and b")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testMigrations()

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// b has no down file.
	if err := db.MigrateDown(ctx, src); err == nil {
		t.Error("MigrateDown() succeeded without down SQL")
	}

	delete(src, "20260102_000000_create_b.up.sql")
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = '20260102_000000'"); err != nil {
		t.Fatalf("deleting record: %v", err)
	}
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "a") {
		t.Error("table a still exists after MigrateDown")
	}
}

func TestMigrate_FailureKeepsEarlierMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_bad.up.sql":  {Data: []byte("CREATE TABLE nonsense (;")},
	}

	if err := db.Migrate(ctx, src); err == nil {
		t.Fatal("Migrate() succeeded with broken SQL")
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration was rolled back")
	}
	_, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "bad" {
		t.Errorf("pending = %+v, want [bad]", pending)
	}
}

func TestMigrate_EmbeddedSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate(migrations.FS) error = %v", err)
	}
	for _, table := range []string{"dispatch_log", "config_audit"} {
		if !tableExists(t, db, table) {
			t.Errorf("%s table not created", table)
		}
	}

	// Rollback goes one migration at a time, newest first.
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "config_audit") {
		t.Error("config_audit still exists after first rollback")
	}
	if !tableExists(t, db, "dispatch_log") {
		t.Error("dispatch_log dropped by first rollback")
	}
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "dispatch_log") {
		t.Error("dispatch_log still exists after rollback")
	}
}

func TestLoadMigrations_Order(t *testing.T) {
	got, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Version != "20260101_000000" || got[0].DownSQL == "" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Name != "create_b" || got[1].DownSQL != "" {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20260301_120000_dispatch_log.up.sql", "20260301_120000", true, true},
		{"20260301_120000_dispatch_log.down.sql", "20260301_120000", false, true},
		{"readme.txt", "", false, false},
		{"20260301_120000_dispatch_log.sql", "", false, false},
		{"invalid.up.sql", "", false, false},
		{"2026_12_x.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_120000_dispatch_log.up.sql", "dispatch_log"},
		{"20260301_120000_dispatch_log.down.sql", "dispatch_log"},
		{"nounderscores.up.sql", "nounderscores"},
	}
	for _, tt := range tests {
		if got := extractMigrationName(tt.filename); got != tt.want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
