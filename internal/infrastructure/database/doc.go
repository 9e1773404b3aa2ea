// Package database provides the SQLite connection used for dispatch history.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Forward and rollback migrations read from an fs.FS
//   - Health checks for the /health endpoint
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are applied in version order, each in
// its own transaction.
package database
