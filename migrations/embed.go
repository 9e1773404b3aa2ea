// Package migrations embeds the SQL schema for the history and audit tables.
package migrations

import "embed"

// FS holds every migration file, at the root of the filesystem.
//
//go:embed *.sql
var FS embed.FS
