package migrations

import "embed"

// FS contains embedded SQLite migrations for schedule storage.
//
//go:embed *.sql
var FS embed.FS
