package migrations

import "embed"

// FS holds the SQL migrations for the rates table.
//
//go:embed *.sql
var FS embed.FS
