// Package migrations holds the SQL schema, applied in filename order
package migrations

import "embed"

// FS contains every *.sql migration
//
//go:embed *.sql
var FS embed.FS
