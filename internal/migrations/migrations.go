// Package migrations embeds the ordered SQL schema migrations.
package migrations

import "embed"

// Files holds the goose-annotated migrations at the FS root.
//
//go:embed *.sql
var Files embed.FS
