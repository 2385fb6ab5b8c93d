// Package migrations embeds the goose migrations for the server schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

// SchemaVersion is the goose version the running code expects.
const SchemaVersion int64 = 2
