// Package migrations embeds the goose SQL migrations of the token and
// device tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
