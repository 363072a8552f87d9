// Package migrations embeds the location store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
