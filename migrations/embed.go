// Package migrations embeds the SQL schema for the identity store.
package migrations

import "embed"

// FS holds every *.up.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
