// Package migrations embeds the Postgres schema for the sync ledger.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
