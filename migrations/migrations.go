// Package migrations embeds the SQL schema for the sqlite and postgres
// storage backends.
package migrations

import "embed"

// SqliteMigrations holds migrations/sqlite/*.sql, applied in filename order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds migrations/postgres/*.sql, applied in filename order.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
