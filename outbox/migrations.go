package outbox

import (
	"embed"

	"github.com/kbukum/resilience-core/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the versioned PostgreSQL schema for the outbox tables.
func Migrations() database.Migrations {
	return database.Migrations{
		FS:    migrationsFS,
		Path:  "migrations",
		Table: "outbox_schema_migrations",
	}
}
