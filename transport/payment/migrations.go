package payment

import (
	"embed"

	"github.com/kbukum/resilience-core/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the versioned PostgreSQL schema for payment intents.
func Migrations() database.Migrations {
	return database.Migrations{
		FS:    migrationsFS,
		Path:  "migrations",
		Table: "payment_schema_migrations",
	}
}
