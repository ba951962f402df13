// Package database provides a GORM-based database component with connection
// retry, pooling, health checks, transactions and migrations.
//
// The driver is selected by Config.Driver: postgres in production, sqlite for
// tests and local runs. Versioned SQL migrations (see the migration
// subpackage) run against postgres; sqlite falls back to GORM auto-migration
// of the registered models.
//
//	comp := database.NewComponent(cfg.Database, log).
//	    WithAutoMigrate(outbox.Models()...).
//	    WithMigrations(outbox.Migrations())
package database
