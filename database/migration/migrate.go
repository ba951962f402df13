// Package migration applies versioned SQL migrations with golang-migrate
// from an fs.FS, typically an embed.FS owned by the package whose schema
// the migrations describe.
//
//	//go:embed migrations/*.sql
//	var migrationsFS embed.FS
//
//	err := migration.MigrateUp(gormDB, migrationsFS, "migrations", migration.Postgres("outbox_schema_migrations"))
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// DriverFunc creates a migrate database driver from sql.DB.
type DriverFunc func(*sql.DB) (database.Driver, error)

// Postgres returns a DriverFunc for PostgreSQL that records applied versions
// in the given table. An empty table uses the golang-migrate default.
func Postgres(migrationsTable string) DriverFunc {
	return func(db *sql.DB) (database.Driver, error) {
		return migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	}
}

// MigrateUp runs all pending migrations. Files follow VERSION_name.up.sql and
// VERSION_name.down.sql. migrate.ErrNoChange is not an error.
func MigrateUp(gormDB *gorm.DB, fsys fs.FS, path string, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, fsys, path, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty flag.
func MigrateVersion(gormDB *gorm.DB, fsys fs.FS, path string, driverFunc DriverFunc) (version uint, dirty bool, err error) {
	m, err := newMigrator(gormDB, fsys, path, driverFunc)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}

// newMigrator builds a migrator over the shared sql.DB. Callers must not
// Close it, which would close the pool.
func newMigrator(gormDB *gorm.DB, fsys fs.FS, path string, driverFunc DriverFunc) (*migrate.Migrate, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	source, err := iofs.New(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "database", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
