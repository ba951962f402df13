package database

import (
	"context"
	"fmt"
	"io/fs"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/resilience-core/component"
	"github.com/kbukum/resilience-core/database/migration"
	"github.com/kbukum/resilience-core/logger"
)

// DriverFunc builds a GORM dialector from a DSN.
type DriverFunc func(dsn string) gorm.Dialector

// Migrations is a set of versioned SQL migrations applied on Start when the
// driver is postgres.
type Migrations struct {
	FS    fs.FS
	Path  string
	Table string
}

// Component wraps DB and implements component.Component.
type Component struct {
	db         *DB
	cfg        Config
	log        *logger.Logger
	driver     DriverFunc
	models     []interface{}
	migrations []Migrations
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a database component for the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Component{
		cfg: cfg,
		log: log.WithComponent("database"),
	}
}

// WithDriver overrides the dialector chosen from Config.Driver.
func (c *Component) WithDriver(fn DriverFunc) *Component {
	c.driver = fn
	return c
}

// WithAutoMigrate registers models for GORM auto-migration on Start.
func (c *Component) WithAutoMigrate(models ...interface{}) *Component {
	c.models = append(c.models, models...)
	return c
}

// WithMigrations registers versioned SQL migrations applied on Start.
func (c *Component) WithMigrations(m Migrations) *Component {
	c.migrations = append(c.migrations, m)
	return c
}

// DB returns the underlying *DB, or nil if not started.
func (c *Component) DB() *DB {
	return c.db
}

// Name returns the component name.
func (c *Component) Name() string { return "database" }

// Start connects and brings the schema up to date.
func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("Database disabled, skipping")
		return nil
	}

	db, err := NewWithContext(ctx, c.dialector(), c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("database start: %w", err)
	}
	c.db = db

	if c.cfg.Driver == DriverPostgres && len(c.migrations) > 0 {
		for _, m := range c.migrations {
			if err := migration.MigrateUp(db.GormDB, m.FS, m.Path, migration.Postgres(m.Table)); err != nil {
				return fmt.Errorf("database migrate %s: %w", m.Table, err)
			}
			version, dirty, err := migration.MigrateVersion(db.GormDB, m.FS, m.Path, migration.Postgres(m.Table))
			if err != nil {
				return fmt.Errorf("database migration version %s: %w", m.Table, err)
			}
			c.log.Info("Migrations applied", logger.Fields("table", m.Table, "version", version, "dirty", dirty))
		}
		return nil
	}

	if c.cfg.AutoMigrate && len(c.models) > 0 {
		if err := db.AutoMigrate(c.models...); err != nil {
			return fmt.Errorf("database auto-migrate: %w", err)
		}
	}
	return nil
}

func (c *Component) dialector() gorm.Dialector {
	if c.driver != nil {
		return c.driver(c.cfg.DSN)
	}
	if c.cfg.Driver == DriverSQLite {
		return sqlite.Open(c.cfg.DSN)
	}
	return postgres.Open(c.cfg.DSN)
}

// Stop closes the connection pool.
func (c *Component) Stop(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Health pings the database.
func (c *Component) Health(ctx context.Context) component.Health {
	if !c.cfg.Enabled {
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "disabled"}
	}
	if c.db == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "database not initialized"}
	}
	if err := c.db.PingContext(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}
