// Package repo implements the persistence layer of the warehouse, backed by
// GORM. This file contains database bootstrapping helpers for the supported
// drivers (pure Go SQLite, PostgreSQL, MySQL) and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// Supported values of DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Option customizes Open.
type Option func(*options)

type options struct {
	tracing bool
	config  *gorm.Config
}

// WithTracing installs the OpenTelemetry GORM plugin so every query becomes a
// span under the caller's context.
func WithTracing() Option { return func(o *options) { o.tracing = true } }

// WithConfig replaces the default GORM configuration.
func WithConfig(cfg *gorm.Config) Option { return func(o *options) { o.config = cfg } }

// Open connects to the warehouse database for driver. SQLite DSNs are file
// paths and get the same PRAGMAs as OpenSQLite.
func Open(driver, dsn string, opts ...Option) (*gorm.DB, error) {
	o := options{config: &gorm.Config{}}
	for _, fn := range opts {
		fn(&o)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		db, err = openSQLite(dsn, o.config)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), o.config)
	case DriverMySQL:
		db, err = gorm.Open(mysql.Open(dsn), o.config)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if o.tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite warehouse file and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(DriverSQLite, path)
}

func openSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")
	return db, nil
}

// Models lists the tables of the warehouse schema in dependency order:
// dimensions before the facts that reference them.
func Models() []any {
	return []any{
		&domain.CleanEvent{},
		&domain.DimUser{},
		&domain.DimProduct{},
		&domain.DimCategory{},
		&domain.DimSession{},
		&domain.DimDate{},
		&domain.FactSale{},
		&domain.ETLRun{},
	}
}

// AutoMigrate creates or updates the star schema and the run ledger.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
