package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"courtbook/internal/domain"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries holds every statement of the store, bound to either the pool or a transaction.
type queries struct {
	db dbtx
}

type DB struct {
	*sql.DB
	*queries
	path   string
	logger *zerolog.Logger
}

var (
	_ domain.Store = (*DB)(nil)
	_ domain.Tx    = (*queries)(nil)
)

// NewDB opens the SQLite file, applies embedded migrations and pins the pool
// to a single connection so that every transaction is serialized.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", ensureDSNOptions(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	logger.Info().Str("path", path).Msg("Database initialized")

	return &DB{DB: sqlDB, queries: &queries{db: sqlDB}, path: path, logger: logger}, nil
}

// ensureDSNOptions enables foreign keys and a busy timeout unless the DSN sets them.
func ensureDSNOptions(dsn string) string {
	opts := []string{}
	if !strings.Contains(dsn, "_fk=") {
		opts = append(opts, "_fk=1")
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		opts = append(opts, "_busy_timeout=5000")
	}
	if len(opts) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(opts, "&")
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("could not create migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// RunInTx runs fn in one transaction. fn must only use the Tx it is given;
// the pool has a single connection and is held by the transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
