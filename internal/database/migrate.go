package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

const (
	postgresMigrations = "migrations/postgres"
	sqliteMigrations   = "migrations/sqlite"
)

// gooseUpContext is swapped in tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// MigratePostgres applies the embedded postgres migrations over a short-lived
// database/sql handle; the pool used at runtime is not involved.
func MigratePostgres(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	return runMigrations(ctx, db, "pgx", postgresMigrations)
}

func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, "sqlite3", sqliteMigrations)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect string, dir string) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := gooseUpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	slog.Info("database schema ensured", "dialect", dialect, "version", version)
	return nil
}
