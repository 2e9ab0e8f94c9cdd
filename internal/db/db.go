package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vonshlovens/nebula-notes/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// DB wraps the database connection pool
type DB struct {
	Pool    *pgxpool.Pool
	connStr string
	Schema  string
}

// New creates a new database connection pool
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	db, err := Connect(ctx, cfg.ConnectionString(), cfg.Schema)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database",
		"host", cfg.Host,
		"database", cfg.Database,
		"schema", cfg.Schema)
	return db, nil
}

// Connect opens a pool for a PostgreSQL URL
func Connect(ctx context.Context, connStr, schema string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		Pool:    pool,
		connStr: connStr,
		Schema:  schema,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		slog.Debug("database connection closed")
	}
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// EnsureSchema creates the schema if it doesn't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db.Schema == "" {
		return nil
	}

	// Schema names are sanitized by config.SanitizeIdentifier
	_, err := db.Pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", db.Schema))
	if err != nil {
		return fmt.Errorf("failed to create schema %s: %w", db.Schema, err)
	}

	slog.Info("schema ready", "schema", db.Schema)
	return nil
}

// RunMigrations applies the embedded migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	stdDB, err := db.openGoose()
	if err != nil {
		return err
	}
	defer stdDB.Close()

	if err := goose.UpContext(ctx, stdDB, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully", "schema", db.Schema)
	return nil
}

// MigrationStatus logs the state of each embedded migration
func (db *DB) MigrationStatus(ctx context.Context) error {
	stdDB, err := db.openGoose()
	if err != nil {
		return err
	}
	defer stdDB.Close()

	return goose.StatusContext(ctx, stdDB, migrationsDir)
}

func (db *DB) openGoose() (*sql.DB, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}

	// Keep the version table next to the notes table
	if db.Schema != "" {
		goose.SetTableName(db.Schema + ".goose_db_version")
	}

	stdDB, err := sql.Open("pgx", db.connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open stdlib connection: %w", err)
	}
	return stdDB, nil
}

// GetStatus reports note counts for the status command
func (db *DB) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		Connected: true,
		Schema:    db.Schema,
	}

	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*), MAX(updated_at) FROM notes").
		Scan(&status.TotalNotes, &status.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}

	return status, nil
}
