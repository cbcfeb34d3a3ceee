package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vonshlovens/spokesync/internal/config"
	"github.com/vonshlovens/spokesync/migrations"
)

// DB wraps the database connection pool
type DB struct {
	Pool   *pgxpool.Pool
	config *config.DatabaseConfig
	Schema string
}

// New creates a new database connection pool
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	if poolConfig.MaxConns < 2 {
		poolConfig.MaxConns = 2
	}
	poolConfig.MinConns = 2
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

	slog.Info("connected to database",
		"host", cfg.Host,
		"database", cfg.Database,
		"schema", cfg.Schema)

	return &DB{
		Pool:   pool,
		config: cfg,
		Schema: cfg.Schema,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		slog.Info("database connection closed")
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

	_, err := db.Pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", db.Schema))
	if err != nil {
		return fmt.Errorf("failed to create schema %s: %w", db.Schema, err)
	}

	slog.Info("schema ready", "schema", db.Schema)
	return nil
}

// openGoose prepares goose for the embedded migrations and opens a database/sql handle
func (db *DB) openGoose() (*sql.DB, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}

	stdDB, err := sql.Open("pgx", db.config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open stdlib connection: %w", err)
	}

	// version table lives next to the data so several sites can share a database
	if db.Schema != "" {
		goose.SetTableName(db.Schema + ".goose_db_version")
	}
	return stdDB, nil
}

// RunMigrations executes all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	stdDB, err := db.openGoose()
	if err != nil {
		return err
	}
	defer stdDB.Close()

	if err := goose.UpContext(ctx, stdDB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully", "schema", db.Schema)
	return nil
}

// MigrationStatus prints the current migration status
func (db *DB) MigrationStatus(ctx context.Context) error {
	stdDB, err := db.openGoose()
	if err != nil {
		return err
	}
	defer stdDB.Close()

	return goose.StatusContext(ctx, stdDB, ".")
}

// GetStatus returns counts for the status command
func (db *DB) GetStatus(ctx context.Context) (*SiteStatus, error) {
	status := &SiteStatus{
		Connected: true,
	}

	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM media),
			(SELECT COUNT(*) FROM connections WHERE role = 'outbound'),
			(SELECT COUNT(*) FROM connections WHERE role = 'inbound')
	`).Scan(&status.Documents, &status.Media, &status.Destinations, &status.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := db.Pool.Query(ctx, "SELECT status, COUNT(*) FROM deliveries GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	status.Deliveries = make(map[string]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		status.Deliveries[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last *time.Time
	if err := db.Pool.QueryRow(ctx, "SELECT MAX(created_at) FROM activity_log").Scan(&last); err != nil {
		slog.Warn("failed to get last activity time", "error", err)
	}
	status.LastActivity = last

	return status, nil
}
