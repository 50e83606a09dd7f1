// Package postgres is the authoritative pgx-backed storage for players,
// ledger entries and the placement audit log.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	queries
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.Storage = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	poolConfig.MinConns = int32(cfg.MinConnections)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		queries: queries{q: pool},
		pool:    pool,
		logger:  logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return domain.NewStorageError("ping", err)
	}
	return nil
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			ign VARCHAR(16) NOT NULL UNIQUE,
			display_name VARCHAR(64) NOT NULL DEFAULT '',
			region VARCHAR(8) NOT NULL DEFAULT '',
			device VARCHAR(32) NOT NULL DEFAULT '',
			global_points BIGINT NOT NULL DEFAULT 0 CHECK (global_points >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			player_id VARCHAR(64) NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			gamemode VARCHAR(16) NOT NULL,
			tier VARCHAR(16) NOT NULL,
			points BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (player_id, gamemode)
		)`,
		`CREATE TABLE IF NOT EXISTS placement_events (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			ign VARCHAR(16) NOT NULL,
			gamemode VARCHAR(16) NOT NULL,
			tier VARCHAR(16) NOT NULL,
			global_points BIGINT NOT NULL,
			global_rank BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_players_points ON players(global_points DESC, id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_gamemode ON ledger_entries(gamemode, points DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_placement_events_player ON placement_events(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// WithinTx runs fn in one transaction holding an advisory lock on playerID,
// so concurrent writers for the same player serialize across instances.
func (r *Repository) WithinTx(ctx context.Context, playerID string, fn func(ctx context.Context, tx storage.Store) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.NewStorageError("begin", err)
	}
	defer func() {
		// no-op after commit
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, playerID); err != nil {
		return domain.NewStorageError("lock player", err)
	}
	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.NewStorageError("commit", err)
	}
	return nil
}

// RecordEvent appends a committed placement to the audit log
func (r *Repository) RecordEvent(ctx context.Context, event domain.PlacementCommitted) error {
	query := `
		INSERT INTO placement_events (player_id, ign, gamemode, tier, global_points, global_rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		event.PlayerID,
		event.IGN,
		string(event.Gamemode),
		string(event.NewTier),
		event.NewGlobalPoints,
		event.NewRank,
		event.CommittedAt,
	)
	if err != nil {
		return domain.NewStorageError("record event", err)
	}
	return nil
}

// PublishPlacementCommitted records the event so the repository can
// subscribe to the engine's event fan-out
func (r *Repository) PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error {
	return r.RecordEvent(ctx, event)
}

// RecentEvents returns the latest audit rows for a player, newest first
func (r *Repository) RecentEvents(ctx context.Context, playerID string, limit int) ([]domain.PlacementCommitted, error) {
	query := `
		SELECT player_id, ign, gamemode, tier, global_points, global_rank, created_at
		FROM placement_events
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, domain.NewStorageError("recent events", err)
	}
	defer rows.Close()

	var out []domain.PlacementCommitted
	for rows.Next() {
		var e domain.PlacementCommitted
		if err := rows.Scan(&e.PlayerID, &e.IGN, &e.Gamemode, &e.NewTier, &e.NewGlobalPoints, &e.NewRank, &e.CommittedAt); err != nil {
			return nil, domain.NewStorageError("scan event", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("recent events", err)
	}
	return out, nil
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
