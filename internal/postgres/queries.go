package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage"
)

// queries implements storage.Store over a pool or a transaction
type queries struct {
	q querier
}

var _ storage.Store = (*queries)(nil)

const playerColumns = `id, ign, display_name, region, device, global_points, created_at, updated_at`

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(
		&p.ID,
		&p.IGN,
		&p.DisplayName,
		&p.Region,
		&p.Device,
		&p.GlobalPoints,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping checks the connection behind q
func (s *queries) Ping(ctx context.Context) error {
	var one int
	if err := s.q.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return domain.NewStorageError("ping", err)
	}
	return nil
}

// GetPlayer retrieves a player by id
func (s *queries) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	p, err := scanPlayer(s.q.QueryRow(ctx, query, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, domain.NewStorageError("get player", err)
	}
	return p, nil
}

// GetPlayerByIGN retrieves a player by exact, case-sensitive ign
func (s *queries) GetPlayerByIGN(ctx context.Context, ign string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE ign = $1`
	p, err := scanPlayer(s.q.QueryRow(ctx, query, ign))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, domain.NewStorageError("get player by ign", err)
	}
	return p, nil
}

// CreatePlayer inserts a new player
func (s *queries) CreatePlayer(ctx context.Context, player domain.Player) error {
	query := `
		INSERT INTO players (` + playerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.q.Exec(ctx, query,
		player.ID,
		player.IGN,
		player.DisplayName,
		string(player.Region),
		player.Device,
		player.GlobalPoints,
		player.CreatedAt,
		player.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrPlayerExists
		}
		return domain.NewStorageError("create player", err)
	}
	return nil
}

// UpsertPlayer inserts or updates a player's profile. The global total of
// an existing player is left alone.
func (s *queries) UpsertPlayer(ctx context.Context, player domain.Player) error {
	query := `
		INSERT INTO players (` + playerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			ign = EXCLUDED.ign,
			display_name = EXCLUDED.display_name,
			region = EXCLUDED.region,
			device = EXCLUDED.device,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.q.Exec(ctx, query,
		player.ID,
		player.IGN,
		player.DisplayName,
		string(player.Region),
		player.Device,
		player.GlobalPoints,
		player.CreatedAt,
		player.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrPlayerExists
		}
		return domain.NewStorageError("upsert player", err)
	}
	return nil
}

// DeletePlayer removes a player; ledger entries cascade
func (s *queries) DeletePlayer(ctx context.Context, playerID string) error {
	result, err := s.q.Exec(ctx, `DELETE FROM players WHERE id = $1`, playerID)
	if err != nil {
		return domain.NewStorageError("delete player", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// ListPlayers returns every player ordered by id
func (s *queries) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	rows, err := s.q.Query(ctx, `SELECT `+playerColumns+` FROM players ORDER BY id`)
	if err != nil {
		return nil, domain.NewStorageError("list players", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan player", err)
		}
		players = append(players, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list players", err)
	}
	return players, nil
}

func (s *queries) ledgerEntries(ctx context.Context, op, query string, arg any) ([]domain.LedgerEntry, error) {
	rows, err := s.q.Query(ctx, query, arg)
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.PlayerID, &e.Gamemode, &e.Tier, &e.Points, &e.UpdatedAt); err != nil {
			return nil, domain.NewStorageError(fmt.Sprintf("scan %s", op), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return entries, nil
}

// LedgerEntriesForPlayer returns one entry per gamemode the player is placed in
func (s *queries) LedgerEntriesForPlayer(ctx context.Context, playerID string) ([]domain.LedgerEntry, error) {
	query := `
		SELECT player_id, gamemode, tier, points, updated_at
		FROM ledger_entries
		WHERE player_id = $1
		ORDER BY gamemode
	`
	return s.ledgerEntries(ctx, "ledger entries for player", query, playerID)
}

// LedgerEntriesForGamemode returns every placement in one gamemode
func (s *queries) LedgerEntriesForGamemode(ctx context.Context, gamemode domain.Gamemode) ([]domain.LedgerEntry, error) {
	query := `
		SELECT player_id, gamemode, tier, points, updated_at
		FROM ledger_entries
		WHERE gamemode = $1
		ORDER BY player_id
	`
	return s.ledgerEntries(ctx, "ledger entries for gamemode", query, string(gamemode))
}

// UpsertLedgerEntry replaces the entry for (player, gamemode)
func (s *queries) UpsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (player_id, gamemode, tier, points, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id, gamemode)
		DO UPDATE SET tier = $3, points = $4, updated_at = $5
	`
	_, err := s.q.Exec(ctx, query,
		entry.PlayerID,
		string(entry.Gamemode),
		string(entry.Tier),
		entry.Points,
		entry.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return domain.ErrPlayerNotFound
		}
		return domain.NewStorageError("upsert ledger entry", err)
	}
	return nil
}

// DeleteLedgerEntry removes the entry for (player, gamemode) if present
func (s *queries) DeleteLedgerEntry(ctx context.Context, playerID string, gamemode domain.Gamemode) (bool, error) {
	query := `DELETE FROM ledger_entries WHERE player_id = $1 AND gamemode = $2`
	result, err := s.q.Exec(ctx, query, playerID, string(gamemode))
	if err != nil {
		return false, domain.NewStorageError("delete ledger entry", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetGlobalPoints writes the denormalized total
func (s *queries) SetGlobalPoints(ctx context.Context, playerID string, points int64) error {
	query := `UPDATE players SET global_points = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	result, err := s.q.Exec(ctx, query, playerID, points)
	if err != nil {
		return domain.NewStorageError("set global points", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}
