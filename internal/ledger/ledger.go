// Package ledger owns the single current placement per (player, gamemode).
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage"
	"github.com/tierboard/internal/tier"
)

// Ledger validates placements and writes them through a storage.Store.
// Every method accepts an explicit store so callers can pass a transaction;
// a nil store falls back to the ledger's own.
type Ledger struct {
	store   storage.Store
	catalog *tier.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a ledger over store using catalog for point values
func New(store storage.Store, catalog *tier.Catalog, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

func (l *Ledger) db(s storage.Store) storage.Store {
	if s == nil {
		return l.store
	}
	return s
}

// Validate parses gamemode and tier code without touching storage
func (l *Ledger) Validate(gamemode, tierCode string) (domain.Gamemode, domain.TierCode, error) {
	gm, err := domain.ParseGamemode(gamemode)
	if err != nil {
		return "", "", err
	}
	code, err := l.catalog.Parse(tierCode)
	if err != nil {
		return "", "", err
	}
	return gm, code, nil
}

// UpsertPlacement replaces any existing entry for (playerID, gamemode). The
// point value is taken from the catalog now and never recomputed later.
// The caller must recompute the player's total before serving ranks.
func (l *Ledger) UpsertPlacement(ctx context.Context, db storage.Store, playerID, gamemode, tierCode string) (domain.LedgerEntry, error) {
	gm, code, err := l.Validate(gamemode, tierCode)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	points, err := l.catalog.PointsFor(code)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	entry := domain.LedgerEntry{
		PlayerID:  playerID,
		Gamemode:  gm,
		Tier:      code,
		Points:    points,
		UpdatedAt: l.now(),
	}
	if err := l.db(db).UpsertLedgerEntry(ctx, entry); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("upserting ledger entry: %w", err)
	}

	l.logger.Debug("placement upserted",
		"player_id", playerID,
		"gamemode", gm,
		"tier", code,
		"points", points,
	)
	return entry, nil
}

// RemovePlacement deletes the entry for (playerID, gamemode). A missing
// entry is not an error; removed reports whether anything was deleted.
func (l *Ledger) RemovePlacement(ctx context.Context, db storage.Store, playerID, gamemode string) (removed bool, err error) {
	gm, err := domain.ParseGamemode(gamemode)
	if err != nil {
		return false, err
	}
	removed, err = l.db(db).DeleteLedgerEntry(ctx, playerID, gm)
	if err != nil {
		return false, fmt.Errorf("deleting ledger entry: %w", err)
	}
	if removed {
		l.logger.Debug("placement removed", "player_id", playerID, "gamemode", gm)
	}
	return removed, nil
}

// EntriesForPlayer returns all current placements of a player
func (l *Ledger) EntriesForPlayer(ctx context.Context, db storage.Store, playerID string) ([]domain.LedgerEntry, error) {
	entries, err := l.db(db).LedgerEntriesForPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing player entries: %w", err)
	}
	return entries, nil
}

// EntriesForGamemode returns all current placements in one gamemode
func (l *Ledger) EntriesForGamemode(ctx context.Context, db storage.Store, gamemode string) ([]domain.LedgerEntry, error) {
	gm, err := domain.ParseGamemode(gamemode)
	if err != nil {
		return nil, err
	}
	entries, err := l.db(db).LedgerEntriesForGamemode(ctx, gm)
	if err != nil {
		return nil, fmt.Errorf("listing gamemode entries: %w", err)
	}
	return entries, nil
}
