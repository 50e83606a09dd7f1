// Package points keeps Player.GlobalPoints equal to the sum of the player's
// current ledger entries.
package points

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage"
)

// Aggregator recomputes denormalized global point totals
type Aggregator struct {
	store  storage.Store
	logger *slog.Logger
}

// NewAggregator creates an aggregator writing through store
func NewAggregator(store storage.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Sum adds the points of ranked entries. Not Ranked and Retired entries
// are stored but never counted.
func Sum(entries []domain.LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		if !e.Tier.Ranked() {
			continue
		}
		total += e.Points
	}
	return total
}

// Recompute sums the player's current ledger entries and writes the total
// to the player. It must run in the same unit of work as the ledger
// mutation that triggered it.
func (a *Aggregator) Recompute(ctx context.Context, db storage.Store, playerID string) (int64, error) {
	if db == nil {
		db = a.store
	}
	entries, err := db.LedgerEntriesForPlayer(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("loading ledger entries: %w", err)
	}

	total := Sum(entries)
	if err := db.SetGlobalPoints(ctx, playerID, total); err != nil {
		return 0, fmt.Errorf("setting global points: %w", err)
	}

	a.logger.Debug("global points recomputed", "player_id", playerID, "points", total)
	return total, nil
}
