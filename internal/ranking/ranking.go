// Package ranking orders players by points, globally and per gamemode.
//
// Ties in points are broken by ascending player id, so a snapshot taken
// twice over the same data is identical.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/metrics"
	"github.com/tierboard/internal/storage"
)

// Board names a ranking: the global board or one gamemode
type Board string

// Global is the board ordered by global points
const Global Board = "global"

// GamemodeBoard returns the board for one gamemode
func GamemodeBoard(gm domain.Gamemode) Board {
	return Board("gamemode:" + string(gm))
}

// Index is an optional precomputed rank index. When configured it must
// apply the same ordering as Sort.
type Index interface {
	Range(ctx context.Context, board Board, start, stop int64) ([]domain.RankEntry, error)
	RankOf(ctx context.Context, board Board, playerID string) (int64, error)
	Count(ctx context.Context, board Board) (int64, error)
}

// Calculator produces rank snapshots from storage or an index
type Calculator struct {
	store   storage.Store
	index   Index
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCalculator creates a calculator that sorts storage on every read
func NewCalculator(store storage.Store, m *metrics.Metrics, logger *slog.Logger) *Calculator {
	return &Calculator{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// SetIndex makes reads go through idx instead of a full sort
func (c *Calculator) SetIndex(idx Index) {
	c.index = idx
}

// less orders by points descending, then player id ascending
func less(aPoints int64, aID string, bPoints int64, bID string) bool {
	if aPoints != bPoints {
		return aPoints > bPoints
	}
	return aID < bID
}

// Sort orders entries in place and assigns 1-based ranks
func Sort(entries []domain.RankEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i].Points, entries[i].PlayerID, entries[j].Points, entries[j].PlayerID)
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
}

// RankPlayers builds the global snapshot. Players without placements are
// included with their (zero) total.
func RankPlayers(players []domain.Player) []domain.RankEntry {
	entries := make([]domain.RankEntry, len(players))
	for i, p := range players {
		entries[i] = domain.RankEntry{
			PlayerID: p.ID,
			IGN:      p.IGN,
			Points:   p.GlobalPoints,
		}
	}
	Sort(entries)
	return entries
}

// RankLedger builds a per-gamemode snapshot. Only ranked tiers qualify;
// Not Ranked and Retired entries are left out.
func RankLedger(ledger []domain.LedgerEntry, igns map[string]string) []domain.RankEntry {
	entries := make([]domain.RankEntry, 0, len(ledger))
	for _, e := range ledger {
		if !e.Tier.Ranked() {
			continue
		}
		entries = append(entries, domain.RankEntry{
			PlayerID: e.PlayerID,
			IGN:      igns[e.PlayerID],
			Points:   e.Points,
		})
	}
	Sort(entries)
	return entries
}

// RankAll returns the global ordering of every player
func (c *Calculator) RankAll(ctx context.Context) ([]domain.RankEntry, error) {
	return c.Snapshot(ctx, Global)
}

// RankByGamemode returns the ordering of players placed in gamemode
func (c *Calculator) RankByGamemode(ctx context.Context, gamemode string) ([]domain.RankEntry, error) {
	gm, err := domain.ParseGamemode(gamemode)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(ctx, GamemodeBoard(gm))
}

// Snapshot returns the full ordering of board
func (c *Calculator) Snapshot(ctx context.Context, board Board) ([]domain.RankEntry, error) {
	defer c.metrics.ObserveRank(string(board), time.Now())

	if c.index != nil {
		entries, err := c.index.Range(ctx, board, 0, -1)
		if err != nil {
			return nil, fmt.Errorf("reading rank index: %w", err)
		}
		return entries, nil
	}
	return c.sorted(ctx, board)
}

// Page returns limit entries of board starting at offset (0-based)
func (c *Calculator) Page(ctx context.Context, board Board, offset, limit int) ([]domain.RankEntry, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []domain.RankEntry{}, 0, nil
	}
	if c.index != nil {
		total, err := c.index.Count(ctx, board)
		if err != nil {
			return nil, 0, fmt.Errorf("counting rank index: %w", err)
		}
		entries, err := c.index.Range(ctx, board, int64(offset), int64(offset+limit-1))
		if err != nil {
			return nil, 0, fmt.Errorf("reading rank index: %w", err)
		}
		return entries, total, nil
	}

	all, err := c.Snapshot(ctx, board)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.RankEntry{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// RankOf returns the 1-based rank of playerID on board. A player missing
// from the index is looked up in storage, since index writes after a
// commit may have failed.
func (c *Calculator) RankOf(ctx context.Context, board Board, playerID string) (int64, error) {
	if c.index != nil {
		rank, err := c.index.RankOf(ctx, board, playerID)
		if !errors.Is(err, domain.ErrPlayerNotFound) {
			return rank, err
		}
		c.logger.Warn("player missing from rank index, ranking from storage",
			"board", board,
			"player_id", playerID,
		)
	}
	all, err := c.sorted(ctx, board)
	if err != nil {
		return 0, err
	}
	for _, e := range all {
		if e.PlayerID == playerID {
			return e.Rank, nil
		}
	}
	return 0, domain.ErrPlayerNotFound
}

func (c *Calculator) sorted(ctx context.Context, board Board) ([]domain.RankEntry, error) {
	players, err := c.store.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	if board == Global {
		return RankPlayers(players), nil
	}

	gm, ok := board.Gamemode()
	if !ok {
		return nil, fmt.Errorf("board %q: %w", board, domain.ErrUnknownGamemode)
	}
	ledger, err := c.store.LedgerEntriesForGamemode(ctx, gm)
	if err != nil {
		return nil, fmt.Errorf("listing gamemode entries: %w", err)
	}
	igns := make(map[string]string, len(players))
	for _, p := range players {
		igns[p.ID] = p.IGN
	}
	return RankLedger(ledger, igns), nil
}

// Gamemode returns the gamemode of a per-gamemode board
func (b Board) Gamemode() (domain.Gamemode, bool) {
	const prefix = "gamemode:"
	if len(b) <= len(prefix) || string(b[:len(prefix)]) != prefix {
		return "", false
	}
	gm := domain.Gamemode(b[len(prefix):])
	return gm, gm.Valid()
}
