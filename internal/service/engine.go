// Package service wires the tier catalog, score ledger, points aggregator,
// rank calculator and title resolver into one engine with per-player
// atomic writes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/events"
	"github.com/tierboard/internal/ledger"
	"github.com/tierboard/internal/metrics"
	"github.com/tierboard/internal/points"
	"github.com/tierboard/internal/ranking"
	"github.com/tierboard/internal/storage"
	"github.com/tierboard/internal/tier"
	"github.com/tierboard/internal/title"
)

// RankIndex is an incremental rank index kept in step with committed writes
type RankIndex interface {
	ranking.Index
	SetPlayer(ctx context.Context, player domain.Player) error
	SetPlacement(ctx context.Context, entry domain.LedgerEntry) error
	RemovePlacement(ctx context.Context, playerID string, gamemode domain.Gamemode) error
	RemovePlayer(ctx context.Context, playerID string) error
	Rebuild(ctx context.Context, players []domain.Player, entries []domain.LedgerEntry) error
}

// Engine is the scoring and ranking core. Callers are assumed to be
// authorized already.
type Engine struct {
	store     storage.Storage
	catalog   *tier.Catalog
	ledger    *ledger.Ledger
	points    *points.Aggregator
	ranks     *ranking.Calculator
	titles    *title.Resolver
	index     RankIndex
	publisher events.Publisher
	locks     *keyLock
	// indexMu is held shared by committing writers and exclusively by
	// RebuildIndex.
	indexMu sync.RWMutex
	config    *config.LeaderboardConfig
	bulk      *config.BulkConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewEngine creates an engine over store
func NewEngine(
	store storage.Storage,
	cfg *config.LeaderboardConfig,
	bulk *config.BulkConfig,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	if publisher == nil {
		publisher = events.NewFanout(logger)
	}
	defaults := config.DefaultConfig()
	if cfg == nil {
		cfg = &defaults.Leaderboard
	}
	if bulk == nil {
		bulk = &defaults.Bulk
	}
	catalog := tier.Default
	return &Engine{
		store:     store,
		catalog:   catalog,
		ledger:    ledger.New(store, catalog, logger),
		points:    points.NewAggregator(store, logger),
		ranks:     ranking.NewCalculator(store, m, logger),
		titles:    title.Default,
		publisher: publisher,
		locks:     newKeyLock(),
		config:    cfg,
		bulk:      bulk,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// SetRankIndex routes rank reads through idx and keeps it updated on writes
func (e *Engine) SetRankIndex(idx RankIndex) {
	e.index = idx
	e.ranks.SetIndex(idx)
}

// Ping checks the storage collaborator and, when configured, the rank index
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if p, ok := e.index.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return domain.NewStorageError("ping rank index", err)
		}
	}
	return nil
}

// Catalog returns the tier catalog
func (e *Engine) Catalog() *tier.Catalog {
	return e.catalog
}

// TitleFor resolves the combat title for a point total
func (e *Engine) TitleFor(points int64) (domain.Title, error) {
	return e.titles.TitleFor(points)
}

// RegisterPlayer creates a player with zero points
func (e *Engine) RegisterPlayer(ctx context.Context, req domain.NewPlayerRequest) (*domain.Player, error) {
	if err := domain.ValidateIGN(req.IGN); err != nil {
		return nil, err
	}
	region, err := domain.ParseRegion(req.Region)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock("ign:" + req.IGN)
	defer unlock()

	if _, err := e.store.GetPlayerByIGN(ctx, req.IGN); err == nil {
		return nil, domain.ErrPlayerExists
	} else if !errors.Is(err, domain.ErrPlayerNotFound) {
		return nil, fmt.Errorf("looking up player: %w", err)
	}

	player, err := e.createPlayer(ctx, req.IGN, req.DisplayName, region, req.Device)
	if err != nil {
		return nil, err
	}
	e.logger.Info("player registered", "player_id", player.ID, "ign", player.IGN)
	return player, nil
}

func (e *Engine) createPlayer(ctx context.Context, ign, displayName string, region domain.Region, device string) (*domain.Player, error) {
	now := e.now()
	player := domain.Player{
		ID:          e.newID(),
		IGN:         ign,
		DisplayName: displayName,
		Region:      region,
		Device:      device,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	if err := e.store.CreatePlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}
	e.indexPlayer(ctx, player)
	return &player, nil
}

// resolvePlayer finds the player by exact ign or creates it with defaults.
// A non-empty region overwrites the stored one.
func (e *Engine) resolvePlayer(ctx context.Context, ign string, region domain.Region) (*domain.Player, error) {
	unlock := e.locks.Lock("ign:" + ign)
	defer unlock()

	player, err := e.store.GetPlayerByIGN(ctx, ign)
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound):
		player, err = e.createPlayer(ctx, ign, "", region, "")
		if errors.Is(err, domain.ErrPlayerExists) {
			// created concurrently by another instance
			player, err = e.store.GetPlayerByIGN(ctx, ign)
		}
		if err != nil {
			return nil, err
		}
		return player, nil
	case err != nil:
		return nil, fmt.Errorf("looking up player: %w", err)
	}

	if region != domain.RegionNone && player.Region != region {
		if err := e.updateRegion(ctx, player.ID, region); err != nil {
			return nil, err
		}
		player.Region = region
	}
	return player, nil
}

func (e *Engine) updateRegion(ctx context.Context, playerID string, region domain.Region) error {
	unlock := e.locks.Lock(playerID)
	defer unlock()

	return e.store.WithinTx(ctx, playerID, func(ctx context.Context, tx storage.Store) error {
		p, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		p.Region = region
		p.UpdatedAt = e.now()
		if err := tx.UpsertPlayer(ctx, *p); err != nil {
			return fmt.Errorf("updating region: %w", err)
		}
		return nil
	})
}

// GetPlayer returns a player by exact ign
func (e *Engine) GetPlayer(ctx context.Context, ign string) (*domain.Player, error) {
	return e.store.GetPlayerByIGN(ctx, ign)
}

// DeletePlayer removes a player and all of its placements
func (e *Engine) DeletePlayer(ctx context.Context, playerID string) error {
	unlock := e.locks.Lock(playerID)
	defer unlock()
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	if err := e.store.DeletePlayer(ctx, playerID); err != nil {
		return fmt.Errorf("deleting player: %w", err)
	}
	if e.index != nil {
		if err := e.index.RemovePlayer(ctx, playerID); err != nil {
			e.logger.Warn("failed to remove player from rank index", "player_id", playerID, "error", err)
		}
	}
	e.logger.Info("player deleted", "player_id", playerID)
	return nil
}

// UpsertPlacement records the player's tier in gamemode, replacing any
// previous placement, and recomputes the global total in the same unit of
// work. The committed event is published before returning.
func (e *Engine) UpsertPlacement(ctx context.Context, playerID, gamemode, tierCode string) (domain.PlacementCommitted, error) {
	gm, code, err := e.ledger.Validate(gamemode, tierCode)
	if err != nil {
		return domain.PlacementCommitted{}, err
	}

	player, entry, err := e.commitPlacement(ctx, playerID, gm, code)
	if err != nil {
		return domain.PlacementCommitted{}, err
	}
	e.metrics.PlacementCommitted(string(gm))

	rank, err := e.ranks.RankOf(ctx, ranking.Global, playerID)
	if err != nil {
		e.logger.Warn("failed to compute rank after commit", "player_id", playerID, "error", err)
	}

	event := domain.PlacementCommitted{
		PlayerID:        player.ID,
		IGN:             player.IGN,
		Gamemode:        entry.Gamemode,
		NewTier:         entry.Tier,
		NewGlobalPoints: player.GlobalPoints,
		NewRank:         rank,
		CommittedAt:     entry.UpdatedAt,
	}
	// publish failures are logged by the publisher and never undo the commit
	_ = e.publisher.PublishPlacementCommitted(ctx, event)
	return event, nil
}

func (e *Engine) commitPlacement(ctx context.Context, playerID string, gm domain.Gamemode, code domain.TierCode) (domain.Player, domain.LedgerEntry, error) {
	unlock := e.locks.Lock(playerID)
	defer unlock()
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	var (
		player domain.Player
		entry  domain.LedgerEntry
	)
	err := e.store.WithinTx(ctx, playerID, func(ctx context.Context, tx storage.Store) error {
		p, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		entry, err = e.ledger.UpsertPlacement(ctx, tx, playerID, string(gm), string(code))
		if err != nil {
			return err
		}
		total, err := e.points.Recompute(ctx, tx, playerID)
		if err != nil {
			return err
		}
		p.GlobalPoints = total
		player = *p
		return nil
	})
	if err != nil {
		return domain.Player{}, domain.LedgerEntry{}, err
	}

	if e.index != nil {
		if err := e.index.SetPlacement(ctx, entry); err != nil {
			e.logger.Warn("failed to index placement", "player_id", playerID, "gamemode", gm, "error", err)
		}
	}
	e.indexPlayer(ctx, player)
	return player, entry, nil
}

// RemovePlacement clears the player's placement in gamemode and returns the
// recomputed total. Clearing an absent placement is not an error.
func (e *Engine) RemovePlacement(ctx context.Context, playerID, gamemode string) (int64, error) {
	gm, err := domain.ParseGamemode(gamemode)
	if err != nil {
		return 0, err
	}

	unlock := e.locks.Lock(playerID)
	defer unlock()
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	var (
		player  domain.Player
		removed bool
	)
	err = e.store.WithinTx(ctx, playerID, func(ctx context.Context, tx storage.Store) error {
		p, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		removed, err = e.ledger.RemovePlacement(ctx, tx, playerID, string(gm))
		if err != nil {
			return err
		}
		total, err := e.points.Recompute(ctx, tx, playerID)
		if err != nil {
			return err
		}
		p.GlobalPoints = total
		player = *p
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed {
		e.metrics.PlacementRemoved(string(gm))
		if e.index != nil {
			if err := e.index.RemovePlacement(ctx, playerID, gm); err != nil {
				e.logger.Warn("failed to unindex placement", "player_id", playerID, "gamemode", gm, "error", err)
			}
		}
	}
	e.indexPlayer(ctx, player)
	return player.GlobalPoints, nil
}

// Recompute rewrites the player's global total from the ledger
func (e *Engine) Recompute(ctx context.Context, playerID string) (int64, error) {
	total, _, err := e.recompute(ctx, playerID)
	return total, err
}

func (e *Engine) recompute(ctx context.Context, playerID string) (total int64, changed bool, err error) {
	unlock := e.locks.Lock(playerID)
	defer unlock()
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	var player domain.Player
	err = e.store.WithinTx(ctx, playerID, func(ctx context.Context, tx storage.Store) error {
		p, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		total, err = e.points.Recompute(ctx, tx, playerID)
		if err != nil {
			return err
		}
		changed = p.GlobalPoints != total
		p.GlobalPoints = total
		player = *p
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if changed {
		e.indexPlayer(ctx, player)
	}
	return total, changed, nil
}

func (e *Engine) indexPlayer(ctx context.Context, player domain.Player) {
	if e.index == nil {
		return
	}
	if err := e.index.SetPlayer(ctx, player); err != nil {
		e.logger.Warn("failed to index player", "player_id", player.ID, "error", err)
	}
}

// RankAll returns the global ordering of every player
func (e *Engine) RankAll(ctx context.Context) ([]domain.RankEntry, error) {
	return e.ranks.RankAll(ctx)
}

// RankByGamemode returns the ordering of players placed in gamemode
func (e *Engine) RankByGamemode(ctx context.Context, gamemode string) ([]domain.RankEntry, error) {
	return e.ranks.RankByGamemode(ctx, gamemode)
}

// RankPage returns one page of a board. An empty gamemode selects the
// global board. The limit is clamped to the configured bounds.
func (e *Engine) RankPage(ctx context.Context, gamemode string, offset, limit int) (*domain.RankPage, error) {
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	page := &domain.RankPage{Offset: offset, Limit: limit}
	board := ranking.Global
	if gamemode != "" {
		gm, err := domain.ParseGamemode(gamemode)
		if err != nil {
			return nil, err
		}
		board = ranking.GamemodeBoard(gm)
		page.Gamemode = gm
	}

	entries, total, err := e.ranks.Page(ctx, board, offset, limit)
	if err != nil {
		return nil, err
	}
	page.Entries = entries
	page.Total = total
	return page, nil
}

// Standing returns points, rank, title and placements for one player
func (e *Engine) Standing(ctx context.Context, ign string) (*domain.Standing, error) {
	player, err := e.store.GetPlayerByIGN(ctx, ign)
	if err != nil {
		return nil, err
	}
	entries, err := e.ledger.EntriesForPlayer(ctx, nil, player.ID)
	if err != nil {
		return nil, err
	}
	rank, err := e.ranks.RankOf(ctx, ranking.Global, player.ID)
	if err != nil {
		return nil, fmt.Errorf("ranking player: %w", err)
	}
	t, err := e.titles.TitleFor(player.GlobalPoints)
	if err != nil {
		return nil, err
	}
	return &domain.Standing{
		Player:     *player,
		Rank:       rank,
		Title:      t,
		Placements: entries,
	}, nil
}

// ReconcileAll recomputes every player's total and, when an index is
// configured, rebuilds it from storage. It returns how many totals changed.
func (e *Engine) ReconcileAll(ctx context.Context) (int, error) {
	players, err := e.store.ListPlayers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing players: %w", err)
	}

	corrected := 0
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return corrected, err
		}
		_, changed, err := e.recompute(ctx, p.ID)
		if err != nil {
			if errors.Is(err, domain.ErrPlayerNotFound) {
				continue
			}
			return corrected, fmt.Errorf("recomputing %s: %w", p.ID, err)
		}
		if changed {
			corrected++
			e.logger.Warn("corrected drifted global points", "player_id", p.ID, "ign", p.IGN)
		}
	}
	e.metrics.ReconcileCorrected(corrected)

	if e.index != nil {
		if err := e.RebuildIndex(ctx); err != nil {
			return corrected, err
		}
	}
	return corrected, nil
}

// RebuildIndex replaces the rank index contents with current storage state
func (e *Engine) RebuildIndex(ctx context.Context) error {
	if e.index == nil {
		return nil
	}
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	players, err := e.store.ListPlayers(ctx)
	if err != nil {
		return fmt.Errorf("listing players: %w", err)
	}
	var entries []domain.LedgerEntry
	for _, gm := range domain.Gamemodes() {
		byMode, err := e.store.LedgerEntriesForGamemode(ctx, gm)
		if err != nil {
			return fmt.Errorf("listing %s entries: %w", gm, err)
		}
		entries = append(entries, byMode...)
	}
	if err := e.index.Rebuild(ctx, players, entries); err != nil {
		return fmt.Errorf("rebuilding rank index: %w", err)
	}
	return nil
}
