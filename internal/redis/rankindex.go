// Package redis keeps an incremental rank index in Redis sorted sets.
//
// Members are player ids and scores are negated points, so an ascending
// ZRANGE returns points descending with ties in ascending player id order.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/ranking"
)

// RankIndex provides Redis-based rank operations
type RankIndex struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankIndex connects to Redis and creates a rank index
func NewRankIndex(cfg *config.RedisConfig, logger *slog.Logger) (*RankIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRankIndexFromClient(client, logger), nil
}

// NewRankIndexFromClient wraps an existing client
func NewRankIndexFromClient(client *redis.Client, logger *slog.Logger) *RankIndex {
	return &RankIndex{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *RankIndex) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *RankIndex) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// boardKey returns the Redis key for a board's sorted set
func boardKey(board ranking.Board) string {
	return "rank:" + string(board)
}

// playerInfoKey returns the Redis key for player info cache
func playerInfoKey(playerID string) string {
	return fmt.Sprintf("player:%s:info", playerID)
}

func member(points int64, playerID string) redis.Z {
	return redis.Z{Score: float64(-points), Member: playerID}
}

// SetPlayer updates the player's global score and cached ign
func (s *RankIndex) SetPlayer(ctx context.Context, player domain.Player) error {
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, boardKey(ranking.Global), member(player.GlobalPoints, player.ID))
	pipe.HSet(ctx, playerInfoKey(player.ID), "ign", player.IGN)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting player: %w", err)
	}
	return nil
}

// SetPlacement updates the player's score on the gamemode board. Unranked
// tiers take the player off that board.
func (s *RankIndex) SetPlacement(ctx context.Context, entry domain.LedgerEntry) error {
	key := boardKey(ranking.GamemodeBoard(entry.Gamemode))
	var err error
	if entry.Tier.Ranked() {
		err = s.client.ZAdd(ctx, key, member(entry.Points, entry.PlayerID)).Err()
	} else {
		err = s.client.ZRem(ctx, key, entry.PlayerID).Err()
	}
	if err != nil {
		return fmt.Errorf("setting placement: %w", err)
	}
	return nil
}

// RemovePlacement takes the player off one gamemode board
func (s *RankIndex) RemovePlacement(ctx context.Context, playerID string, gamemode domain.Gamemode) error {
	err := s.client.ZRem(ctx, boardKey(ranking.GamemodeBoard(gamemode)), playerID).Err()
	if err != nil {
		return fmt.Errorf("removing placement: %w", err)
	}
	return nil
}

// RemovePlayer removes a player from every board
func (s *RankIndex) RemovePlayer(ctx context.Context, playerID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, boardKey(ranking.Global), playerID)
	for _, gm := range domain.Gamemodes() {
		pipe.ZRem(ctx, boardKey(ranking.GamemodeBoard(gm)), playerID)
	}
	pipe.Del(ctx, playerInfoKey(playerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing player: %w", err)
	}
	return nil
}

// Rebuild replaces every board with the given state in one transaction
func (s *RankIndex) Rebuild(ctx context.Context, players []domain.Player, entries []domain.LedgerEntry) error {
	boards := make(map[ranking.Board][]redis.Z)
	boards[ranking.Global] = make([]redis.Z, 0, len(players))
	for _, gm := range domain.Gamemodes() {
		boards[ranking.GamemodeBoard(gm)] = nil
	}
	for _, p := range players {
		boards[ranking.Global] = append(boards[ranking.Global], member(p.GlobalPoints, p.ID))
	}
	for _, e := range entries {
		if !e.Tier.Ranked() {
			continue
		}
		b := ranking.GamemodeBoard(e.Gamemode)
		boards[b] = append(boards[b], member(e.Points, e.PlayerID))
	}

	pipe := s.client.TxPipeline()
	for board, members := range boards {
		key := boardKey(board)
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
		}
	}
	for _, p := range players {
		pipe.HSet(ctx, playerInfoKey(p.ID), "ign", p.IGN)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding rank index: %w", err)
	}

	s.logger.Info("rank index rebuilt", "players", len(players), "entries", len(entries))
	return nil
}

// Range returns ranks start..stop (0-based, inclusive, -1 for the end)
func (s *RankIndex) Range(ctx context.Context, board ranking.Board, start, stop int64) ([]domain.RankEntry, error) {
	results, err := s.client.ZRangeWithScores(ctx, boardKey(board), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}
	if start < 0 {
		start = 0
	}

	entries := make([]domain.RankEntry, len(results))
	pipe := s.client.Pipeline()
	igns := make([]*redis.StringCmd, len(results))
	for i, result := range results {
		playerID := result.Member.(string)
		entries[i] = domain.RankEntry{
			Rank:     start + int64(i) + 1, // Convert to 1-indexed rank
			PlayerID: playerID,
			Points:   -int64(result.Score),
		}
		igns[i] = pipe.HGet(ctx, playerInfoKey(playerID), "ign")
	}
	if len(results) == 0 {
		return entries, nil
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting player info: %w", err)
	}
	for i, cmd := range igns {
		ign, err := cmd.Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("getting player info: %w", err)
		}
		entries[i].IGN = ign
	}
	return entries, nil
}

// RankOf returns the player's 1-based rank on board
func (s *RankIndex) RankOf(ctx context.Context, board ranking.Board, playerID string) (int64, error) {
	rank, err := s.client.ZRank(ctx, boardKey(board), playerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("getting player rank: %w", err)
	}
	return rank + 1, nil
}

// Count returns the number of players on board
func (s *RankIndex) Count(ctx context.Context, board ranking.Board) (int64, error) {
	count, err := s.client.ZCard(ctx, boardKey(board)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}
