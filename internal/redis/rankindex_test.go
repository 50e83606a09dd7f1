package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/ranking"
)

func newTestIndex(t *testing.T) (*RankIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRankIndexFromClient(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestRankIndex_GlobalMatchesInMemoryOrder(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	players := []domain.Player{
		{ID: "c", IGN: "Charlie", GlobalPoints: 30},
		{ID: "b", IGN: "Bravo", GlobalPoints: 50},
		{ID: "a", IGN: "Alpha", GlobalPoints: 50},
		{ID: "d", IGN: "Delta"},
	}
	for _, p := range players {
		require.NoError(t, idx.SetPlayer(ctx, p))
	}

	got, err := idx.Range(ctx, ranking.Global, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, ranking.RankPlayers(players), got)

	rank, err := idx.RankOf(ctx, ranking.Global, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	count, err := idx.Count(ctx, ranking.Global)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	page, err := idx.Range(ctx, ranking.Global, 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].Rank)
	assert.Equal(t, "Charlie", page[0].IGN)
}

func TestRankIndex_GamemodeBoards(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.SetPlayer(ctx, domain.Player{ID: "a", IGN: "Alpha"}))
	require.NoError(t, idx.SetPlayer(ctx, domain.Player{ID: "b", IGN: "Bravo"}))

	board := ranking.GamemodeBoard(domain.GamemodeSword)
	require.NoError(t, idx.SetPlacement(ctx, domain.LedgerEntry{PlayerID: "a", Gamemode: domain.GamemodeSword, Tier: domain.TierLT3, Points: 25}))
	require.NoError(t, idx.SetPlacement(ctx, domain.LedgerEntry{PlayerID: "b", Gamemode: domain.GamemodeSword, Tier: domain.TierHT1, Points: 50}))

	got, err := idx.Range(ctx, board, 0, -1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RankEntry{Rank: 1, PlayerID: "b", IGN: "Bravo", Points: 50}, got[0])

	// retiring drops the player from the board
	require.NoError(t, idx.SetPlacement(ctx, domain.LedgerEntry{PlayerID: "b", Gamemode: domain.GamemodeSword, Tier: domain.TierRetired}))
	_, err = idx.RankOf(ctx, board, "b")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	require.NoError(t, idx.RemovePlacement(ctx, "a", domain.GamemodeSword))
	count, err := idx.Count(ctx, board)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRankIndex_RemovePlayer(t *testing.T) {
	idx, mr := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.SetPlayer(ctx, domain.Player{ID: "a", IGN: "Alpha", GlobalPoints: 10}))
	require.NoError(t, idx.SetPlacement(ctx, domain.LedgerEntry{PlayerID: "a", Gamemode: domain.GamemodeAxe, Tier: domain.TierHT5, Points: 10}))

	require.NoError(t, idx.RemovePlayer(ctx, "a"))

	_, err := idx.RankOf(ctx, ranking.Global, "a")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
	assert.False(t, mr.Exists("player:a:info"))
	assert.False(t, mr.Exists("rank:gamemode:axe"))
}

func TestRankIndex_Rebuild(t *testing.T) {
	idx, mr := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.SetPlayer(ctx, domain.Player{ID: "stale", IGN: "Stale", GlobalPoints: 99}))

	players := []domain.Player{
		{ID: "a", IGN: "Alpha", GlobalPoints: 45},
		{ID: "b", IGN: "Bravo", GlobalPoints: 50},
	}
	entries := []domain.LedgerEntry{
		{PlayerID: "a", Gamemode: domain.GamemodeMace, Tier: domain.TierLT1, Points: 45},
		{PlayerID: "b", Gamemode: domain.GamemodeMace, Tier: domain.TierHT1, Points: 50},
		{PlayerID: "a", Gamemode: domain.GamemodePot, Tier: domain.TierNotRanked},
	}
	require.NoError(t, idx.Rebuild(ctx, players, entries))

	got, err := idx.Range(ctx, ranking.Global, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, ranking.RankPlayers(players), got)

	mace, err := idx.Range(ctx, ranking.GamemodeBoard(domain.GamemodeMace), 0, -1)
	require.NoError(t, err)
	assert.Len(t, mace, 2)
	assert.False(t, mr.Exists("rank:gamemode:pot"))
}

func TestRankIndex_EmptyRange(t *testing.T) {
	idx, _ := newTestIndex(t)
	got, err := idx.Range(context.Background(), ranking.Global, 0, 9)
	require.NoError(t, err)
	assert.Empty(t, got)
}
