package ranking

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/metrics"
	"github.com/tierboard/internal/storage/memory"
)

func seed(t *testing.T, players []domain.Player, entries []domain.LedgerEntry) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, p := range players {
		require.NoError(t, store.CreatePlayer(ctx, p))
	}
	for _, e := range entries {
		require.NoError(t, store.UpsertLedgerEntry(ctx, e))
	}
	return store
}

func TestRankAll_TiesAreTotalAndStable(t *testing.T) {
	store := seed(t, []domain.Player{
		{ID: "c", IGN: "Charlie", GlobalPoints: 30},
		{ID: "b", IGN: "Bravo", GlobalPoints: 50},
		{ID: "a", IGN: "Alpha", GlobalPoints: 50},
	}, nil)
	calc := NewCalculator(store, metrics.NewNoop(), slog.Default())

	got, err := calc.RankAll(context.Background())
	require.NoError(t, err)

	want := []domain.RankEntry{
		{Rank: 1, PlayerID: "a", IGN: "Alpha", Points: 50},
		{Rank: 2, PlayerID: "b", IGN: "Bravo", Points: 50},
		{Rank: 3, PlayerID: "c", IGN: "Charlie", Points: 30},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RankAll() mismatch (-want +got):\n%s", diff)
	}

	again, err := calc.RankAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestRankAll_ZeroPointPlayersAtBottom(t *testing.T) {
	store := seed(t, []domain.Player{
		{ID: "a", IGN: "Alpha"},
		{ID: "b", IGN: "Bravo", GlobalPoints: 5},
	}, nil)
	calc := NewCalculator(store, nil, slog.Default())

	got, err := calc.RankAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].PlayerID)
	assert.Equal(t, "a", got[1].PlayerID)
	assert.Equal(t, int64(0), got[1].Points)
}

func TestRankByGamemode(t *testing.T) {
	store := seed(t,
		[]domain.Player{
			{ID: "a", IGN: "Alpha"},
			{ID: "b", IGN: "Bravo"},
			{ID: "c", IGN: "Charlie"},
			{ID: "d", IGN: "Delta"},
		},
		[]domain.LedgerEntry{
			{PlayerID: "a", Gamemode: domain.GamemodeSword, Tier: domain.TierLT3, Points: 25},
			{PlayerID: "b", Gamemode: domain.GamemodeSword, Tier: domain.TierHT1, Points: 50},
			{PlayerID: "c", Gamemode: domain.GamemodeSword, Tier: domain.TierRetired, Points: 0},
			{PlayerID: "d", Gamemode: domain.GamemodeSMP, Tier: domain.TierHT1, Points: 50},
		},
	)
	calc := NewCalculator(store, nil, slog.Default())

	got, err := calc.RankByGamemode(context.Background(), "Sword")
	require.NoError(t, err)

	want := []domain.RankEntry{
		{Rank: 1, PlayerID: "b", IGN: "Bravo", Points: 50},
		{Rank: 2, PlayerID: "a", IGN: "Alpha", Points: 25},
	}
	assert.Equal(t, want, got)

	_, err = calc.RankByGamemode(context.Background(), "bedwars")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPageAndRankOf(t *testing.T) {
	var players []domain.Player
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		players = append(players, domain.Player{ID: id, IGN: "P" + id, GlobalPoints: int64(10 * i)})
	}
	calc := NewCalculator(seed(t, players, nil), nil, slog.Default())
	ctx := context.Background()

	page, total, err := calc.Page(ctx, Global, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].PlayerID)
	assert.Equal(t, int64(2), page[0].Rank)
	assert.Equal(t, "c", page[1].PlayerID)

	page, _, err = calc.Page(ctx, Global, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	rank, err := calc.RankOf(ctx, Global, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rank)

	_, err = calc.RankOf(ctx, Global, "ghost")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestBoardGamemode(t *testing.T) {
	gm, ok := GamemodeBoard(domain.GamemodeMace).Gamemode()
	assert.True(t, ok)
	assert.Equal(t, domain.GamemodeMace, gm)

	_, ok = Global.Gamemode()
	assert.False(t, ok)
	_, ok = Board("gamemode:bedwars").Gamemode()
	assert.False(t, ok)
}

type fakeIndex struct {
	RangeFunc  func(ctx context.Context, board Board, start, stop int64) ([]domain.RankEntry, error)
	RankOfFunc func(ctx context.Context, board Board, playerID string) (int64, error)
	CountFunc  func(ctx context.Context, board Board) (int64, error)
}

func (f *fakeIndex) Range(ctx context.Context, board Board, start, stop int64) ([]domain.RankEntry, error) {
	return f.RangeFunc(ctx, board, start, stop)
}

func (f *fakeIndex) RankOf(ctx context.Context, board Board, playerID string) (int64, error) {
	return f.RankOfFunc(ctx, board, playerID)
}

func (f *fakeIndex) Count(ctx context.Context, board Board) (int64, error) {
	return f.CountFunc(ctx, board)
}

func TestCalculator_UsesIndexWhenSet(t *testing.T) {
	calc := NewCalculator(memory.New(), nil, slog.Default())
	var gotStart, gotStop int64
	calc.SetIndex(&fakeIndex{
		RangeFunc: func(ctx context.Context, board Board, start, stop int64) ([]domain.RankEntry, error) {
			gotStart, gotStop = start, stop
			return []domain.RankEntry{{Rank: 3, PlayerID: "x", Points: 7}}, nil
		},
		CountFunc: func(ctx context.Context, board Board) (int64, error) { return 9, nil },
		RankOfFunc: func(ctx context.Context, board Board, playerID string) (int64, error) {
			return 4, nil
		},
	})

	page, total, err := calc.Page(context.Background(), Global, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(9), total)
	assert.Len(t, page, 1)
	assert.Equal(t, int64(2), gotStart)
	assert.Equal(t, int64(4), gotStop)

	rank, err := calc.RankOf(context.Background(), Global, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rank)
}

func TestCalculator_RankOfFallsBackWhenIndexMissesPlayer(t *testing.T) {
	store := seed(t, []domain.Player{
		{ID: "a", IGN: "Pa", GlobalPoints: 10},
		{ID: "b", IGN: "Pb", GlobalPoints: 30},
	}, nil)
	calc := NewCalculator(store, nil, slog.Default())
	calc.SetIndex(&fakeIndex{
		RankOfFunc: func(ctx context.Context, board Board, playerID string) (int64, error) {
			return 0, domain.ErrPlayerNotFound
		},
	})
	ctx := context.Background()

	rank, err := calc.RankOf(ctx, Global, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	_, err = calc.RankOf(ctx, Global, "ghost")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestCalculator_RankOfPropagatesIndexFailure(t *testing.T) {
	calc := NewCalculator(memory.New(), nil, slog.Default())
	calc.SetIndex(&fakeIndex{
		RankOfFunc: func(ctx context.Context, board Board, playerID string) (int64, error) {
			return 0, domain.NewStorageError("rank", context.DeadlineExceeded)
		},
	})

	_, err := calc.RankOf(context.Background(), Global, "a")
	assert.ErrorIs(t, err, domain.ErrStorage)
}
