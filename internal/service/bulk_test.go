package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage/memory"
)

// slowStore blocks lookups of one ign until the context ends
type slowStore struct {
	*memory.Store
	slowIGN string
}

func (s *slowStore) GetPlayerByIGN(ctx context.Context, ign string) (*domain.Player, error) {
	if ign == s.slowIGN {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.GetPlayerByIGN(ctx, ign)
}

// downStore fails Ping
type downStore struct {
	*memory.Store
}

func (s *downStore) Ping(ctx context.Context) error {
	return fmt.Errorf("connection refused")
}

func TestSubmitBatch_PartialFailure(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	result, err := te.SubmitBatch(ctx, domain.BatchPlacementSubmission{Entries: []domain.PlacementSubmission{
		{IGN: "Alpha", Gamemode: "sword", Tier: "HT1"},
		{IGN: "Bravo", Gamemode: "crystal", Tier: "LT3", Region: "na"},
		{IGN: "Charlie", Gamemode: "SMP", Tier: "HT5"},
		{IGN: "bad name", Gamemode: "sword", Tier: "HT1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 4, result.Errors[0].Line)
	assert.Equal(t, "bad name", result.Errors[0].IGN)
	assert.ErrorIs(t, result.Errors[0].Err, domain.ErrValidation)
	assert.Equal(t,
		[]string{`line 4: ign "bad name": may only contain letters, digits and underscores`},
		result.Messages(),
	)

	want := map[string]int64{"Alpha": 50, "Bravo": 25, "Charlie": 10}
	for ign, points := range want {
		p, err := te.GetPlayer(ctx, ign)
		require.NoError(t, err, ign)
		assert.Equal(t, points, p.GlobalPoints, ign)

		entries, err := te.store.LedgerEntriesForPlayer(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1, ign)
	}

	bravo, err := te.GetPlayer(ctx, "Bravo")
	require.NoError(t, err)
	assert.Equal(t, domain.RegionNA, bravo.Region)

	_, err = te.GetPlayer(ctx, "bad name")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestSubmitBatch_ReportsEachBadLine(t *testing.T) {
	te := newTestEngine(t)

	result, err := te.SubmitBatch(context.Background(), domain.BatchPlacementSubmission{Entries: []domain.PlacementSubmission{
		{IGN: "Alpha", Gamemode: "bedwars", Tier: "HT1"},
		{IGN: "Bravo", Gamemode: "sword", Tier: "XT9"},
		{IGN: "ThisNameIsWayTooLong", Gamemode: "sword", Tier: "HT1"},
		{IGN: "Delta", Gamemode: "sword", Tier: "HT1", Region: "MARS"},
		{IGN: "Echo", Gamemode: "sword", Tier: "HT1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 4, result.FailureCount)

	lines := make([]int, 0, len(result.Errors))
	for _, e := range result.Errors {
		lines = append(lines, e.Line)
		assert.ErrorIs(t, e.Err, domain.ErrValidation)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, lines)
	assert.Contains(t, result.Errors[1].Message, `line 2: ign "Bravo": tier "XT9"`)
}

func TestSubmitBatch_SameIGNKeepsInputOrder(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	result, err := te.SubmitBatch(ctx, domain.BatchPlacementSubmission{Entries: []domain.PlacementSubmission{
		{IGN: "Steve", Gamemode: "smp", Tier: "HT1"},
		{IGN: "Alex", Gamemode: "smp", Tier: "HT2"},
		{IGN: "Steve", Gamemode: "smp", Tier: "LT3"},
		{IGN: "Steve", Gamemode: "axe", Tier: "LT5"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, result.SuccessCount)

	steve, err := te.GetPlayer(ctx, "Steve")
	require.NoError(t, err)
	assert.Equal(t, int64(30), steve.GlobalPoints)

	players, err := te.store.ListPlayers(ctx)
	require.NoError(t, err)
	assert.Len(t, players, 2)
}

func TestSubmitBatch_ManyPlayersKeepInvariant(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.bulk.Workers = 4

	tiers := []string{"HT1", "LT1", "HT2", "LT2", "HT3", "LT3", "HT4", "LT4", "HT5", "LT5", "NR"}
	var entries []domain.PlacementSubmission
	for i := 0; i < 300; i++ {
		entries = append(entries, domain.PlacementSubmission{
			IGN:      fmt.Sprintf("Player_%d", i%25),
			Gamemode: string(domain.Gamemodes()[i%8]),
			Tier:     tiers[i%len(tiers)],
		})
	}

	result, err := te.SubmitBatch(ctx, domain.BatchPlacementSubmission{Entries: entries})
	require.NoError(t, err)
	assert.Equal(t, 300, result.SuccessCount)
	assert.Empty(t, result.Errors)

	players, err := te.store.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 25)
	for _, p := range players {
		ledger, err := te.store.LedgerEntriesForPlayer(ctx, p.ID)
		require.NoError(t, err)
		var sum int64
		for _, e := range ledger {
			sum += e.Points
		}
		assert.Equal(t, sum, p.GlobalPoints, p.IGN)
	}
	assert.Len(t, te.recorder.Events(), 300)
	assert.Zero(t, te.locks.size())
}

func TestSubmitBatch_EntryTimeoutIsLineFailure(t *testing.T) {
	mem := memory.New()
	te := newTestEngineWith(t, mem, &slowStore{Store: mem, slowIGN: "Slow"})
	te.bulk.EntryTimeout = 20 * time.Millisecond

	result, err := te.SubmitBatch(context.Background(), domain.BatchPlacementSubmission{Entries: []domain.PlacementSubmission{
		{IGN: "Slow", Gamemode: "sword", Tier: "HT1"},
		{IGN: "Fast", Gamemode: "sword", Tier: "HT1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, `line 1: ign "Slow": timed out`, result.Errors[0].Message)
}

func TestSubmitBatch_WholeBatchFailures(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		te := newTestEngine(t)
		te.bulk.MaxEntries = 2
		_, err := te.SubmitBatch(context.Background(), domain.BatchPlacementSubmission{Entries: make([]domain.PlacementSubmission, 3)})
		assert.ErrorIs(t, err, domain.ErrBatchTooLarge)
	})

	t.Run("storage unreachable", func(t *testing.T) {
		mem := memory.New()
		te := newTestEngineWith(t, mem, &downStore{Store: mem})
		_, err := te.SubmitBatch(context.Background(), domain.BatchPlacementSubmission{Entries: []domain.PlacementSubmission{
			{IGN: "Alpha", Gamemode: "sword", Tier: "HT1"},
		}})
		assert.ErrorIs(t, err, domain.ErrStorage)
	})
}

func TestRegisterBatch(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.register(t, "Existing")

	result, err := te.RegisterBatch(ctx, domain.BatchRegistration{Entries: []domain.RegistrationSubmission{
		{IGN: "Alpha", DisplayName: "AlphaSkin"},
		{IGN: "Existing"},
		{IGN: "no-dashes"},
		{IGN: "Bravo"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	assert.Equal(t, `line 2: ign "Existing": player already exists`, result.Errors[0].Message)
	assert.Equal(t, 3, result.Errors[1].Line)

	alpha, err := te.GetPlayer(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "AlphaSkin", alpha.DisplayName)
	assert.Zero(t, alpha.GlobalPoints)
}
