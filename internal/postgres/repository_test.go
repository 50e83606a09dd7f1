package postgres

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tierboard"),
		tcpostgres.WithUsername("tierboard"),
		tcpostgres.WithPassword("tierboard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewRepository(&config.PostgresConfig{DSN: dsn, MaxConnections: 10}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.RunMigrations(ctx))
	return repo
}

func TestRepository_Players(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := domain.Player{ID: "p1", IGN: "Steve", Region: domain.RegionEU, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreatePlayer(ctx, p))
	assert.ErrorIs(t, repo.CreatePlayer(ctx, domain.Player{ID: "p2", IGN: "Steve", CreatedAt: now, UpdatedAt: now}), domain.ErrPlayerExists)
	require.NoError(t, repo.CreatePlayer(ctx, domain.Player{ID: "p3", IGN: "steve", CreatedAt: now, UpdatedAt: now}))

	got, err := repo.GetPlayerByIGN(ctx, "Steve")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, domain.RegionEU, got.Region)

	require.NoError(t, repo.SetGlobalPoints(ctx, "p1", 40))
	p.DisplayName = "SteveSkin"
	require.NoError(t, repo.UpsertPlayer(ctx, p))
	got, err = repo.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "SteveSkin", got.DisplayName)
	assert.Equal(t, int64(40), got.GlobalPoints)

	_, err = repo.GetPlayer(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
	assert.ErrorIs(t, repo.SetGlobalPoints(ctx, "missing", 1), domain.ErrPlayerNotFound)

	players, err := repo.ListPlayers(ctx)
	require.NoError(t, err)
	assert.Len(t, players, 2)
}

func TestRepository_LedgerEntries(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.CreatePlayer(ctx, domain.Player{ID: "p1", IGN: "Steve", CreatedAt: now, UpdatedAt: now}))

	require.NoError(t, repo.UpsertLedgerEntry(ctx, domain.LedgerEntry{PlayerID: "p1", Gamemode: domain.GamemodeSMP, Tier: domain.TierHT1, Points: 50, UpdatedAt: now}))
	require.NoError(t, repo.UpsertLedgerEntry(ctx, domain.LedgerEntry{PlayerID: "p1", Gamemode: domain.GamemodeSMP, Tier: domain.TierLT3, Points: 25, UpdatedAt: now}))

	entries, err := repo.LedgerEntriesForPlayer(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.TierLT3, entries[0].Tier)
	assert.Equal(t, int64(25), entries[0].Points)

	err = repo.UpsertLedgerEntry(ctx, domain.LedgerEntry{PlayerID: "ghost", Gamemode: domain.GamemodeSMP, Tier: domain.TierHT1, Points: 50, UpdatedAt: now})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	removed, err := repo.DeleteLedgerEntry(ctx, "p1", domain.GamemodeSMP)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.DeleteLedgerEntry(ctx, "p1", domain.GamemodeSMP)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, repo.UpsertLedgerEntry(ctx, domain.LedgerEntry{PlayerID: "p1", Gamemode: domain.GamemodeAxe, Tier: domain.TierHT5, Points: 10, UpdatedAt: now}))
	require.NoError(t, repo.DeletePlayer(ctx, "p1"))
	byMode, err := repo.LedgerEntriesForGamemode(ctx, domain.GamemodeAxe)
	require.NoError(t, err)
	assert.Empty(t, byMode)
}

func TestRepository_WithinTxSerializesPlayer(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.CreatePlayer(ctx, domain.Player{ID: "p1", IGN: "Steve", CreatedAt: now, UpdatedAt: now}))

	// read-modify-write under the advisory lock must not lose updates
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithinTx(ctx, "p1", func(ctx context.Context, tx storage.Store) error {
				p, err := tx.GetPlayer(ctx, "p1")
				if err != nil {
					return err
				}
				return tx.SetGlobalPoints(ctx, "p1", p.GlobalPoints+5)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.GlobalPoints)

	// a failing unit of work rolls back
	err = repo.WithinTx(ctx, "p1", func(ctx context.Context, tx storage.Store) error {
		require.NoError(t, tx.SetGlobalPoints(ctx, "p1", 0))
		return domain.ErrValidation
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	got, err = repo.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.GlobalPoints)
}

func TestRepository_RecordEvent(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	event := domain.PlacementCommitted{
		PlayerID:        "p1",
		IGN:             "Steve",
		Gamemode:        domain.GamemodeSword,
		NewTier:         domain.TierHT2,
		NewGlobalPoints: 40,
		NewRank:         1,
		CommittedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.PublishPlacementCommitted(ctx, event))

	got, err := repo.RecentEvents(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TierHT2, got[0].NewTier)
	assert.Equal(t, int64(40), got[0].NewGlobalPoints)
}
