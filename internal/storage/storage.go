// Package storage defines the narrow storage collaborator the ranking core
// consumes. Implementations live in memory and postgres.
package storage

import (
	"context"

	"github.com/tierboard/internal/domain"
)

// Store is the set of reads and writes the core performs. Failures other
// than the domain sentinels are reported as *domain.StorageError.
type Store interface {
	Ping(ctx context.Context) error

	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	GetPlayerByIGN(ctx context.Context, ign string) (*domain.Player, error)
	// CreatePlayer fails with domain.ErrPlayerExists when the ign is taken.
	CreatePlayer(ctx context.Context, player domain.Player) error
	UpsertPlayer(ctx context.Context, player domain.Player) error
	// DeletePlayer removes the player and every ledger entry it owns.
	DeletePlayer(ctx context.Context, playerID string) error
	ListPlayers(ctx context.Context) ([]domain.Player, error)

	LedgerEntriesForPlayer(ctx context.Context, playerID string) ([]domain.LedgerEntry, error)
	LedgerEntriesForGamemode(ctx context.Context, gamemode domain.Gamemode) ([]domain.LedgerEntry, error)
	UpsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	// DeleteLedgerEntry reports whether an entry was removed.
	DeleteLedgerEntry(ctx context.Context, playerID string, gamemode domain.Gamemode) (bool, error)
	SetGlobalPoints(ctx context.Context, playerID string, points int64) error
}

// Storage is a Store that can run a unit of work atomically for one player
type Storage interface {
	Store
	WithinTx(ctx context.Context, playerID string, fn func(ctx context.Context, tx Store) error) error
}
