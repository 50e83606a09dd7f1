// Package memory is an in-process implementation of storage.Storage.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/storage"
)

// Store keeps players and ledger entries in maps guarded by one RWMutex
type Store struct {
	mu      sync.RWMutex
	players map[string]domain.Player
	byIGN   map[string]string
	ledger  map[string]map[domain.Gamemode]domain.LedgerEntry

	txMu    sync.Mutex
	txLocks map[string]*txLock
}

type txLock struct {
	mu   sync.Mutex
	refs int
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		players: make(map[string]domain.Player),
		byIGN:   make(map[string]string),
		ledger:  make(map[string]map[domain.Gamemode]domain.LedgerEntry),
		txLocks: make(map[string]*txLock),
	}
}

// WithinTx serializes fn with every other WithinTx call for the same player.
// Individual writes are not rolled back if fn fails part way.
func (s *Store) WithinTx(ctx context.Context, playerID string, fn func(ctx context.Context, tx storage.Store) error) error {
	s.txMu.Lock()
	l, ok := s.txLocks[playerID]
	if !ok {
		l = &txLock{}
		s.txLocks[playerID] = l
	}
	l.refs++
	s.txMu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		s.txMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.txLocks, playerID)
		}
		s.txMu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s)
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// GetPlayer returns a copy of the player with the given id
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &p, nil
}

// GetPlayerByIGN looks up a player by exact, case-sensitive ign
func (s *Store) GetPlayerByIGN(ctx context.Context, ign string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIGN[ign]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	p := s.players[id]
	return &p, nil
}

// CreatePlayer inserts a new player
func (s *Store) CreatePlayer(ctx context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byIGN[player.IGN]; ok {
		return domain.ErrPlayerExists
	}
	if _, ok := s.players[player.ID]; ok {
		return domain.ErrPlayerExists
	}
	s.players[player.ID] = player
	s.byIGN[player.IGN] = player.ID
	return nil
}

// UpsertPlayer inserts or replaces a player's profile by id. The global
// point total of an existing player is left untouched.
func (s *Store) UpsertPlayer(ctx context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byIGN[player.IGN]; ok && owner != player.ID {
		return domain.ErrPlayerExists
	}
	if old, ok := s.players[player.ID]; ok {
		if old.IGN != player.IGN {
			delete(s.byIGN, old.IGN)
		}
		player.GlobalPoints = old.GlobalPoints
		player.CreatedAt = old.CreatedAt
	}
	s.players[player.ID] = player
	s.byIGN[player.IGN] = player.ID
	return nil
}

// DeletePlayer removes a player and cascades to its ledger entries
func (s *Store) DeletePlayer(ctx context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	delete(s.players, playerID)
	delete(s.byIGN, p.IGN)
	delete(s.ledger, playerID)
	return nil
}

// ListPlayers returns every player ordered by id
func (s *Store) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].ID < players[j].ID
	})
	return players, nil
}

// LedgerEntriesForPlayer returns the player's placements, one per gamemode
func (s *Store) LedgerEntriesForPlayer(ctx context.Context, playerID string) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0, len(s.ledger[playerID]))
	for _, e := range s.ledger[playerID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Gamemode < entries[j].Gamemode
	})
	return entries, nil
}

// LedgerEntriesForGamemode returns every player's placement in one gamemode
func (s *Store) LedgerEntriesForGamemode(ctx context.Context, gamemode domain.Gamemode) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.LedgerEntry
	for _, byMode := range s.ledger {
		if e, ok := byMode[gamemode]; ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PlayerID < entries[j].PlayerID
	})
	return entries, nil
}

// UpsertLedgerEntry replaces the entry for (player, gamemode)
func (s *Store) UpsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[entry.PlayerID]; !ok {
		return domain.ErrPlayerNotFound
	}
	byMode, ok := s.ledger[entry.PlayerID]
	if !ok {
		byMode = make(map[domain.Gamemode]domain.LedgerEntry)
		s.ledger[entry.PlayerID] = byMode
	}
	byMode[entry.Gamemode] = entry
	return nil
}

// DeleteLedgerEntry removes the entry for (player, gamemode) if present
func (s *Store) DeleteLedgerEntry(ctx context.Context, playerID string, gamemode domain.Gamemode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMode, ok := s.ledger[playerID]
	if !ok {
		return false, nil
	}
	if _, ok := byMode[gamemode]; !ok {
		return false, nil
	}
	delete(byMode, gamemode)
	if len(byMode) == 0 {
		delete(s.ledger, playerID)
	}
	return true, nil
}

// SetGlobalPoints overwrites the denormalized total
func (s *Store) SetGlobalPoints(ctx context.Context, playerID string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.GlobalPoints = points
	p.UpdatedAt = time.Now()
	s.players[playerID] = p
	return nil
}
