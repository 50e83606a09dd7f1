// Package events carries notifications emitted after placements commit.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tierboard/internal/domain"
)

// Publisher receives committed placements. Publish is called after the
// commit and its failure never undoes the commit.
type Publisher interface {
	PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event domain.PlacementCommitted) error

// PublishPlacementCommitted calls f
func (f PublisherFunc) PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error {
	return f(ctx, event)
}

// Fanout delivers each event to every subscriber and joins their errors
type Fanout struct {
	mu          sync.RWMutex
	subscribers []Publisher
	logger      *slog.Logger
}

// NewFanout creates a fan-out publisher
func NewFanout(logger *slog.Logger, subscribers ...Publisher) *Fanout {
	return &Fanout{subscribers: subscribers, logger: logger}
}

// Subscribe adds a subscriber
func (f *Fanout) Subscribe(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, p)
}

// PublishPlacementCommitted delivers event to all subscribers
func (f *Fanout) PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error {
	f.mu.RLock()
	subs := make([]Publisher, len(f.subscribers))
	copy(subs, f.subscribers)
	f.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.PublishPlacementCommitted(ctx, event); err != nil {
			f.logger.Warn("failed to publish placement event",
				"player_id", event.PlayerID,
				"gamemode", event.Gamemode,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event it receives
type Recorder struct {
	mu     sync.Mutex
	events []domain.PlacementCommitted
}

// PublishPlacementCommitted records event
func (r *Recorder) PublishPlacementCommitted(ctx context.Context, event domain.PlacementCommitted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []domain.PlacementCommitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PlacementCommitted, len(r.events))
	copy(out, r.events)
	return out
}
