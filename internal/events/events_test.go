package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierboard/internal/domain"
)

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	boom := errors.New("broker down")
	failing := PublisherFunc(func(ctx context.Context, event domain.PlacementCommitted) error {
		return boom
	})

	f := NewFanout(slog.Default(), first, failing)
	f.Subscribe(second)

	event := domain.PlacementCommitted{PlayerID: "p1", Gamemode: domain.GamemodeSword, NewTier: domain.TierHT1}
	err := f.PublishPlacementCommitted(context.Background(), event)
	assert.ErrorIs(t, err, boom)

	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
	assert.Equal(t, event, second.Events()[0])
}
