package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/tier"
)

func TestSeedSubmissionsAreAccepted(t *testing.T) {
	seen := make(map[domain.Region]bool)
	for i := 0; i < 500; i++ {
		sub := seedSubmission(i)

		require.NoError(t, domain.ValidateIGN(sub.IGN), sub.IGN)
		_, err := domain.ParseGamemode(sub.Gamemode)
		require.NoError(t, err)
		_, err = tier.Default.Parse(sub.Tier)
		require.NoError(t, err)

		region, err := domain.ParseRegion(sub.Region)
		require.NoError(t, err, "player %d region %q", i, sub.Region)
		seen[region] = true
	}
	assert.Len(t, seen, len(domain.Regions()))
}
