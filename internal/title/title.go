// Package title derives the cosmetic combat rank from a player's global points.
package title

import (
	"fmt"
	"sort"

	"github.com/tierboard/internal/domain"
)

// Table is a threshold table ordered highest threshold first.
// The last row must have MinPoints 0 so every non-negative total is covered.
type Table []domain.Title

// Canonical is the seven-step combat rank table
var Canonical = Table{
	{Name: "Combat Grandmaster", IconClass: "combat-grandmaster", VisualTier: 7, MinPoints: 400},
	{Name: "Combat Master", IconClass: "combat-master", VisualTier: 6, MinPoints: 250},
	{Name: "Combat Ace", IconClass: "combat-ace", VisualTier: 5, MinPoints: 100},
	{Name: "Combat Specialist", IconClass: "combat-specialist", VisualTier: 4, MinPoints: 50},
	{Name: "Combat Cadet", IconClass: "combat-cadet", VisualTier: 3, MinPoints: 20},
	{Name: "Combat Novice", IconClass: "combat-novice", VisualTier: 2, MinPoints: 10},
	{Name: "Rookie", IconClass: "rookie", VisualTier: 1, MinPoints: 0},
}

// Validate checks ordering and coverage of the table
func (t Table) Validate() error {
	if len(t) == 0 {
		return &domain.InvalidInputError{Reason: "empty title table"}
	}
	if !sort.SliceIsSorted(t, func(i, j int) bool { return t[i].MinPoints > t[j].MinPoints }) {
		return &domain.InvalidInputError{Reason: "title thresholds must be strictly descending"}
	}
	for i := 1; i < len(t); i++ {
		if t[i].MinPoints == t[i-1].MinPoints {
			return &domain.InvalidInputError{Reason: fmt.Sprintf("duplicate threshold %d", t[i].MinPoints)}
		}
	}
	if t[len(t)-1].MinPoints != 0 {
		return &domain.InvalidInputError{Reason: "lowest threshold must be 0"}
	}
	return nil
}

// Resolver maps points to a title using a fixed table
type Resolver struct {
	table Table
}

// NewResolver validates table and returns a resolver over it
func NewResolver(table Table) (*Resolver, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	t := make(Table, len(table))
	copy(t, table)
	return &Resolver{table: t}, nil
}

// Default resolves against the canonical table
var Default = &Resolver{table: Canonical}

// TitleFor returns the first row whose threshold is at most points
func (r *Resolver) TitleFor(points int64) (domain.Title, error) {
	if points < 0 {
		return domain.Title{}, &domain.InvalidInputError{Reason: fmt.Sprintf("negative points %d", points)}
	}
	for _, row := range r.table {
		if points >= row.MinPoints {
			return row, nil
		}
	}
	// unreachable for a validated table
	return r.table[len(r.table)-1], nil
}

// Table returns a copy of the thresholds, highest first
func (r *Resolver) Table() Table {
	t := make(Table, len(r.table))
	copy(t, r.table)
	return t
}
