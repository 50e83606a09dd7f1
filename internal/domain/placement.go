package domain

import "time"

// TierCode is an internal tier label such as HT1 or LT3
type TierCode string

const (
	TierHT1       TierCode = "HT1"
	TierLT1       TierCode = "LT1"
	TierHT2       TierCode = "HT2"
	TierLT2       TierCode = "LT2"
	TierHT3       TierCode = "HT3"
	TierLT3       TierCode = "LT3"
	TierHT4       TierCode = "HT4"
	TierLT4       TierCode = "LT4"
	TierHT5       TierCode = "HT5"
	TierLT5       TierCode = "LT5"
	TierNotRanked TierCode = "NR"
	TierRetired   TierCode = "RETIRED"
)

// Ranked reports whether the code contributes to point totals
func (c TierCode) Ranked() bool {
	return c != TierNotRanked && c != TierRetired && c != ""
}

// LedgerEntry is the current placement of one player in one gamemode.
// Points mirror the catalog value at write time.
type LedgerEntry struct {
	PlayerID  string    `json:"player_id"`
	Gamemode  Gamemode  `json:"gamemode"`
	Tier      TierCode  `json:"tier"`
	Points    int64     `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RankEntry is one row of a rank snapshot
type RankEntry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	IGN      string `json:"ign,omitempty"`
	Points   int64  `json:"points"`
}

// RankPage is one window of a board. Limit is the page size that was
// applied after clamping, not the number of entries returned.
type RankPage struct {
	Gamemode Gamemode    `json:"gamemode,omitempty"`
	Entries  []RankEntry `json:"entries"`
	Total    int64       `json:"total"`
	Offset   int         `json:"offset"`
	Limit    int         `json:"limit"`
}

// Title is the cosmetic combat rank derived from global points
type Title struct {
	Name       string `json:"title"`
	IconClass  string `json:"icon_class"`
	VisualTier int    `json:"visual_tier"`
	MinPoints  int64  `json:"min_points"`
}

// Standing is what the presentation layer renders for one player
type Standing struct {
	Player     Player        `json:"player"`
	Rank       int64         `json:"rank"`
	Title      Title         `json:"title"`
	Placements []LedgerEntry `json:"placements"`
}

// PlacementCommitted is emitted after a placement and its recomputed
// total have been committed.
type PlacementCommitted struct {
	PlayerID        string    `json:"player_id"`
	IGN             string    `json:"ign"`
	Gamemode        Gamemode  `json:"gamemode"`
	NewTier         TierCode  `json:"new_tier"`
	NewGlobalPoints int64     `json:"new_global_points"`
	NewRank         int64     `json:"new_rank"`
	CommittedAt     time.Time `json:"committed_at"`
}
