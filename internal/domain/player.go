package domain

import "time"

// Player represents a ranked player. GlobalPoints is a denormalized cache
// owned by the points aggregator.
type Player struct {
	ID           string    `json:"id"`
	IGN          string    `json:"ign"`
	DisplayName  string    `json:"display_name,omitempty"`
	Region       Region    `json:"region,omitempty"`
	Device       string    `json:"device,omitempty"`
	GlobalPoints int64     `json:"global_points"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPlayerRequest carries the fields accepted on explicit registration
type NewPlayerRequest struct {
	IGN         string `json:"ign"`
	DisplayName string `json:"display_name,omitempty"`
	Region      string `json:"region,omitempty"`
	Device      string `json:"device,omitempty"`
}
