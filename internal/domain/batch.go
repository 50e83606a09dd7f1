package domain

// PlacementSubmission is one parsed line of a bulk placement import
type PlacementSubmission struct {
	IGN      string `json:"ign"`
	Gamemode string `json:"gamemode"`
	Tier     string `json:"tier"`
	Region   string `json:"region,omitempty"`
}

// BatchPlacementSubmission represents multiple placement submissions
type BatchPlacementSubmission struct {
	Entries []PlacementSubmission `json:"entries"`
}

// RegistrationSubmission is one parsed line of a bulk registration import
type RegistrationSubmission struct {
	IGN         string `json:"ign"`
	DisplayName string `json:"display_name,omitempty"`
}

// BatchRegistration represents multiple registrations
type BatchRegistration struct {
	Entries []RegistrationSubmission `json:"entries"`
}

// EntryError describes why one line of a batch failed
type EntryError struct {
	Line    int    `json:"line"`
	IGN     string `json:"ign"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// BatchResult summarizes a batch. Errors are ordered by line.
type BatchResult struct {
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	Errors       []EntryError `json:"errors"`
}

// Messages returns the per-line reasons suitable for display
func (r BatchResult) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}
