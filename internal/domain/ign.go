package domain

import "regexp"

// MaxIGNLength is the longest in-game name accepted
const MaxIGNLength = 16

var ignPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateIGN checks length and charset. Matching is case-sensitive
// everywhere else, so no normalization happens here.
func ValidateIGN(ign string) error {
	if len(ign) == 0 {
		return NewValidationError("ign", ign, "must not be empty")
	}
	if len(ign) > MaxIGNLength {
		return NewValidationError("ign", ign, "must be at most 16 characters")
	}
	if !ignPattern.MatchString(ign) {
		return NewValidationError("ign", ign, "may only contain letters, digits and underscores")
	}
	return nil
}
