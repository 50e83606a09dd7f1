package domain

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Gamemode is a competitive category in its lowercase storage form
type Gamemode string

const (
	GamemodeCrystal Gamemode = "crystal"
	GamemodeSword   Gamemode = "sword"
	GamemodeUHC     Gamemode = "uhc"
	GamemodePot     Gamemode = "pot"
	GamemodeNethPot Gamemode = "nethpot"
	GamemodeSMP     Gamemode = "smp"
	GamemodeAxe     Gamemode = "axe"
	GamemodeMace    Gamemode = "mace"
)

var gamemodeOrder = []Gamemode{
	GamemodeCrystal,
	GamemodeSword,
	GamemodeUHC,
	GamemodePot,
	GamemodeNethPot,
	GamemodeSMP,
	GamemodeAxe,
	GamemodeMace,
}

var gamemodes = mapset.NewThreadUnsafeSet(gamemodeOrder...)

// Gamemodes returns every gamemode in display order
func Gamemodes() []Gamemode {
	out := make([]Gamemode, len(gamemodeOrder))
	copy(out, gamemodeOrder)
	return out
}

// ParseGamemode normalizes s to the storage form and checks membership
func ParseGamemode(s string) (Gamemode, error) {
	g := Gamemode(strings.ToLower(strings.TrimSpace(s)))
	if !gamemodes.Contains(g) {
		return "", NewValidationError("gamemode", s, "unknown gamemode")
	}
	return g, nil
}

// Valid reports whether g is one of the fixed gamemodes
func (g Gamemode) Valid() bool {
	return gamemodes.Contains(g)
}

// Region is a player's home region
type Region string

const (
	RegionNone Region = ""
	RegionNA   Region = "NA"
	RegionEU   Region = "EU"
	RegionAsia Region = "ASIA"
	RegionOCE  Region = "OCE"
	RegionSA   Region = "SA"
	RegionAF   Region = "AF"
)

var regionOrder = []Region{RegionNA, RegionEU, RegionAsia, RegionOCE, RegionSA, RegionAF}

var regions = mapset.NewThreadUnsafeSet(regionOrder...)

// Regions returns every region in display order
func Regions() []Region {
	out := make([]Region, len(regionOrder))
	copy(out, regionOrder)
	return out
}

// ParseRegion normalizes s; an empty string yields RegionNone
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RegionNone, nil
	}
	r := Region(strings.ToUpper(s))
	if !regions.Contains(r) {
		return RegionNone, NewValidationError("region", s, "unknown region")
	}
	return r, nil
}
