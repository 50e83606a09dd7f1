// Package tier holds the static tier catalog: tier code to point value and
// display label. Point values are relied upon by external consumers and
// historical comparisons and must not change.
package tier

import (
	"strings"

	"github.com/tierboard/internal/domain"
)

// Definition is one immutable row of the catalog
type Definition struct {
	Code   domain.TierCode `json:"code"`
	Points int64           `json:"points"`
	Label  string          `json:"label"`
	Ranked bool            `json:"ranked"`
}

// Band 5 to 1, Low before High, ascending points; sentinels last.
var definitions = []Definition{
	{Code: domain.TierLT5, Points: 5, Label: "Low Tier 5", Ranked: true},
	{Code: domain.TierHT5, Points: 10, Label: "High Tier 5", Ranked: true},
	{Code: domain.TierLT4, Points: 15, Label: "Low Tier 4", Ranked: true},
	{Code: domain.TierHT4, Points: 20, Label: "High Tier 4", Ranked: true},
	{Code: domain.TierLT3, Points: 25, Label: "Low Tier 3", Ranked: true},
	{Code: domain.TierHT3, Points: 30, Label: "High Tier 3", Ranked: true},
	{Code: domain.TierLT2, Points: 35, Label: "Low Tier 2", Ranked: true},
	{Code: domain.TierHT2, Points: 40, Label: "High Tier 2", Ranked: true},
	{Code: domain.TierLT1, Points: 45, Label: "Low Tier 1", Ranked: true},
	{Code: domain.TierHT1, Points: 50, Label: "High Tier 1", Ranked: true},
	{Code: domain.TierNotRanked, Points: 0, Label: "Not Ranked"},
	{Code: domain.TierRetired, Points: 0, Label: "Retired"},
}

// Catalog is a read-only lookup over the tier definitions
type Catalog struct {
	byCode  map[domain.TierCode]Definition
	byAlias map[string]domain.TierCode
	ordered []Definition
}

// Default is the canonical catalog
var Default = NewCatalog()

// NewCatalog builds the canonical catalog
func NewCatalog() *Catalog {
	c := &Catalog{
		byCode:  make(map[domain.TierCode]Definition, len(definitions)),
		byAlias: make(map[string]domain.TierCode, len(definitions)*2),
		ordered: make([]Definition, len(definitions)),
	}
	copy(c.ordered, definitions)
	for _, d := range definitions {
		c.byCode[d.Code] = d
		c.byAlias[strings.ToUpper(string(d.Code))] = d.Code
		c.byAlias[strings.ToUpper(d.Label)] = d.Code
	}
	return c
}

// Parse resolves a code or display label, ignoring case and surrounding space
func (c *Catalog) Parse(s string) (domain.TierCode, error) {
	code, ok := c.byAlias[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", &domain.UnknownTierError{Code: s}
	}
	return code, nil
}

// Lookup returns the full definition of code
func (c *Catalog) Lookup(code domain.TierCode) (Definition, error) {
	d, ok := c.byCode[code]
	if !ok {
		return Definition{}, &domain.UnknownTierError{Code: string(code)}
	}
	return d, nil
}

// PointsFor returns the point value of code
func (c *Catalog) PointsFor(code domain.TierCode) (int64, error) {
	d, err := c.Lookup(code)
	if err != nil {
		return 0, err
	}
	return d.Points, nil
}

// DisplayLabelFor returns the display label of code
func (c *Catalog) DisplayLabelFor(code domain.TierCode) (string, error) {
	d, err := c.Lookup(code)
	if err != nil {
		return "", err
	}
	return d.Label, nil
}

// AllCodes returns every code in catalog order
func (c *Catalog) AllCodes() []domain.TierCode {
	out := make([]domain.TierCode, len(c.ordered))
	for i, d := range c.ordered {
		out[i] = d.Code
	}
	return out
}

// Definitions returns a copy of the catalog rows in catalog order
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}
