package services

import (
	"math"

	"open-dio/config"
	"open-dio/models"
)

// Comparisons turns a GHG total into lay equivalents.
type Comparisons struct {
	factors []config.ComparisonConfig
}

// NewComparisons creates a generator for the configured equivalency factors.
func NewComparisons(factors []config.ComparisonConfig) *Comparisons {
	return &Comparisons{factors: factors}
}

// Equivalents returns one entry per configured factor, in configured order.
// A non-positive or non-finite total yields an empty list.
func (c *Comparisons) Equivalents(ghgKg float64) []models.Equivalent {
	out := []models.Equivalent{}
	if ghgKg <= 0 || math.IsNaN(ghgKg) || math.IsInf(ghgKg, 0) {
		return out
	}
	for _, f := range c.factors {
		out = append(out, models.Equivalent{
			Key:         f.Key,
			Label:       f.Label,
			Count:       ghgKg / f.KgPerUnit,
			KgPerUnit:   f.KgPerUnit,
			Description: f.Description,
		})
	}
	return out
}
