package services

import (
	"fmt"
	"math"
	"sort"

	"open-dio/models"
)

// Calculator evaluates spending vectors against compiled multipliers. It
// holds no mutable state and is safe for concurrent use.
type Calculator struct {
	multipliers models.MultiplierTable
	crosswalk   *Crosswalk
	categories  []models.ImpactCategory
}

// NewCalculator creates a Calculator. Categories fix the order of
// CalculationResult.Impacts.
func NewCalculator(table models.MultiplierTable, cw *Crosswalk, categories []models.ImpactCategory) *Calculator {
	return &Calculator{multipliers: table, crosswalk: cw, categories: categories}
}

// Calculate evaluates every input against all impact categories.
func (c *Calculator) Calculate(inputs []models.SpendingInput) *models.CalculationResult {
	return c.calculate(inputs, c.categories)
}

// CalculateFor evaluates inputs against the named categories only.
func (c *Calculator) CalculateFor(inputs []models.SpendingInput, categoryCodes []string) (*models.CalculationResult, error) {
	if len(categoryCodes) == 0 {
		return c.Calculate(inputs), nil
	}
	want := make(map[string]bool, len(categoryCodes))
	for _, code := range categoryCodes {
		want[code] = true
	}
	var cats []models.ImpactCategory
	for _, ic := range c.categories {
		if want[ic.Code] {
			cats = append(cats, ic)
			delete(want, ic.Code)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for code := range want {
			unknown = append(unknown, code)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("calculator: unknown impact categories %v", unknown)
	}
	return c.calculate(inputs, cats), nil
}

func (c *Calculator) calculate(inputs []models.SpendingInput, cats []models.ImpactCategory) *models.CalculationResult {
	res := &models.CalculationResult{
		ImpactsByCategory: make(map[string]float64, len(cats)),
		SectorBreakdown:   make(map[string]models.SectorImpact),
	}
	for _, ic := range cats {
		res.ImpactsByCategory[ic.Code] = 0
	}
	lowConf := make(map[string]bool)

	for i, in := range inputs {
		code := NormaliseExternalCode(in.Code)
		if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0 {
			err := fmt.Errorf("input %d (%q): amount %v: %w", i, in.Code, in.Amount, models.ErrInvalidAmount)
			res.Rejected = append(res.Rejected, models.NewRejectedInput(i, in, err))
			continue
		}
		res.TotalSpending += in.Amount

		r := c.crosswalk.Resolve(code)
		if r.Unmapped {
			reason := models.UnmappedNoCrosswalk
			if r.Level != "" {
				reason = models.UnmappedExplicit
			}
			res.UnmappedAmount += in.Amount
			res.UnmappedCodes = append(res.UnmappedCodes, models.UnmappedCode{Code: code, Amount: in.Amount, Reason: reason})
			continue
		}

		for _, a := range r.Allocations {
			allocated := in.Amount * a.Weight
			m, ok := c.multipliers[a.SectorCode]
			if !ok {
				res.UnmappedAmount += allocated
				res.UnmappedCodes = append(res.UnmappedCodes, models.UnmappedCode{
					Code: code, Sector: a.SectorCode, Amount: allocated, Reason: models.UnmappedUnknownSector,
				})
				continue
			}

			entry, ok := res.SectorBreakdown[a.SectorCode]
			if !ok {
				entry = models.SectorImpact{
					Name:          m.Name,
					Impacts:       make(map[string]float64, len(cats)),
					LowConfidence: m.LowConfidence,
				}
			}
			entry.Spending += allocated
			scaled := allocated / perThousand
			for _, ic := range cats {
				v := m.Values[ic.Code] * scaled
				entry.Impacts[ic.Code] += v
				res.ImpactsByCategory[ic.Code] += v
			}
			res.SectorBreakdown[a.SectorCode] = entry
			if m.LowConfidence {
				lowConf[a.SectorCode] = true
			}
		}
	}

	res.Impacts = make([]models.ImpactValue, 0, len(cats))
	for _, ic := range cats {
		res.Impacts = append(res.Impacts, models.ImpactValue{
			Category:    ic.Code,
			Name:        ic.Name,
			Value:       res.ImpactsByCategory[ic.Code],
			Unit:        ic.Unit,
			Description: ic.Description,
		})
	}
	for code := range lowConf {
		res.LowConfidenceSectors = append(res.LowConfidenceSectors, code)
	}
	sort.Strings(res.LowConfidenceSectors)
	return res
}

// Categories returns the impact categories in result order.
func (c *Calculator) Categories() []models.ImpactCategory { return c.categories }

// Multipliers returns the compiled table the calculator evaluates against.
func (c *Calculator) Multipliers() models.MultiplierTable { return c.multipliers }
