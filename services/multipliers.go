package services

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"open-dio/models"
	"open-dio/utils"
)

// perThousand scales per-dollar intensities to the per-$1000 unit basis.
const perThousand = 1000

// CompiledMultipliers is the output of the multiplier compiler.
type CompiledMultipliers struct {
	Table   models.MultiplierTable
	Clamped int
}

// MultiplierCompiler combines characterization factors, the satellite matrix
// and the Leontief inverse into per-sector impact multipliers.
type MultiplierCompiler struct {
	clampTolerance float64
	logger         *utils.Logger
}

// NewMultiplierCompiler creates a compiler. Negative values whose magnitude
// is within clampTolerance of the category's largest value are clamped to 0.
func NewMultiplierCompiler(clampTolerance float64, logger *utils.Logger) *MultiplierCompiler {
	return &MultiplierCompiler{clampTolerance: clampTolerance, logger: logger}
}

// CharacterizationMatrix builds C (impact category × flow category). Factors
// naming unknown categories or repeating a pair are reported together.
func CharacterizationMatrix(impacts []models.ImpactCategory, flowCategories []string, factors []models.CharacterizationFactor) (*mat.Dense, error) {
	ii := make(map[string]int, len(impacts))
	for i, ic := range impacts {
		ii[ic.Code] = i
	}
	fi := make(map[string]int, len(flowCategories))
	for i, c := range flowCategories {
		fi[c] = i
	}

	c := mat.NewDense(len(impacts), len(flowCategories), nil)
	seen := make(map[[2]string]bool, len(factors))
	var errs []error
	for _, f := range factors {
		r, ok := ii[f.ImpactCategory]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown impact category %q", f.ImpactCategory))
			continue
		}
		col, ok := fi[f.FlowCategory]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown flow category %q", f.FlowCategory))
			continue
		}
		key := [2]string{f.FlowCategory, f.ImpactCategory}
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate factor %s → %s", f.FlowCategory, f.ImpactCategory))
			continue
		}
		seen[key] = true
		c.Set(r, col, f.Factor)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("characterization: %w", errors.Join(errs...))
	}
	return c, nil
}

// Compile computes N = C·B·L × 1000 and the direct table C·B × 1000. A
// sector whose satellite column is entirely zero is flagged low-confidence
// and keeps its computed, supply-chain-only value.
func (mc *MultiplierCompiler) Compile(reg *models.SectorRegistry, impacts []models.ImpactCategory, c *mat.Dense, sat *Satellite, l *mat.Dense) (*CompiledMultipliers, error) {
	n := reg.Len()
	if _, bc := sat.B.Dims(); bc != n {
		return nil, fmt.Errorf("multipliers: %w: B has %d columns for %d sectors", models.ErrMalformedMatrixInput, bc, n)
	}

	var direct, total mat.Dense
	direct.Mul(c, sat.B)
	total.Mul(&direct, l)
	direct.Scale(perThousand, &direct)
	total.Scale(perThousand, &total)

	out := &CompiledMultipliers{Table: make(models.MultiplierTable, n)}
	for k, ic := range impacts {
		if err := mc.clampRow(&total, k, reg, ic.Code, &out.Clamped); err != nil {
			return nil, err
		}
		if err := mc.clampRow(&direct, k, reg, ic.Code, &out.Clamped); err != nil {
			return nil, err
		}
	}

	f, _ := sat.B.Dims()
	for j := 0; j < n; j++ {
		sec := reg.At(j)
		low := sat.LowConfidence[j]
		if !low {
			low = true
			for fi := 0; fi < f; fi++ {
				if sat.B.At(fi, j) != 0 {
					low = false
					break
				}
			}
		}
		m := models.SectorMultipliers{
			Code:          sec.Code,
			Name:          sec.Name,
			Values:        make(map[string]float64, len(impacts)),
			Direct:        make(map[string]float64, len(impacts)),
			LowConfidence: low,
		}
		for k, ic := range impacts {
			m.Values[ic.Code] = total.At(k, j)
			m.Direct[ic.Code] = direct.At(k, j)
		}
		out.Table[sec.Code] = m
	}

	if out.Clamped > 0 {
		mc.logger.Debug("[multipliers] Clamped %d value(s) of numerical noise to zero", out.Clamped)
	}
	mc.logger.Info("[multipliers] Compiled %d sectors × %d categories (%d low-confidence)",
		n, len(impacts), len(out.Table.LowConfidenceCodes()))
	return out, nil
}

// clampRow zeroes tiny negative values in row k and fails on real ones.
func (mc *MultiplierCompiler) clampRow(m *mat.Dense, k int, reg *models.SectorRegistry, category string, clamped *int) error {
	_, n := m.Dims()
	scale := 1.0
	for j := 0; j < n; j++ {
		if v := m.At(k, j); v > scale {
			scale = v
		}
	}
	for j := 0; j < n; j++ {
		v := m.At(k, j)
		if v >= 0 {
			continue
		}
		if -v <= mc.clampTolerance*scale {
			m.Set(k, j, 0)
			*clamped++
			continue
		}
		return &models.NegativeMultiplierError{Sector: reg.At(j).Code, Category: category, Value: v}
	}
	return nil
}
