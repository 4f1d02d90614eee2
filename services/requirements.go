package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"open-dio/models"
	"open-dio/utils"
)

const (
	reasonInvalidAmount = "invalid_amount"
	reasonUnknownSource = "unknown_source"
	reasonUnknownTarget = "unknown_target"
	reasonZeroOutput    = "zero_output_target"

	maxMalformedExamples = 20
	columnSumEpsilon     = 1e-12
)

// Requirements is the output of the economic requirements builder.
type Requirements struct {
	// A is the direct-requirements matrix: A[i][j] is the dollars of sector
	// i's output needed per dollar of sector j's output.
	A *mat.Dense
	// Output is total industry output x by registry index.
	Output []float64
	// Demand is the reference final demand y by registry index.
	Demand        []float64
	DemandDerived bool
	Records       int
	Malformed     models.MalformedSummary
}

// RequirementsBuilder turns the economic edge list into A.
type RequirementsBuilder struct {
	logger *utils.Logger
}

// NewRequirementsBuilder creates a RequirementsBuilder.
func NewRequirementsBuilder(logger *utils.Logger) *RequirementsBuilder {
	return &RequirementsBuilder{logger: logger}
}

// Build accumulates records into a sector × sector dollar matrix and divides
// each column by the sector's total output. Records that reference unknown
// sectors, carry invalid amounts or target a sector without output are
// skipped and counted. A column summing above 1 is a fatal ColumnSumError.
func (b *RequirementsBuilder) Build(reg *models.SectorRegistry, outputs []models.SectorOutput, records []models.EconomicFlowRecord) (*Requirements, error) {
	n := reg.Len()
	if n == 0 {
		return nil, fmt.Errorf("requirements: %w: empty sector registry", models.ErrMalformedMatrixInput)
	}

	res := &Requirements{
		A:       mat.NewDense(n, n, nil),
		Output:  make([]float64, n),
		Demand:  make([]float64, n),
		Records: len(records),
		Malformed: models.MalformedSummary{
			ByReason: make(map[string]int),
		},
	}

	hasDemand := false
	seen := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		j, ok := reg.Index(o.SectorCode)
		if !ok {
			b.logger.Warn("[requirements] Output row for unknown sector %q ignored", o.SectorCode)
			continue
		}
		if seen[o.SectorCode] {
			return nil, fmt.Errorf("requirements: %w: duplicate output row for sector %q", models.ErrMalformedMatrixInput, o.SectorCode)
		}
		seen[o.SectorCode] = true
		res.Output[j] = o.TotalOutput
		if o.HasDemand {
			res.Demand[j] = o.FinalDemand
			hasDemand = true
		}
	}
	if missing := n - len(seen); missing > 0 {
		b.logger.Warn("[requirements] %d sector(s) have no output row; their columns stay zero", missing)
	}

	for _, r := range records {
		reason := ""
		i, srcOK := resolveSource(reg, r.SourceProcessID)
		j, dstOK := reg.Index(r.TargetSectorCode)
		switch {
		case math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount < 0:
			reason = reasonInvalidAmount
		case !srcOK:
			reason = reasonUnknownSource
		case !dstOK:
			reason = reasonUnknownTarget
		case res.Output[j] <= 0:
			reason = reasonZeroOutput
		}
		if reason != "" {
			res.Malformed.Add(r, reason, maxMalformedExamples)
			continue
		}
		res.A.Set(i, j, res.A.At(i, j)+r.Amount)
	}

	for j := 0; j < n; j++ {
		x := res.Output[j]
		if x <= 0 {
			continue
		}
		for i := 0; i < n; i++ {
			if v := res.A.At(i, j); v != 0 {
				res.A.Set(i, j, v/x)
			}
		}
	}

	if over := columnSumViolations(reg, res.A); len(over) > 0 {
		return res, &models.ColumnSumError{Sectors: over}
	}

	if !hasDemand {
		// y = x - A·x
		x := mat.NewVecDense(n, append([]float64(nil), res.Output...))
		var ax mat.VecDense
		ax.MulVec(res.A, x)
		for i := 0; i < n; i++ {
			res.Demand[i] = res.Output[i] - ax.AtVec(i)
		}
		res.DemandDerived = true
	}

	if res.Malformed.Total > 0 {
		b.logger.Warn("[requirements] Skipped %d malformed economic record(s): %v",
			res.Malformed.Total, res.Malformed.ByReason)
	}
	b.logger.Info("[requirements] Built %d×%d A from %d records", n, n, len(records)-res.Malformed.Total)
	return res, nil
}

// resolveSource maps a source process id to a sector: the id itself, or the
// id with its "/<location>" suffix removed ("336411/US" → "336411").
func resolveSource(reg *models.SectorRegistry, id string) (int, bool) {
	if i, ok := reg.Index(id); ok {
		return i, true
	}
	if k := strings.LastIndex(id, "/"); k > 0 {
		return reg.Index(id[:k])
	}
	return 0, false
}

func columnSumViolations(reg *models.SectorRegistry, a *mat.Dense) []models.SectorDiagnostic {
	n, _ := a.Dims()
	var over []models.SectorDiagnostic
	for j := 0; j < n; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += a.At(i, j)
		}
		if sum > 1+columnSumEpsilon {
			s := reg.At(j)
			over = append(over, models.SectorDiagnostic{Code: s.Code, Name: s.Name, Value: sum})
		}
	}
	sort.Slice(over, func(x, y int) bool { return over[x].Value > over[y].Value })
	return over
}
