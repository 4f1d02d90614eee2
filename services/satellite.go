package services

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"open-dio/models"
	"open-dio/utils"
)

const (
	shareEpsilon  = 1e-9
	ctxCheckEvery = 4096
)

// Satellite is the aggregated environmental satellite matrix.
type Satellite struct {
	// B[f][j] is the amount of flow category f per dollar of sector j output.
	B              *mat.Dense
	FlowCategories []string
	// LowConfidence is indexed by registry order.
	LowConfidence []bool

	Records          int
	ClassifiedByRule int
	ClassifiedByKW   int
	Unlinked         int
	Unclassified     models.UnclassifiedBucket
	OverShare        []string
	NoProcess        []string
}

// SatelliteAggregator classifies raw flows and aggregates them per sector.
type SatelliteAggregator struct {
	classifier *FlowClassifier
	logger     *utils.Logger
}

// NewSatelliteAggregator creates an aggregator using the given classifier.
func NewSatelliteAggregator(classifier *FlowClassifier, logger *utils.Logger) *SatelliteAggregator {
	return &SatelliteAggregator{classifier: classifier, logger: logger}
}

// Aggregate builds B. Each classified flow of a process is multiplied by the
// process's share in every linked sector, summed, and divided by the
// sector's total output. Sectors without linked processes or without output
// keep a zero column and are flagged low-confidence.
func (a *SatelliteAggregator) Aggregate(ctx context.Context, reg *models.SectorRegistry, output []float64,
	flowCategories []models.FlowCategory, flows []models.EnvironmentalFlowRecord, links []models.ProcessSectorLink) (*Satellite, error) {

	n, f := reg.Len(), len(flowCategories)
	if len(output) != n {
		return nil, fmt.Errorf("satellite: %w: output vector has %d entries for %d sectors", models.ErrMalformedMatrixInput, len(output), n)
	}
	if f == 0 {
		return nil, fmt.Errorf("satellite: no flow categories configured")
	}

	catIndex := make(map[string]int, f)
	sat := &Satellite{
		B:              mat.NewDense(f, n, nil),
		FlowCategories: make([]string, f),
		LowConfidence:  make([]bool, n),
		Records:        len(flows),
	}
	for i, c := range flowCategories {
		catIndex[c.Code] = i
		sat.FlowCategories[i] = c.Code
	}

	type share struct {
		sector int
		share  float64
	}
	byProcess := make(map[string][]share)
	shareTotals := make(map[string]float64)
	linked := make([]bool, n)
	for _, l := range links {
		j, ok := reg.Index(l.SectorCode)
		if !ok {
			a.logger.Warn("[satellite] Process %s linked to unknown sector %q; link ignored", l.ProcessID, l.SectorCode)
			continue
		}
		byProcess[l.ProcessID] = append(byProcess[l.ProcessID], share{sector: j, share: l.Share})
		shareTotals[l.ProcessID] += l.Share
		linked[j] = true
	}
	for p, total := range shareTotals {
		if total > 1+shareEpsilon {
			sat.OverShare = append(sat.OverShare, p)
		}
	}
	sort.Strings(sat.OverShare)
	if len(sat.OverShare) > 0 {
		a.logger.Warn("[satellite] %d process(es) have shares summing above 1", len(sat.OverShare))
	}

	// Per-process totals by flow category, then distributed to sectors.
	perProcess := make(map[string][]float64)
	for k, r := range flows {
		if k%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("satellite: %w", err)
			}
		}
		c := a.classifier.Classify(r)
		if !c.OK {
			sat.Unclassified.Add(r, c.Reason)
			continue
		}
		if c.Source == models.ClassifiedByKeyword {
			sat.ClassifiedByKW++
		} else {
			sat.ClassifiedByRule++
		}
		if _, ok := byProcess[r.ProcessID]; !ok {
			sat.Unlinked++
			continue
		}
		totals, ok := perProcess[r.ProcessID]
		if !ok {
			totals = make([]float64, f)
			perProcess[r.ProcessID] = totals
		}
		totals[catIndex[c.FlowCategory]] += c.Amount
	}

	processes := make([]string, 0, len(perProcess))
	for p := range perProcess {
		processes = append(processes, p)
	}
	sort.Strings(processes)
	for _, p := range processes {
		totals := perProcess[p]
		for _, s := range byProcess[p] {
			for fi, v := range totals {
				if v != 0 {
					sat.B.Set(fi, s.sector, sat.B.At(fi, s.sector)+s.share*v)
				}
			}
		}
	}

	for j := 0; j < n; j++ {
		x := output[j]
		if !linked[j] || x <= 0 {
			for fi := 0; fi < f; fi++ {
				sat.B.Set(fi, j, 0)
			}
			sat.LowConfidence[j] = true
			if !linked[j] {
				sat.NoProcess = append(sat.NoProcess, reg.At(j).Code)
			}
			continue
		}
		for fi := 0; fi < f; fi++ {
			if v := sat.B.At(fi, j); v != 0 {
				sat.B.Set(fi, j, v/x)
			}
		}
	}

	if u := sat.Unclassified.Len(); u > 0 {
		a.logger.Warn("[satellite] %d flow(s) unclassified: %v", u, sat.Unclassified.ByReason)
	}
	if len(sat.NoProcess) > 0 {
		a.logger.Warn("[satellite] %d sector(s) have no linked processes", len(sat.NoProcess))
	}
	a.logger.Info("[satellite] Aggregated %d flows (%d by table, %d by keyword, %d unlinked) into %d×%d B",
		len(flows), sat.ClassifiedByRule, sat.ClassifiedByKW, sat.Unlinked, f, n)
	return sat, nil
}
