package loader

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"open-dio/models"
)

// Paths locates every build input. CharacterizationPath may be empty, in
// which case the model config's factors are used.
type Paths struct {
	Sectors          string
	SectorOutputs    string
	EconomicFlows    string
	EnvironmentFlows string
	ProcessSectors   string
	Characterization string
	Crosswalk        string
}

// LoadBuildInputs reads all build inputs concurrently. The first failure
// cancels the remaining reads.
func LoadBuildInputs(ctx context.Context, p Paths) (*models.BuildInputs, error) {
	in := &models.BuildInputs{}
	g, ctx := errgroup.WithContext(ctx)

	load := func(name string, fn func() error) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(); err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			return nil
		})
	}

	load("sectors", func() (err error) { in.Sectors, err = LoadSectors(p.Sectors); return })
	load("sector outputs", func() (err error) { in.Outputs, err = LoadSectorOutputs(p.SectorOutputs); return })
	load("economic flows", func() (err error) { in.EconomicFlows, err = LoadEconomicFlows(p.EconomicFlows); return })
	load("environmental flows", func() (err error) {
		in.EnvironmentFlows, err = LoadEnvironmentalFlows(p.EnvironmentFlows)
		return
	})
	load("process sectors", func() (err error) { in.ProcessLinks, err = LoadProcessSectors(p.ProcessSectors); return })
	load("crosswalk", func() (err error) { in.CrosswalkRows, err = LoadCrosswalk(p.Crosswalk); return })
	if p.Characterization != "" {
		load("characterization factors", func() (err error) {
			in.Characterization, err = LoadCharacterization(p.Characterization)
			return
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// LoadSectors reads the sector registry: code, name, category,
// is_priority_relevant. The last two columns are optional.
func LoadSectors(path string) ([]models.Sector, error) {
	t, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols, err := t.require("code", "name")
	if err != nil {
		return nil, err
	}
	catCol := t.optional("category")
	prioCol := t.optional("is_priority_relevant")

	sectors := make([]models.Sector, 0, len(t.rows))
	for _, row := range t.rows {
		prio, _ := parseBool(cell(row, prioCol))
		sectors = append(sectors, models.Sector{
			Code:               cell(row, cols[0]),
			Name:               cell(row, cols[1]),
			Category:           cell(row, catCol),
			IsPriorityRelevant: prio,
		})
	}
	return sectors, nil
}

// LoadSectorOutputs reads sector_code, total_output and optional final_demand.
func LoadSectorOutputs(path string) ([]models.SectorOutput, error) {
	t, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols, err := t.require("sector_code", "total_output")
	if err != nil {
		return nil, err
	}
	demandCol := t.optional("final_demand")

	out := make([]models.SectorOutput, 0, len(t.rows))
	for i, row := range t.rows {
		total := parseAmount(cell(row, cols[1]))
		if math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
			return nil, fmt.Errorf("loader: %s line %d: invalid total_output %q", t.name, t.lines[i], cell(row, cols[1]))
		}
		so := models.SectorOutput{SectorCode: cell(row, cols[0]), TotalOutput: total}
		if raw := cell(row, demandCol); raw != "" {
			d := parseAmount(raw)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return nil, fmt.Errorf("loader: %s line %d: invalid final_demand %q", t.name, t.lines[i], raw)
			}
			so.FinalDemand, so.HasDemand = d, true
		}
		out = append(out, so)
	}
	return out, nil
}

// LoadEconomicFlows reads the economic edge list. Bad amounts are kept as NaN
// and counted as malformed by the requirements builder.
func LoadEconomicFlows(path string) ([]models.EconomicFlowRecord, error) {
	t, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols, err := t.require("sourceProcessId", "targetSectorCode", "amount")
	if err != nil {
		return nil, err
	}

	recs := make([]models.EconomicFlowRecord, 0, len(t.rows))
	for i, row := range t.rows {
		recs = append(recs, models.EconomicFlowRecord{
			SourceProcessID:  cell(row, cols[0]),
			TargetSectorCode: cell(row, cols[1]),
			Amount:           parseAmount(cell(row, cols[2])),
			Line:             t.lines[i],
		})
	}
	return recs, nil
}

// LoadEnvironmentalFlows reads processId, flowName, context, amount, unit.
func LoadEnvironmentalFlows(path string) ([]models.EnvironmentalFlowRecord, error) {
	t, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols, err := t.require("processId", "flowName", "amount", "unit")
	if err != nil {
		return nil, err
	}
	ctxCol := t.optional("context")

	recs := make([]models.EnvironmentalFlowRecord, 0, len(t.rows))
	for i, row := range t.rows {
		recs = append(recs, models.EnvironmentalFlowRecord{
			ProcessID: cell(row, cols[0]),
			FlowName:  cell(row, cols[1]),
			Context:   cell(row, ctxCol),
			Amount:    parseAmount(cell(row, cols[2])),
			Unit:      cell(row, cols[3]),
			Line:      t.lines[i],
		})
	}
	return recs, nil
}

// LoadProcessSectors reads the process → sector consumption table.
// A blank share means the whole process.
func LoadProcessSectors(path string) ([]models.ProcessSectorLink, error) {
	t, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols, err := t.require("processId", "sectorCode")
	if err != nil {
		return nil, err
	}
	shareCol := t.optional("share")

	links := make([]models.ProcessSectorLink, 0, len(t.rows))
	for i, row := range t.rows {
		share := 1.0
		if raw := cell(row, shareCol); raw != "" {
			share = parseAmount(raw)
			if math.IsNaN(share) || math.IsInf(share, 0) || share < 0 {
				return nil, fmt.Errorf("loader: %s line %d: invalid share %q", t.name, t.lines[i], raw)
			}
		}
		links = append(links, models.ProcessSectorLink{
			ProcessID:  cell(row, cols[0]),
			SectorCode: cell(row, cols[1]),
			Share:      share,
		})
	}
	return links, nil
}

// LoadCharacterization reads flowCategory, impactCategory, factor.
func LoadCharacterization(path string) ([]models.CharacterizationFactor, error) {
	t, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols, err := t.require("flowCategory", "impactCategory", "factor")
	if err != nil {
		return nil, err
	}

	factors := make([]models.CharacterizationFactor, 0, len(t.rows))
	for i, row := range t.rows {
		f := parseAmount(cell(row, cols[2]))
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return nil, fmt.Errorf("loader: %s line %d: invalid factor %q", t.name, t.lines[i], cell(row, cols[2]))
		}
		factors = append(factors, models.CharacterizationFactor{
			FlowCategory:   cell(row, cols[0]),
			ImpactCategory: cell(row, cols[1]),
			Factor:         f,
		})
	}
	return factors, nil
}
