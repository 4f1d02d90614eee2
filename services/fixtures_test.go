package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"open-dio/config"
	"open-dio/models"
)

// The two-sector economy used across the engine tests:
//
//	x = [100, 200]
//	A = [[0.1, 0.2],
//	     [0.2, 0.1]]
//	L = 1/0.77 · [[0.9, 0.2],
//	              [0.2, 0.9]]
//
// Aircraft emits 500 kg CO2, engineering 2 kg CH4.
const (
	aircraft    = "336411"
	engineering = "541330"
	det         = 0.77
)

func twoSectors() []models.Sector {
	return []models.Sector{
		{Code: aircraft, Name: "Aircraft Manufacturing", Category: "Manufacturing"},
		{Code: engineering, Name: "Engineering Services", Category: "Services"},
	}
}

func twoSectorRegistry(t *testing.T) *models.SectorRegistry {
	t.Helper()
	reg, err := models.NewSectorRegistry(twoSectors())
	require.NoError(t, err)
	return reg
}

func twoSectorInputs() *models.BuildInputs {
	return &models.BuildInputs{
		Sectors: twoSectors(),
		Outputs: []models.SectorOutput{
			{SectorCode: aircraft, TotalOutput: 100},
			{SectorCode: engineering, TotalOutput: 200},
		},
		EconomicFlows: []models.EconomicFlowRecord{
			{SourceProcessID: aircraft + "/US", TargetSectorCode: aircraft, Amount: 10, Line: 2},
			{SourceProcessID: engineering + "/US", TargetSectorCode: aircraft, Amount: 20, Line: 3},
			{SourceProcessID: aircraft, TargetSectorCode: engineering, Amount: 40, Line: 4},
			{SourceProcessID: engineering, TargetSectorCode: engineering, Amount: 20, Line: 5},
		},
		EnvironmentFlows: []models.EnvironmentalFlowRecord{
			{ProcessID: "p1", FlowName: "Carbon dioxide", Context: "air", Amount: 500, Unit: "kg", Line: 2},
			{ProcessID: "p2", FlowName: "Methane", Context: "air", Amount: 2000, Unit: "g", Line: 3},
		},
		ProcessLinks: []models.ProcessSectorLink{
			{ProcessID: "p1", SectorCode: aircraft, Share: 1},
			{ProcessID: "p2", SectorCode: engineering, Share: 1},
		},
		CrosswalkRows: []models.CrosswalkRow{
			{ExternalCodePrefix: "336411", PrefixLength: 6, InternalSectorCode: aircraft, Weight: 1},
			{ExternalCodePrefix: "5413", PrefixLength: 4, InternalSectorCode: engineering, Weight: 1},
			{ExternalCodePrefix: "999", PrefixLength: 3, InternalSectorCode: models.UnmappedSectorCode},
		},
	}
}

// Expected total GHG multipliers per $1000.
func expectedGHG() (float64, float64) {
	dA, dB := 5.0, 0.01*28
	return (dA*0.9 + dB*0.2) / det * 1000, (dA*0.2 + dB*0.9) / det * 1000
}

func testModel() *config.ModelConfig {
	m := config.DefaultModelConfig()
	m.Leontief.BlockSize = 1
	return m
}

func ghgOnly() []models.ImpactCategory {
	return []models.ImpactCategory{{Code: "GHG", Key: "GHG", Name: "Greenhouse Gas Emissions", Unit: "kg CO2 eq"}}
}

func mustCrosswalk(t *testing.T, rows []models.CrosswalkRow, known ...string) *Crosswalk {
	t.Helper()
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	opts := CrosswalkOptions{Levels: []int{6, 5, 4, 3}, WeightTolerance: 1e-6}
	if len(known) > 0 {
		opts.KnownSector = func(code string) bool { return set[code] }
	}
	cw, err := NewCrosswalk(rows, opts)
	require.NoError(t, err)
	return cw
}
