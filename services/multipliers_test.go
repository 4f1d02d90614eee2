package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"open-dio/config"
	"open-dio/models"
)

func twoSectorInverse() *mat.Dense {
	return mat.NewDense(2, 2, []float64{0.9 / det, 0.2 / det, 0.2 / det, 0.9 / det})
}

func TestCompileTwoSectors(t *testing.T) {
	m := config.DefaultModelConfig()
	in := twoSectorInputs()
	reg := twoSectorRegistry(t)
	sat := aggregate(t, []float64{100, 200}, in.EnvironmentFlows, in.ProcessLinks)

	c, err := CharacterizationMatrix(m.ImpactCategories, sat.FlowCategories, m.CharacterizationFactors)
	require.NoError(t, err)
	out, err := NewMultiplierCompiler(m.Leontief.ClampTolerance, newTestLogger()).
		Compile(reg, m.ImpactCategories, c, sat, twoSectorInverse())
	require.NoError(t, err)

	wantA, wantB := expectedGHG()
	assert.InDelta(t, wantA, out.Table[aircraft].Values["GHG"], 1e-9)
	assert.InDelta(t, wantB, out.Table[engineering].Values["GHG"], 1e-9)
	assert.InDelta(t, 5000, out.Table[aircraft].Direct["GHG"], 1e-9)
	assert.InDelta(t, 280, out.Table[engineering].Direct["GHG"], 1e-9)
	assert.Zero(t, out.Table[aircraft].Values["WATER"])
	assert.Equal(t, "Aircraft Manufacturing", out.Table[aircraft].Name)
	assert.Empty(t, out.Table.LowConfidenceCodes())

	for _, code := range out.Table.Codes() {
		for cat, v := range out.Table[code].Values {
			assert.GreaterOrEqual(t, v, 0.0, "%s/%s", code, cat)
		}
	}
}

func TestCompileFlagsEmptySatelliteColumn(t *testing.T) {
	m := config.DefaultModelConfig()
	reg := twoSectorRegistry(t)
	flows := []models.EnvironmentalFlowRecord{{ProcessID: "p1", FlowName: "Carbon dioxide", Amount: 500, Unit: "kg"}}
	links := []models.ProcessSectorLink{
		{ProcessID: "p1", SectorCode: aircraft, Share: 1},
		{ProcessID: "p2", SectorCode: engineering, Share: 1},
	}
	sat := aggregate(t, []float64{100, 200}, flows, links)
	require.False(t, sat.LowConfidence[1], "linked sector is not flagged by the aggregator")

	c, err := CharacterizationMatrix(m.ImpactCategories, sat.FlowCategories, m.CharacterizationFactors)
	require.NoError(t, err)
	out, err := NewMultiplierCompiler(1e-9, newTestLogger()).Compile(reg, m.ImpactCategories, c, sat, twoSectorInverse())
	require.NoError(t, err)

	assert.Equal(t, []string{engineering}, out.Table.LowConfidenceCodes())
	// Supply-chain contribution is kept as computed.
	assert.InDelta(t, 5*0.2/det*1000, out.Table[engineering].Values["GHG"], 1e-9)
}

func TestCompileClampsNoiseAndRejectsNegatives(t *testing.T) {
	reg := twoSectorRegistry(t)
	cats := ghgOnly()
	c := mat.NewDense(1, 1, []float64{1})
	sat := &Satellite{
		B:              mat.NewDense(1, 2, []float64{1, -1e-13}),
		FlowCategories: []string{"CO2"},
		LowConfidence:  []bool{false, false},
	}
	identity := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	out, err := NewMultiplierCompiler(1e-9, newTestLogger()).Compile(reg, cats, c, sat, identity)
	require.NoError(t, err)
	assert.Zero(t, out.Table[engineering].Values["GHG"])
	assert.Equal(t, 2, out.Clamped, "total and direct are both clamped")

	sat.B.Set(0, 1, -0.5)
	_, err = NewMultiplierCompiler(1e-9, newTestLogger()).Compile(reg, cats, c, sat, identity)
	require.Error(t, err)
	var neg *models.NegativeMultiplierError
	require.True(t, errors.As(err, &neg))
	assert.Equal(t, engineering, neg.Sector)
	assert.ErrorIs(t, err, models.ErrNegativeMultiplier)
}

func TestCharacterizationMatrixRejectsUnknownCategories(t *testing.T) {
	_, err := CharacterizationMatrix(ghgOnly(), []string{"CO2"}, []models.CharacterizationFactor{
		{FlowCategory: "CO2", ImpactCategory: "GHG", Factor: 1},
		{FlowCategory: "CO2", ImpactCategory: "GHG", Factor: 2},
		{FlowCategory: "SO2", ImpactCategory: "GHG", Factor: 1},
		{FlowCategory: "CO2", ImpactCategory: "ACID", Factor: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate factor")
	assert.Contains(t, err.Error(), `unknown flow category "SO2"`)
	assert.Contains(t, err.Error(), `unknown impact category "ACID"`)
}

func TestCompileIsDeterministic(t *testing.T) {
	in := twoSectorInputs()
	e1, _, err := NewPipeline(testModel(), 2, newTestLogger(), nil).Build(context.Background(), in)
	require.NoError(t, err)
	e2, _, err := NewPipeline(testModel(), 2, newTestLogger(), nil).Build(context.Background(), twoSectorInputs())
	require.NoError(t, err)
	assert.Equal(t, e1.Multipliers, e2.Multipliers)
}
