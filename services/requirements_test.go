package services

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-dio/models"
)

func TestRequirementsBuildNormalisesColumns(t *testing.T) {
	in := twoSectorInputs()
	reg := twoSectorRegistry(t)

	req, err := NewRequirementsBuilder(newTestLogger()).Build(reg, in.Outputs, in.EconomicFlows)
	require.NoError(t, err)

	want := [][]float64{{0.1, 0.2}, {0.2, 0.1}}
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, want[i][j], req.A.At(i, j), 1e-12, "A[%d][%d]", i, j)
		}
	}
	assert.Equal(t, 0, req.Malformed.Total)
	assert.True(t, req.DemandDerived)
	assert.InDelta(t, 50, req.Demand[0], 1e-9)
	assert.InDelta(t, 160, req.Demand[1], 1e-9)
}

func TestRequirementsCountsMalformedRecords(t *testing.T) {
	in := twoSectorInputs()
	reg := twoSectorRegistry(t)
	in.Outputs = append(in.Outputs[:1:1], models.SectorOutput{SectorCode: engineering, TotalOutput: 0})
	records := []models.EconomicFlowRecord{
		{SourceProcessID: aircraft, TargetSectorCode: aircraft, Amount: 10, Line: 2},
		{SourceProcessID: "999999/US", TargetSectorCode: aircraft, Amount: 1, Line: 3},
		{SourceProcessID: aircraft, TargetSectorCode: "000000", Amount: 1, Line: 4},
		{SourceProcessID: aircraft, TargetSectorCode: aircraft, Amount: math.NaN(), Line: 5},
		{SourceProcessID: aircraft, TargetSectorCode: aircraft, Amount: -3, Line: 6},
		{SourceProcessID: aircraft, TargetSectorCode: engineering, Amount: 1, Line: 7},
	}

	req, err := NewRequirementsBuilder(newTestLogger()).Build(reg, in.Outputs, records)
	require.NoError(t, err)

	assert.Equal(t, 5, req.Malformed.Total)
	assert.Equal(t, map[string]int{
		reasonUnknownSource: 1,
		reasonUnknownTarget: 1,
		reasonInvalidAmount: 2,
		reasonZeroOutput:    1,
	}, req.Malformed.ByReason)
	require.Len(t, req.Malformed.Examples, 5)
	assert.Equal(t, 3, req.Malformed.Examples[0].Line)
	assert.InDelta(t, 0.1, req.A.At(0, 0), 1e-12)
}

func TestRequirementsColumnSumAboveOne(t *testing.T) {
	reg := twoSectorRegistry(t)
	outputs := []models.SectorOutput{
		{SectorCode: aircraft, TotalOutput: 10},
		{SectorCode: engineering, TotalOutput: 10},
	}
	records := []models.EconomicFlowRecord{
		{SourceProcessID: aircraft, TargetSectorCode: aircraft, Amount: 6},
		{SourceProcessID: engineering, TargetSectorCode: aircraft, Amount: 6},
	}

	_, err := NewRequirementsBuilder(newTestLogger()).Build(reg, outputs, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMalformedMatrixInput))

	var colErr *models.ColumnSumError
	require.True(t, errors.As(err, &colErr))
	require.Len(t, colErr.Sectors, 1)
	assert.Equal(t, aircraft, colErr.Sectors[0].Code)
	assert.InDelta(t, 1.2, colErr.Sectors[0].Value, 1e-12)
}

func TestRequirementsUsesSuppliedDemand(t *testing.T) {
	in := twoSectorInputs()
	reg := twoSectorRegistry(t)
	in.Outputs[0].FinalDemand, in.Outputs[0].HasDemand = 50, true
	in.Outputs[1].FinalDemand, in.Outputs[1].HasDemand = 160, true

	req, err := NewRequirementsBuilder(newTestLogger()).Build(reg, in.Outputs, in.EconomicFlows)
	require.NoError(t, err)
	assert.False(t, req.DemandDerived)
	assert.Equal(t, []float64{50, 160}, req.Demand)
}

func TestRequirementsRejectsDuplicateOutput(t *testing.T) {
	reg := twoSectorRegistry(t)
	outputs := []models.SectorOutput{
		{SectorCode: aircraft, TotalOutput: 10},
		{SectorCode: aircraft, TotalOutput: 12},
	}
	_, err := NewRequirementsBuilder(newTestLogger()).Build(reg, outputs, nil)
	assert.ErrorIs(t, err, models.ErrMalformedMatrixInput)
}
