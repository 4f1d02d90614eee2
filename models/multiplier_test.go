package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ghgWater = []ImpactCategory{
	{Code: "GHG", Key: "GHG"},
	{Code: "WATER", Key: "Water"},
}

func TestArtifactTableRejectsBadValues(t *testing.T) {
	for name, v := range map[string]float64{
		"negative": -1,
		"nan":      math.NaN(),
		"+inf":     math.Inf(1),
		"-inf":     math.Inf(-1),
	} {
		art := Artifact{"336411": {Name: "Aircraft", Impacts: map[string]float64{"GHG": 126, "Water": v}}}
		_, err := art.Table(ghgWater)
		require.Error(t, err, name)

		var negErr *NegativeMultiplierError
		require.True(t, errors.As(err, &negErr), name)
		assert.Equal(t, "WATER", negErr.Category, name)
	}
}

func TestArtifactTableMissingKey(t *testing.T) {
	art := Artifact{"336411": {Name: "Aircraft", Impacts: map[string]float64{"GHG": 126}}}
	_, err := art.Table(ghgWater)
	assert.Error(t, err)
}

func TestArtifactTableRoundTrip(t *testing.T) {
	table := MultiplierTable{
		"336411": {Code: "336411", Name: "Aircraft", Values: map[string]float64{"GHG": 126, "WATER": 40}},
	}
	got, err := table.Artifact(ghgWater).Table(ghgWater)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got["336411"].Values["WATER"])
}

func TestMultiplierTableCovers(t *testing.T) {
	table := MultiplierTable{
		"336411": {Code: "336411", Values: map[string]float64{"GHG": 126, "WATER": 40}},
		"541330": {Code: "541330", Values: map[string]float64{"GHG": 12}},
	}
	assert.NoError(t, table.Covers(ghgWater[:1]))
	assert.Error(t, table.Covers(ghgWater))

	table["541330"].Values["WATER"] = math.Inf(1)
	assert.ErrorIs(t, table.Covers(ghgWater), ErrNegativeMultiplier)
}
