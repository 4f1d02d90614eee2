package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-dio/models"
)

func TestCrosswalkFallsBackThroughLevels(t *testing.T) {
	cw := mustCrosswalk(t, []models.CrosswalkRow{
		{ExternalCodePrefix: "336411", PrefixLength: 6, InternalSectorCode: "336411", Weight: 1},
		{ExternalCodePrefix: "33641", PrefixLength: 5, InternalSectorCode: "336412", Weight: 1},
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336413", Weight: 0.6},
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336414", Weight: 0.4},
		{ExternalCodePrefix: "336", PrefixLength: 3, InternalSectorCode: "336999", Weight: 1},
	})

	tests := []struct {
		code    string
		level   string
		sectors []string
	}{
		{"336411", "6", []string{"336411"}},
		{"336419", "5", []string{"336412"}},
		{"336499", "4", []string{"336413", "336414"}},
		{"3369", "3", []string{"336999"}},
		{"3364-11", "6", []string{"336411"}},
	}
	for _, tt := range tests {
		res := cw.Resolve(tt.code)
		require.False(t, res.Unmapped, tt.code)
		assert.Equal(t, tt.level, res.Level, tt.code)
		got := make([]string, len(res.Allocations))
		for i, a := range res.Allocations {
			got[i] = a.SectorCode
		}
		assert.Equal(t, tt.sectors, got, tt.code)
	}

	res := cw.Resolve("ZZZZZZ")
	assert.True(t, res.Unmapped)
	assert.Empty(t, res.Level)
	assert.Empty(t, res.Allocations)

	assert.Equal(t, []string{"6", "5", "4", "3"}, cw.Strategies())
	assert.Equal(t, 4, cw.Groups())
}

func TestCrosswalkWeightsSumToOne(t *testing.T) {
	cw := mustCrosswalk(t, []models.CrosswalkRow{
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336413", Weight: 0.3},
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336414", Weight: 0.3},
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336413", Weight: 0.4},
	})

	res := cw.Resolve("336400")
	require.Len(t, res.Allocations, 2, "duplicate targets are merged")
	sum := 0.0
	for _, a := range res.Allocations {
		sum += a.Weight
	}
	assert.InDelta(t, 1, sum, 1e-9)
	assert.InDelta(t, 0.7, res.Allocations[0].Weight, 1e-12)
}

func TestCrosswalkExplicitUnmapped(t *testing.T) {
	cw := mustCrosswalk(t, []models.CrosswalkRow{
		{ExternalCodePrefix: "99910", PrefixLength: 5, InternalSectorCode: models.UnmappedSectorCode},
		{ExternalCodePrefix: "999", PrefixLength: 3, InternalSectorCode: "111110", Weight: 1},
	}, "111110")

	// An explicit unmapped prefix stops the chain before the broader level.
	res := cw.Resolve("999100")
	assert.True(t, res.Unmapped)
	assert.Equal(t, "5", res.Level)
	assert.Empty(t, res.Allocations)

	res = cw.Resolve("999200")
	assert.False(t, res.Unmapped)
	assert.Equal(t, "3", res.Level)
	assert.Equal(t, []models.Allocation{{SectorCode: "111110", Weight: 1}}, res.Allocations)
}

func TestCrosswalkValidationCollectsIssues(t *testing.T) {
	_, err := NewCrosswalk([]models.CrosswalkRow{
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336413", Weight: 0.6, Line: 2},
		{ExternalCodePrefix: "3364", PrefixLength: 4, InternalSectorCode: "336414", Weight: 0.3, Line: 3},
		{ExternalCodePrefix: "5413", PrefixLength: 4, InternalSectorCode: "541300", Weight: -1, Line: 4},
		{ExternalCodePrefix: "54", PrefixLength: 2, InternalSectorCode: "541300", Weight: 1, Line: 5},
		{ExternalCodePrefix: "33641", PrefixLength: 6, InternalSectorCode: "336411", Weight: 1, Line: 6},
		{ExternalCodePrefix: "999", PrefixLength: 3, InternalSectorCode: "", Line: 7},
		{ExternalCodePrefix: "999", PrefixLength: 3, InternalSectorCode: "999000", Weight: 1, Line: 8},
	}, CrosswalkOptions{Levels: []int{6, 5, 4, 3}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCrosswalkWeightMismatch))

	var cwErr *models.CrosswalkValidationError
	require.True(t, errors.As(err, &cwErr))
	require.Len(t, cwErr.Issues, 5)

	details := make(map[string]string)
	for _, is := range cwErr.Issues {
		details[is.Prefix] = is.Detail
	}
	tests := []struct {
		prefix string
		detail string
	}{
		{"3364", "weights sum to 0.9"},
		{"5413", "must be positive"},
		{"54", "not a configured level"},
		{"33641", "prefix has 5 characters"},
		{"999", "also carries mappings"},
	}
	for _, tt := range tests {
		require.Contains(t, details, tt.prefix)
		assert.Contains(t, details[tt.prefix], tt.detail, tt.prefix)
	}

	for _, is := range cwErr.Issues {
		if is.Prefix == "3364" {
			assert.InDelta(t, 0.9, is.Sum, 1e-12)
		}
	}
}

func TestCrosswalkIdentityAndUnknownSectors(t *testing.T) {
	known := map[string]bool{"336411": true, "541330": true}
	cw, err := NewCrosswalk([]models.CrosswalkRow{
		{ExternalCodePrefix: "5413", PrefixLength: 4, InternalSectorCode: "541399", Weight: 1},
	}, CrosswalkOptions{
		Levels:             []int{6, 5, 4, 3},
		MatchInternalCodes: true,
		KnownSector:        func(c string) bool { return known[c] },
	})
	require.NoError(t, err)

	res := cw.Resolve("541330")
	assert.Equal(t, "identity", res.Level)
	assert.Equal(t, []models.Allocation{{SectorCode: "541330", Weight: 1}}, res.Allocations)

	assert.Equal(t, "4", cw.Resolve("541310").Level)
	assert.Equal(t, []string{"541399"}, cw.UnknownSectors())
}
