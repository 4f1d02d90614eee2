package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// SectorMultipliers holds the compiled per-$1000 intensities of one sector.
// Values are total (direct + supply chain); Direct excludes the supply chain.
type SectorMultipliers struct {
	Code          string
	Name          string
	Values        map[string]float64
	Direct        map[string]float64
	LowConfidence bool
}

// MultiplierTable maps sector code to compiled multipliers.
type MultiplierTable map[string]SectorMultipliers

// Codes returns the sector codes in sorted order.
func (t MultiplierTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LowConfidenceCodes returns the sorted codes of flagged sectors.
func (t MultiplierTable) LowConfidenceCodes() []string {
	var codes []string
	for code, m := range t {
		if m.LowConfidence {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// ArtifactEntry is one sector of the published multiplier artifact. Impact
// values are keyed by the category's artifact key (GHG, Energy, ...).
type ArtifactEntry struct {
	Name          string
	Impacts       map[string]float64
	LowConfidence bool
}

// MarshalJSON flattens the impact keys next to name and lowConfidence.
func (e ArtifactEntry) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Impacts)+2)
	for k, v := range e.Impacts {
		obj[k] = v
	}
	obj["name"] = e.Name
	obj["lowConfidence"] = e.LowConfidence
	return json.Marshal(obj)
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
func (e *ArtifactEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Impacts = make(map[string]float64)
	for k, v := range raw {
		switch k {
		case "name":
			if err := json.Unmarshal(v, &e.Name); err != nil {
				return err
			}
		case "lowConfidence":
			if err := json.Unmarshal(v, &e.LowConfidence); err != nil {
				return err
			}
		default:
			var f float64
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			e.Impacts[k] = f
		}
	}
	return nil
}

// Artifact is the compiled multiplier file keyed by internal sector code.
type Artifact map[string]ArtifactEntry

// Artifact renders the table in its published form, with impact values under
// each category's artifact key.
func (t MultiplierTable) Artifact(categories []ImpactCategory) Artifact {
	art := make(Artifact, len(t))
	for code, m := range t {
		impacts := make(map[string]float64, len(categories))
		for _, ic := range categories {
			impacts[ic.Key] = m.Values[ic.Code]
		}
		art[code] = ArtifactEntry{Name: m.Name, Impacts: impacts, LowConfidence: m.LowConfidence}
	}
	return art
}

// Table reads a published artifact back into a multiplier table. Every
// category key must be present, finite and non-negative for every sector.
func (a Artifact) Table(categories []ImpactCategory) (MultiplierTable, error) {
	table := make(MultiplierTable, len(a))
	for code, e := range a {
		m := SectorMultipliers{
			Code:          code,
			Name:          e.Name,
			Values:        make(map[string]float64, len(categories)),
			LowConfidence: e.LowConfidence,
		}
		for _, ic := range categories {
			v, ok := e.Impacts[ic.Key]
			if !ok {
				return nil, fmt.Errorf("artifact: sector %s has no %q value", code, ic.Key)
			}
			if !validIntensity(v) {
				return nil, &NegativeMultiplierError{Sector: code, Category: ic.Code, Value: v}
			}
			m.Values[ic.Code] = v
		}
		table[code] = m
	}
	return table, nil
}

// Covers checks that every sector carries a finite, non-negative total for
// each of categories. Tables read back from a store are checked this way
// before they are evaluated.
func (t MultiplierTable) Covers(categories []ImpactCategory) error {
	for _, code := range t.Codes() {
		m := t[code]
		for _, ic := range categories {
			v, ok := m.Values[ic.Code]
			if !ok {
				return fmt.Errorf("multipliers: sector %s has no %s value", code, ic.Code)
			}
			if !validIntensity(v) {
				return &NegativeMultiplierError{Sector: code, Category: ic.Code, Value: v}
			}
		}
	}
	return nil
}

func validIntensity(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
