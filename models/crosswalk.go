package models

// UnmappedSectorCode marks a crosswalk row that explicitly maps a prefix to nothing.
const UnmappedSectorCode = "UNMAPPED"

// CrosswalkRow is one row of the raw crosswalk table.
type CrosswalkRow struct {
	ExternalCodePrefix string  `json:"externalCodePrefix"`
	PrefixLength       int     `json:"prefixLength"`
	InternalSectorCode string  `json:"internalSectorCode"`
	Weight             float64 `json:"weight"`
	Line               int     `json:"-"`
}

// ExplicitlyUnmapped reports whether the row flags its prefix as unmapped.
func (r CrosswalkRow) ExplicitlyUnmapped() bool {
	return r.InternalSectorCode == "" || r.InternalSectorCode == UnmappedSectorCode
}

// Allocation assigns a fraction of an external code's spending to a sector.
type Allocation struct {
	SectorCode string  `json:"sectorCode"`
	Weight     float64 `json:"weight"`
}

// Resolution is the outcome of resolving one external code.
// Level is the strategy that matched ("6", "5", ..., or "identity");
// it is empty when nothing matched.
type Resolution struct {
	Code        string       `json:"code"`
	Level       string       `json:"level,omitempty"`
	Allocations []Allocation `json:"allocations,omitempty"`
	Unmapped    bool         `json:"unmapped"`
}
