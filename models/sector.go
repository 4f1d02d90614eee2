package models

import "fmt"

// Sector is one internal economic sector of the model.
type Sector struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	IsPriorityRelevant bool   `json:"is_priority_relevant"`
}

// SectorOutput carries the reference-year economic totals for a sector.
// FinalDemand is the reference demand vector y used for model validation.
type SectorOutput struct {
	SectorCode  string
	TotalOutput float64
	FinalDemand float64
	HasDemand   bool
}

// SectorRegistry is the ordered, immutable list of internal sectors.
// Matrix rows and columns follow registry order.
type SectorRegistry struct {
	sectors []Sector
	index   map[string]int
}

// NewSectorRegistry builds a registry, rejecting empty and duplicate codes.
func NewSectorRegistry(sectors []Sector) (*SectorRegistry, error) {
	r := &SectorRegistry{
		sectors: make([]Sector, len(sectors)),
		index:   make(map[string]int, len(sectors)),
	}
	copy(r.sectors, sectors)

	for i, s := range r.sectors {
		if s.Code == "" {
			return nil, fmt.Errorf("registry: sector at row %d has empty code", i+1)
		}
		if _, dup := r.index[s.Code]; dup {
			return nil, fmt.Errorf("registry: duplicate sector code %q", s.Code)
		}
		r.index[s.Code] = i
	}
	return r, nil
}

// Len returns the number of sectors.
func (r *SectorRegistry) Len() int { return len(r.sectors) }

// Index returns the matrix index of a sector code.
func (r *SectorRegistry) Index(code string) (int, bool) {
	i, ok := r.index[code]
	return i, ok
}

// At returns the sector at matrix index i.
func (r *SectorRegistry) At(i int) Sector { return r.sectors[i] }

// Lookup returns the sector for a code.
func (r *SectorRegistry) Lookup(code string) (Sector, bool) {
	i, ok := r.index[code]
	if !ok {
		return Sector{}, false
	}
	return r.sectors[i], true
}

// Sectors returns a copy of all sectors in registry order.
func (r *SectorRegistry) Sectors() []Sector {
	out := make([]Sector, len(r.sectors))
	copy(out, r.sectors)
	return out
}

// Codes returns sector codes in registry order.
func (r *SectorRegistry) Codes() []string {
	out := make([]string, len(r.sectors))
	for i, s := range r.sectors {
		out[i] = s.Code
	}
	return out
}
