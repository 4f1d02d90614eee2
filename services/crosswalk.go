package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"open-dio/models"
)

// ResolutionStrategy is one step of the crosswalk fallback chain.
type ResolutionStrategy interface {
	Name() string
	Resolve(code string) (models.Resolution, bool)
}

type prefixGroup struct {
	allocations []models.Allocation
	unmapped    bool
}

// prefixStrategy matches the first length characters of a code.
type prefixStrategy struct {
	length int
	groups map[string]prefixGroup
}

func (s *prefixStrategy) Name() string { return strconv.Itoa(s.length) }

func (s *prefixStrategy) Resolve(code string) (models.Resolution, bool) {
	if len(code) < s.length {
		return models.Resolution{}, false
	}
	g, ok := s.groups[code[:s.length]]
	if !ok {
		return models.Resolution{}, false
	}
	res := models.Resolution{Code: code, Level: s.Name(), Unmapped: g.unmapped}
	if !g.unmapped {
		res.Allocations = append([]models.Allocation(nil), g.allocations...)
	}
	return res, true
}

// identityStrategy resolves a code that is itself an internal sector code.
type identityStrategy struct {
	known func(string) bool
}

func (s *identityStrategy) Name() string { return "identity" }

func (s *identityStrategy) Resolve(code string) (models.Resolution, bool) {
	if !s.known(code) {
		return models.Resolution{}, false
	}
	return models.Resolution{
		Code:        code,
		Level:       s.Name(),
		Allocations: []models.Allocation{{SectorCode: code, Weight: 1}},
	}, true
}

// CrosswalkOptions configures NewCrosswalk.
type CrosswalkOptions struct {
	Levels          []int
	WeightTolerance float64
	// MatchInternalCodes puts an identity strategy ahead of the prefix levels.
	MatchInternalCodes bool
	// KnownSector reports whether an internal code exists. When nil, target
	// codes are not checked and the identity strategy is disabled.
	KnownSector func(string) bool
}

// Crosswalk maps external industry codes to weighted internal sectors by
// trying each strategy in order.
type Crosswalk struct {
	strategies     []ResolutionStrategy
	groups         int
	unknownSectors []string
}

// NewCrosswalk validates the rows and builds the strategy chain. Every
// violation (weights not summing to 1, non-positive weights, prefix lengths
// that do not match their level, unmapped prefixes mixed with mappings) is
// collected into one *models.CrosswalkValidationError.
func NewCrosswalk(rows []models.CrosswalkRow, opts CrosswalkOptions) (*Crosswalk, error) {
	if opts.WeightTolerance <= 0 {
		opts.WeightTolerance = 1e-6
	}
	levels := make(map[int]*prefixStrategy, len(opts.Levels))
	for _, lvl := range opts.Levels {
		levels[lvl] = &prefixStrategy{length: lvl, groups: make(map[string]prefixGroup)}
	}

	type groupKey struct {
		level  int
		prefix string
	}
	type rawGroup struct {
		weights  map[string]float64
		unmapped bool
	}
	raw := make(map[groupKey]*rawGroup)
	var order []groupKey
	var issues []models.CrosswalkIssue
	unknown := make(map[string]bool)

	for _, r := range rows {
		if _, ok := levels[r.PrefixLength]; !ok {
			issues = append(issues, models.CrosswalkIssue{Level: r.PrefixLength, Prefix: r.ExternalCodePrefix,
				Detail: fmt.Sprintf("line %d: prefix length %d is not a configured level", r.Line, r.PrefixLength)})
			continue
		}
		if len(r.ExternalCodePrefix) != r.PrefixLength {
			issues = append(issues, models.CrosswalkIssue{Level: r.PrefixLength, Prefix: r.ExternalCodePrefix,
				Detail: fmt.Sprintf("line %d: prefix has %d characters", r.Line, len(r.ExternalCodePrefix))})
			continue
		}
		k := groupKey{level: r.PrefixLength, prefix: r.ExternalCodePrefix}
		g, ok := raw[k]
		if !ok {
			g = &rawGroup{weights: make(map[string]float64)}
			raw[k] = g
			order = append(order, k)
		}
		if r.ExplicitlyUnmapped() {
			g.unmapped = true
			continue
		}
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) || r.Weight <= 0 {
			issues = append(issues, models.CrosswalkIssue{Level: k.level, Prefix: k.prefix, Sum: r.Weight,
				Detail: fmt.Sprintf("line %d: weight for %s must be positive", r.Line, r.InternalSectorCode)})
			continue
		}
		g.weights[r.InternalSectorCode] += r.Weight
		if opts.KnownSector != nil && !opts.KnownSector(r.InternalSectorCode) {
			unknown[r.InternalSectorCode] = true
		}
	}

	for _, k := range order {
		g := raw[k]
		if g.unmapped {
			if len(g.weights) > 0 {
				issues = append(issues, models.CrosswalkIssue{Level: k.level, Prefix: k.prefix,
					Detail: "explicitly unmapped prefix also carries mappings"})
				continue
			}
			levels[k.level].groups[k.prefix] = prefixGroup{unmapped: true}
			continue
		}
		if len(g.weights) == 0 {
			// Every row of the group was already reported.
			continue
		}

		allocs := make([]models.Allocation, 0, len(g.weights))
		sum := 0.0
		for code, w := range g.weights {
			allocs = append(allocs, models.Allocation{SectorCode: code, Weight: w})
			sum += w
		}
		if math.Abs(sum-1) > opts.WeightTolerance {
			issues = append(issues, models.CrosswalkIssue{Level: k.level, Prefix: k.prefix, Sum: sum,
				Detail: fmt.Sprintf("weights sum to %.9g", sum)})
			continue
		}
		sort.Slice(allocs, func(i, j int) bool { return allocs[i].SectorCode < allocs[j].SectorCode })
		levels[k.level].groups[k.prefix] = prefixGroup{allocations: allocs}
	}

	if len(issues) > 0 {
		return nil, &models.CrosswalkValidationError{Issues: issues}
	}

	cw := &Crosswalk{groups: len(order)}
	if opts.MatchInternalCodes && opts.KnownSector != nil {
		cw.strategies = append(cw.strategies, &identityStrategy{known: opts.KnownSector})
	}
	for _, lvl := range opts.Levels {
		cw.strategies = append(cw.strategies, levels[lvl])
	}
	for code := range unknown {
		cw.unknownSectors = append(cw.unknownSectors, code)
	}
	sort.Strings(cw.unknownSectors)
	return cw, nil
}

// Resolve maps an external code to weighted allocations. The first strategy
// that matches wins; a code no strategy matches is unmapped.
func (c *Crosswalk) Resolve(code string) models.Resolution {
	code = NormaliseExternalCode(code)
	for _, s := range c.strategies {
		if res, ok := s.Resolve(code); ok {
			return res
		}
	}
	return models.Resolution{Code: code, Unmapped: true}
}

// Strategies returns the names of the strategies in resolution order.
func (c *Crosswalk) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Groups returns the number of distinct (level, prefix) groups.
func (c *Crosswalk) Groups() int { return c.groups }

// UnknownSectors returns target codes that are not in the registry.
func (c *Crosswalk) UnknownSectors() []string { return c.unknownSectors }
