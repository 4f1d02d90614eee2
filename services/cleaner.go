package services

import (
	"strings"
	"unicode"

	"open-dio/models"
	"open-dio/utils"
)

// Cleaner normalizes raw input records before the builders see them:
// codes are trimmed, free text has its whitespace collapsed, and rows without
// an identifying code are dropped with a warning.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean returns a cleaned copy of every input set.
func (c *Cleaner) Clean(in *models.BuildInputs, priorityKeywords []string) *models.BuildInputs {
	out := &models.BuildInputs{
		Sectors:          c.CleanSectors(in.Sectors, priorityKeywords),
		Outputs:          make([]models.SectorOutput, 0, len(in.Outputs)),
		EconomicFlows:    make([]models.EconomicFlowRecord, 0, len(in.EconomicFlows)),
		EnvironmentFlows: make([]models.EnvironmentalFlowRecord, 0, len(in.EnvironmentFlows)),
		ProcessLinks:     make([]models.ProcessSectorLink, 0, len(in.ProcessLinks)),
		Characterization: make([]models.CharacterizationFactor, 0, len(in.Characterization)),
		CrosswalkRows:    make([]models.CrosswalkRow, 0, len(in.CrosswalkRows)),
	}

	for _, o := range in.Outputs {
		o.SectorCode = normaliseCode(o.SectorCode)
		out.Outputs = append(out.Outputs, o)
	}

	// Economic records are kept even when codes are blank so the
	// requirements builder can count them as malformed.
	for _, r := range in.EconomicFlows {
		r.SourceProcessID = normaliseCode(r.SourceProcessID)
		r.TargetSectorCode = normaliseCode(r.TargetSectorCode)
		out.EconomicFlows = append(out.EconomicFlows, r)
	}

	dropped := 0
	for _, r := range in.EnvironmentFlows {
		r.ProcessID = normaliseCode(r.ProcessID)
		r.FlowName = normaliseText(r.FlowName)
		r.Context = normaliseText(r.Context)
		r.Unit = strings.TrimSpace(r.Unit)
		if r.ProcessID == "" {
			dropped++
			c.logger.Debug("[cleaner] Environmental flow on line %d has no process id", r.Line)
		}
		out.EnvironmentFlows = append(out.EnvironmentFlows, r)
	}
	if dropped > 0 {
		c.logger.Warn("[cleaner] %d environmental flow(s) have no process id and cannot be attributed", dropped)
	}

	for _, l := range in.ProcessLinks {
		l.ProcessID = normaliseCode(l.ProcessID)
		l.SectorCode = normaliseCode(l.SectorCode)
		if l.ProcessID == "" || l.SectorCode == "" {
			c.logger.Warn("[cleaner] Dropping process link with empty id: %q → %q", l.ProcessID, l.SectorCode)
			continue
		}
		out.ProcessLinks = append(out.ProcessLinks, l)
	}

	for _, f := range in.Characterization {
		f.FlowCategory = normaliseCode(f.FlowCategory)
		f.ImpactCategory = normaliseCode(f.ImpactCategory)
		out.Characterization = append(out.Characterization, f)
	}

	for _, r := range in.CrosswalkRows {
		r.ExternalCodePrefix = NormaliseExternalCode(r.ExternalCodePrefix)
		r.InternalSectorCode = normaliseCode(r.InternalSectorCode)
		out.CrosswalkRows = append(out.CrosswalkRows, r)
	}

	c.logger.Info("[cleaner] Cleaned inputs: %d sectors, %d economic, %d environmental, %d links, %d crosswalk rows",
		len(out.Sectors), len(out.EconomicFlows), len(out.EnvironmentFlows), len(out.ProcessLinks), len(out.CrosswalkRows))
	return out
}

// CleanSectors trims sector fields, drops rows without a code and marks
// sectors whose name contains a priority keyword as priority-relevant.
func (c *Cleaner) CleanSectors(raw []models.Sector, priorityKeywords []string) []models.Sector {
	result := make([]models.Sector, 0, len(raw))
	for _, s := range raw {
		s.Code = normaliseCode(s.Code)
		if s.Code == "" {
			c.logger.Warn("[cleaner] Dropping sector with empty code: %s", s.Name)
			continue
		}
		s.Name = normaliseText(s.Name)
		s.Category = normaliseText(s.Category)
		if !s.IsPriorityRelevant {
			s.IsPriorityRelevant = matchesKeyword(s.Name, priorityKeywords)
		}
		result = append(result, s)
	}
	return result
}

// NormaliseExternalCode trims an external industry code and removes inner
// spaces and dashes, so "3364-11" and " 336411" compare equal.
func NormaliseExternalCode(code string) string {
	code = strings.TrimSpace(code)
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, code)
}

func matchesKeyword(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func normaliseCode(s string) string {
	return strings.TrimSpace(s)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// flowKey is the case-insensitive lookup form of a flow name or context.
func flowKey(s string) string {
	return strings.ToLower(normaliseText(s))
}
