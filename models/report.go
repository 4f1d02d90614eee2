package models

import "time"

// MalformedRecord is a skipped raw edge-list record.
type MalformedRecord struct {
	Line   int    `json:"line"`
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// MalformedSummary counts skipped economic records by reason and keeps examples.
type MalformedSummary struct {
	Total    int               `json:"total"`
	ByReason map[string]int    `json:"by_reason"`
	Examples []MalformedRecord `json:"examples,omitempty"`
}

// BuildReport summarizes one build of the engine. It is produced for every
// build, including failed ones, up to the stage that failed.
type BuildReport struct {
	BuildID   string        `json:"build_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Sectors          int               `json:"sectors"`
	EconomicRecords  int               `json:"economic_records"`
	Malformed        MalformedSummary  `json:"malformed"`
	DemandDerived    bool              `json:"demand_derived"`
	ConditionNumber  float64           `json:"condition_number"`
	PassShare        float64           `json:"pass_share"`
	Outliers         []SectorDeviation `json:"outliers,omitempty"`
	FlowRecords      int               `json:"flow_records"`
	ClassifiedByRule int               `json:"classified_by_rule"`
	ClassifiedByKW   int               `json:"classified_by_keyword"`
	Unclassified     int               `json:"unclassified"`
	UnlinkedFlows    int               `json:"unlinked_flows"`
	OverShareProcs   []string          `json:"over_share_processes,omitempty"`
	LowConfidence    []string          `json:"low_confidence,omitempty"`
	ClampedValues    int               `json:"clamped_values"`
	CrosswalkGroups  int               `json:"crosswalk_groups"`
	CrosswalkUnknown []string          `json:"crosswalk_unknown_sectors,omitempty"`
	Published        bool              `json:"published"`
}

// Add counts a skipped record and keeps it as an example while fewer than
// max examples are held.
func (m *MalformedSummary) Add(r EconomicFlowRecord, reason string, max int) {
	if m.ByReason == nil {
		m.ByReason = make(map[string]int)
	}
	m.Total++
	m.ByReason[reason]++
	if len(m.Examples) < max {
		m.Examples = append(m.Examples, MalformedRecord{
			Line:   r.Line,
			Source: r.SourceProcessID,
			Target: r.TargetSectorCode,
			Reason: reason,
		})
	}
}
