package models

// EconomicFlowRecord is one row of the raw inter-industry transaction edge list.
// It is only needed while A is being built.
type EconomicFlowRecord struct {
	SourceProcessID  string
	TargetSectorCode string
	Amount           float64
	Line             int
}

// EnvironmentalFlowRecord is one raw process-level environmental flow.
type EnvironmentalFlowRecord struct {
	ProcessID string
	FlowName  string
	Context   string
	Amount    float64
	Unit      string
	Line      int
}

// ProcessSectorLink says that a sector's output depends on a raw process.
// Share is the fraction of the process's flows attributed to the sector.
type ProcessSectorLink struct {
	ProcessID  string
	SectorCode string
	Share      float64
}

// ImpactCategory is a headline impact category such as GHG or WATER.
type ImpactCategory struct {
	Code                   string   `yaml:"code" json:"code" validate:"required"`
	Key                    string   `yaml:"key" json:"key" validate:"required"`
	Name                   string   `yaml:"name" json:"name" validate:"required"`
	Unit                   string   `yaml:"unit" json:"unit" validate:"required"`
	Description            string   `yaml:"description" json:"description"`
	ClassificationKeywords []string `yaml:"keywords" json:"keywords,omitempty"`
	// KeywordFlowCategory receives flows matched by ClassificationKeywords
	// when keyword fallback is enabled.
	KeywordFlowCategory    string   `yaml:"keyword_flow_category" json:"keywordFlowCategory,omitempty"`
}

// FlowCategory is a raw physical flow bucket, one row of the satellite matrix B.
type FlowCategory struct {
	Code string `yaml:"code" json:"code" validate:"required"`
	Unit string `yaml:"unit" json:"unit" validate:"required"`
}

// CharacterizationFactor converts one flow category into an impact category.
type CharacterizationFactor struct {
	FlowCategory   string  `yaml:"flow_category" json:"flowCategory" validate:"required"`
	ImpactCategory string  `yaml:"impact_category" json:"impactCategory" validate:"required"`
	Factor         float64 `yaml:"factor" json:"factor" validate:"gte=0"`
}

// ClassificationRule assigns flows named FlowName (and, when set, in Context)
// to a flow category. An empty Context matches any context.
type ClassificationRule struct {
	FlowName     string `yaml:"flow_name" json:"flowName" validate:"required"`
	Context      string `yaml:"context" json:"context,omitempty"`
	FlowCategory string `yaml:"flow_category" json:"flowCategory" validate:"required"`
}

// UnitConversion converts amounts from one unit into another.
type UnitConversion struct {
	From   string  `yaml:"from" json:"from" validate:"required"`
	To     string  `yaml:"to" json:"to" validate:"required"`
	Factor float64 `yaml:"factor" json:"factor" validate:"gt=0"`
}

// ClassificationSource records how a flow was assigned to its category.
type ClassificationSource string

const (
	ClassifiedByTable   ClassificationSource = "table"
	ClassifiedByKeyword ClassificationSource = "keyword"
)

// UnclassifiedReason explains why a flow landed in the unclassified bucket.
type UnclassifiedReason string

const (
	ReasonNoRule        UnclassifiedReason = "no_rule"
	ReasonUnit          UnclassifiedReason = "unit"
	ReasonInvalidAmount UnclassifiedReason = "invalid_amount"
)

// UnclassifiedBucket keeps every flow that could not be assigned to a category.
type UnclassifiedBucket struct {
	ByReason  map[UnclassifiedReason]int `json:"by_reason"`
	Totals    map[string]float64         `json:"totals_by_unit"`
	FlowNames map[string]int             `json:"flow_names"`
	Entries   []UnclassifiedSample       `json:"entries"`
}

// Len returns the number of unclassified records.
func (b *UnclassifiedBucket) Len() int { return len(b.Entries) }

// Add records an unclassified flow.
func (b *UnclassifiedBucket) Add(r EnvironmentalFlowRecord, reason UnclassifiedReason) {
	if b.ByReason == nil {
		b.ByReason = make(map[UnclassifiedReason]int)
		b.Totals = make(map[string]float64)
		b.FlowNames = make(map[string]int)
	}
	b.ByReason[reason]++
	if reason != ReasonInvalidAmount {
		b.Totals[r.Unit] += r.Amount
	}
	b.FlowNames[r.FlowName]++
	b.Entries = append(b.Entries, UnclassifiedSample{Record: r, Reason: reason})
}

// UnclassifiedSample is one retained unclassified record.
type UnclassifiedSample struct {
	Record EnvironmentalFlowRecord `json:"record"`
	Reason UnclassifiedReason      `json:"reason"`
}

// BuildInputs bundles every raw input of one engine build.
type BuildInputs struct {
	Sectors          []Sector
	Outputs          []SectorOutput
	EconomicFlows    []EconomicFlowRecord
	EnvironmentFlows []EnvironmentalFlowRecord
	ProcessLinks     []ProcessSectorLink
	Characterization []CharacterizationFactor
	CrosswalkRows    []CrosswalkRow
}
