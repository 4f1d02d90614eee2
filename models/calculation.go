package models

import "errors"

// SpendingInput is one entry of a calculation request.
type SpendingInput struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

// ImpactValue is a category total with its unit.
type ImpactValue struct {
	Category    string  `json:"category"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Description string  `json:"description,omitempty"`
}

// SectorImpact is the contribution of one internal sector.
type SectorImpact struct {
	Name          string             `json:"name"`
	Spending      float64            `json:"spending"`
	Impacts       map[string]float64 `json:"impacts"`
	LowConfidence bool               `json:"lowConfidence"`
}

// UnmappedReason explains why spending could not be attributed.
type UnmappedReason string

const (
	UnmappedNoCrosswalk   UnmappedReason = "no_crosswalk"
	UnmappedExplicit      UnmappedReason = "explicitly_unmapped"
	UnmappedUnknownSector UnmappedReason = "unknown_sector"
)

// UnmappedCode records spending that reached no sector.
type UnmappedCode struct {
	Code   string         `json:"code"`
	Sector string         `json:"sector,omitempty"`
	Amount float64        `json:"amount"`
	Reason UnmappedReason `json:"reason"`
}

// RejectedInput is a request entry that failed validation.
type RejectedInput struct {
	Index  int     `json:"index"`
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
	Error  string  `json:"error"`
	err    error
}

// NewRejectedInput wraps err for the entry at index.
func NewRejectedInput(index int, in SpendingInput, err error) RejectedInput {
	return RejectedInput{Index: index, Code: in.Code, Amount: in.Amount, Error: err.Error(), err: err}
}

// Unwrap returns the underlying validation error.
func (r RejectedInput) Unwrap() error { return r.err }

// CalculationResult is the outcome of evaluating a spending vector.
type CalculationResult struct {
	TotalSpending        float64                 `json:"totalSpending"`
	ImpactsByCategory    map[string]float64      `json:"impactsByCategory"`
	Impacts              []ImpactValue           `json:"impacts"`
	SectorBreakdown      map[string]SectorImpact `json:"sectorBreakdown"`
	UnmappedAmount       float64                 `json:"unmappedAmount"`
	UnmappedCodes        []UnmappedCode          `json:"unmappedCodes,omitempty"`
	LowConfidenceSectors []string                `json:"lowConfidenceSectors,omitempty"`
	Rejected             []RejectedInput         `json:"rejected,omitempty"`
}

// Err joins the per-entry rejection errors, or returns nil.
func (r *CalculationResult) Err() error {
	if len(r.Rejected) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Rejected))
	for _, rej := range r.Rejected {
		errs = append(errs, rej.err)
	}
	return errors.Join(errs...)
}

// AllocatedSpending sums the dollars attributed to sectors.
func (r *CalculationResult) AllocatedSpending() float64 {
	var total float64
	for _, s := range r.SectorBreakdown {
		total += s.Spending
	}
	return total
}

// Equivalent is a lay comparison for a GHG mass.
type Equivalent struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Count       float64 `json:"count"`
	KgPerUnit   float64 `json:"kgPerUnit"`
	Description string  `json:"description,omitempty"`
}
