package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedMatrixInput    = errors.New("malformed matrix input")
	ErrMatrixSingularity       = errors.New("matrix singularity")
	ErrUnclassifiedFlow        = errors.New("unclassified flow")
	ErrLowConfidenceSector     = errors.New("low confidence sector")
	ErrUnknownSectorCode       = errors.New("unknown sector code")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrCrosswalkWeightMismatch = errors.New("crosswalk weight mismatch")
	ErrLeontiefValidation      = errors.New("leontief validation failed")
	ErrNegativeMultiplier      = errors.New("negative multiplier")
)

// SectorDiagnostic names a sector and the value that singled it out.
type SectorDiagnostic struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func formatDiagnostics(ds []SectorDiagnostic) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = fmt.Sprintf("%s=%.6g", d.Code, d.Value)
	}
	return strings.Join(parts, ", ")
}

// SingularityError reports an ill-conditioned (I - A).
// Sectors lists the sectors with the smallest column margin 1 - sum(A[:,j]).
type SingularityError struct {
	Condition float64
	Threshold float64
	Sectors   []SectorDiagnostic
}

func (e *SingularityError) Error() string {
	return fmt.Sprintf("leontief: (I - A) condition number %.3g exceeds %.3g; smallest column margins: %s",
		e.Condition, e.Threshold, formatDiagnostics(e.Sectors))
}

func (e *SingularityError) Unwrap() error { return ErrMatrixSingularity }

// ColumnSumError reports sectors whose direct requirements exceed their output.
type ColumnSumError struct {
	Sectors []SectorDiagnostic
}

func (e *ColumnSumError) Error() string {
	return fmt.Sprintf("requirements: %d column(s) of A sum above 1: %s",
		len(e.Sectors), formatDiagnostics(e.Sectors))
}

func (e *ColumnSumError) Unwrap() error { return ErrMalformedMatrixInput }

// SectorDeviation is a sector whose reconstructed output missed the reference.
type SectorDeviation struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Reference float64 `json:"reference"`
	Computed  float64 `json:"computed"`
	Relative  float64 `json:"relative"`
}

// ValidationError reports a failed Leontief round-trip.
type ValidationError struct {
	PassShare    float64
	MinPassShare float64
	Outliers     []SectorDeviation
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Outliers))
	for i, o := range e.Outliers {
		names[i] = o.Code
	}
	return fmt.Sprintf("leontief: only %.2f%% of sectors reproduce reference output (need %.2f%%); outliers: %s",
		e.PassShare*100, e.MinPassShare*100, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrLeontiefValidation }

// CrosswalkIssue is one crosswalk validation failure.
type CrosswalkIssue struct {
	Level  int     `json:"level"`
	Prefix string  `json:"prefix"`
	Sum    float64 `json:"sum"`
	Detail string  `json:"detail"`
}

// CrosswalkValidationError collects every crosswalk validation failure.
type CrosswalkValidationError struct {
	Issues []CrosswalkIssue
}

func (e *CrosswalkValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s@%d: %s", is.Prefix, is.Level, is.Detail))
	}
	return fmt.Sprintf("crosswalk: %d invalid prefix group(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *CrosswalkValidationError) Unwrap() error { return ErrCrosswalkWeightMismatch }

// NegativeMultiplierError reports a compiled intensity below zero.
type NegativeMultiplierError struct {
	Sector   string
	Category string
	Value    float64
}

func (e *NegativeMultiplierError) Error() string {
	return fmt.Sprintf("multipliers: sector %s category %s compiled to %.6g", e.Sector, e.Category, e.Value)
}

func (e *NegativeMultiplierError) Unwrap() error { return ErrNegativeMultiplier }
