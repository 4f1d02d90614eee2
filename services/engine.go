package services

import (
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"open-dio/models"
)

// Engine is one immutable, fully built model. It is never modified after
// it is published.
type Engine struct {
	BuildID      string
	ModelVersion string
	Registry     *models.SectorRegistry
	Categories   []models.ImpactCategory
	A            *mat.Dense
	L            *mat.Dense
	Multipliers  models.MultiplierTable
	Crosswalk    *Crosswalk
	Calculator   *Calculator
	Comparisons  *Comparisons
	Unclassified models.UnclassifiedBucket
	Report       *models.BuildReport
}

// Artifact renders the multiplier table in its published form.
func (e *Engine) Artifact() models.Artifact {
	return e.Multipliers.Artifact(e.Categories)
}

// EngineHolder publishes engines to concurrent readers. Readers always see
// either the previous engine or the new one, never a partial build.
type EngineHolder struct {
	current atomic.Pointer[Engine]
}

// Load returns the published engine, or nil before the first publish.
func (h *EngineHolder) Load() *Engine { return h.current.Load() }

// Publish swaps in e and returns the engine it replaced.
func (h *EngineHolder) Publish(e *Engine) *Engine {
	if e != nil && e.Report != nil {
		e.Report.Published = true
	}
	return h.current.Swap(e)
}
