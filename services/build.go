package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"open-dio/config"
	"open-dio/metrics"
	"open-dio/models"
	"open-dio/utils"
)

// Pipeline builds engines from raw inputs: clean, registry, A, L, B, N and
// the crosswalk, in that order. A build that fails at any stage returns its
// partial report and no engine.
type Pipeline struct {
	model   *config.ModelConfig
	workers int
	logger  *utils.Logger
	metrics *metrics.Collector
}

// NewPipeline creates a Pipeline. collector may be nil.
func NewPipeline(model *config.ModelConfig, workers int, logger *utils.Logger, collector *metrics.Collector) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{model: model, workers: workers, logger: logger, metrics: collector}
}

// Build runs every stage into a fresh engine. The context is checked
// between stages and inside the long-running ones.
func (p *Pipeline) Build(ctx context.Context, raw *models.BuildInputs) (*Engine, *models.BuildReport, error) {
	report := &models.BuildReport{
		BuildID:   uuid.NewString(),
		StartedAt: time.Now(),
	}
	engine, err := p.build(ctx, raw, report)
	report.Duration = time.Since(report.StartedAt)
	p.metrics.ObserveBuild(report, err)
	if err != nil {
		p.logger.Error("[build] Build %s failed after %s: %v", report.BuildID, report.Duration.Round(time.Millisecond), err)
		return nil, report, err
	}
	p.logger.Info("[build] Build %s complete in %s", report.BuildID, report.Duration.Round(time.Millisecond))
	return engine, report, nil
}

// Rebuild builds a new engine and publishes it into holder only on success.
// On failure the holder keeps serving the previous engine.
func (p *Pipeline) Rebuild(ctx context.Context, holder *EngineHolder, raw *models.BuildInputs) (*Engine, *models.BuildReport, error) {
	engine, report, err := p.Build(ctx, raw)
	if err != nil {
		return nil, report, err
	}
	if prev := holder.Publish(engine); prev != nil {
		p.logger.Info("[build] Replaced engine %s with %s", prev.BuildID, engine.BuildID)
	}
	return engine, report, nil
}

func (p *Pipeline) build(ctx context.Context, raw *models.BuildInputs, report *models.BuildReport) (*Engine, error) {
	m := p.model
	p.logger.Info("[build] Starting build %s (model %s, classification %s)", report.BuildID, m.ModelVersion, m.Classification.Version)

	in := NewCleaner(p.logger).Clean(raw, m.PriorityKeywords)

	reg, err := models.NewSectorRegistry(in.Sectors)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	report.Sectors = reg.Len()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	req, err := NewRequirementsBuilder(p.logger).Build(reg, in.Outputs, in.EconomicFlows)
	if req != nil {
		report.EconomicRecords = req.Records
		report.Malformed = req.Malformed
		report.DemandDerived = req.DemandDerived
	}
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	solver := NewLeontiefSolver(m.Leontief, p.workers, p.logger)
	l, cond, err := solver.Solve(ctx, reg, req.A)
	report.ConditionNumber = cond
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	share, outliers, err := solver.Validate(reg, l, req.Demand, req.Output)
	report.PassShare, report.Outliers = share, outliers
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	classifier, err := NewFlowClassifier(ClassifierOptions{
		Version:          m.Classification.Version,
		Rules:            m.Classification.Rules,
		FlowCategories:   m.FlowCategories,
		ImpactCategories: m.ImpactCategories,
		UnitConversions:  m.UnitConversions,
		KeywordFallback:  m.Classification.KeywordFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	sat, err := NewSatelliteAggregator(classifier, p.logger).
		Aggregate(ctx, reg, req.Output, m.FlowCategories, in.EnvironmentFlows, in.ProcessLinks)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	report.FlowRecords = sat.Records
	report.ClassifiedByRule = sat.ClassifiedByRule
	report.ClassifiedByKW = sat.ClassifiedByKW
	report.Unclassified = sat.Unclassified.Len()
	report.UnlinkedFlows = sat.Unlinked
	report.OverShareProcs = sat.OverShare

	factors := m.CharacterizationFactors
	if len(in.Characterization) > 0 {
		factors = in.Characterization
	}
	c, err := CharacterizationMatrix(m.ImpactCategories, sat.FlowCategories, factors)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	compiled, err := NewMultiplierCompiler(m.Leontief.ClampTolerance, p.logger).Compile(reg, m.ImpactCategories, c, sat, l)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	report.ClampedValues = compiled.Clamped
	report.LowConfidence = compiled.Table.LowConfidenceCodes()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	cw, err := NewCrosswalk(in.CrosswalkRows, CrosswalkOptions{
		Levels:             m.Crosswalk.Levels,
		WeightTolerance:    m.Crosswalk.WeightTolerance,
		MatchInternalCodes: m.Crosswalk.MatchInternalCodes,
		KnownSector: func(code string) bool {
			_, ok := reg.Index(code)
			return ok
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	report.CrosswalkGroups = cw.Groups()
	report.CrosswalkUnknown = cw.UnknownSectors()
	if n := len(report.CrosswalkUnknown); n > 0 {
		p.logger.Warn("[build] Crosswalk targets %d code(s) absent from the registry: %v", n, report.CrosswalkUnknown)
	}

	return &Engine{
		BuildID:      report.BuildID,
		ModelVersion: m.ModelVersion,
		Registry:     reg,
		Categories:   m.ImpactCategories,
		A:            req.A,
		L:            l,
		Multipliers:  compiled.Table,
		Crosswalk:    cw,
		Calculator:   NewCalculator(compiled.Table, cw, m.ImpactCategories),
		Comparisons:  NewComparisons(m.Comparisons),
		Unclassified: sat.Unclassified,
		Report:       report,
	}, nil
}
