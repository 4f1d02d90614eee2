// Package metrics exposes build and calculation accounting as Prometheus
// collectors.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"open-dio/models"
)

const namespace = "dio"

// Collector holds the engine's Prometheus metrics. A nil *Collector is a
// valid no-op.
type Collector struct {
	builds          *prometheus.CounterVec
	buildDuration   prometheus.Histogram
	sectors         prometheus.Gauge
	malformed       *prometheus.CounterVec
	unclassified    prometheus.Gauge
	lowConfidence   prometheus.Gauge
	conditionNumber prometheus.Gauge
	passShare       prometheus.Gauge

	calculations *prometheus.CounterVec
	spending     *prometheus.CounterVec
	rejected     prometheus.Counter
}

// NewCollector registers the engine metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "builds_total",
			Help: "Engine builds by outcome.",
		}, []string{"outcome"}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "build_duration_seconds",
			Help:    "Wall time of engine builds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		sectors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sectors",
			Help: "Sectors in the last built engine.",
		}),
		malformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "malformed_records_total",
			Help: "Economic records skipped while building A, by reason.",
		}, []string{"reason"}),
		unclassified: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "unclassified_flows",
			Help: "Environmental flows left unclassified in the last build.",
		}),
		lowConfidence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "low_confidence_sectors",
			Help: "Sectors flagged low-confidence in the last build.",
		}),
		conditionNumber: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "leontief_condition_number",
			Help: "Estimated condition number of (I - A) in the last build.",
		}),
		passShare: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "leontief_pass_share",
			Help: "Share of sectors reproducing reference output in the last build.",
		}),
		calculations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "calculations_total",
			Help: "Impact calculations by outcome.",
		}, []string{"outcome"}),
		spending: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "spending_dollars_total",
			Help: "Dollars evaluated, split into mapped and unmapped.",
		}, []string{"kind"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejected_inputs_total",
			Help: "Spending entries rejected for invalid amounts.",
		}),
	}
}

// ObserveBuild records a finished build. err is the build error, if any.
func (c *Collector) ObserveBuild(r *models.BuildReport, err error) {
	if c == nil {
		return
	}
	c.builds.WithLabelValues(buildOutcome(err)).Inc()
	if r == nil {
		return
	}
	c.buildDuration.Observe(r.Duration.Seconds())
	for reason, n := range r.Malformed.ByReason {
		c.malformed.WithLabelValues(reason).Add(float64(n))
	}
	if err != nil {
		return
	}
	c.sectors.Set(float64(r.Sectors))
	c.unclassified.Set(float64(r.Unclassified))
	c.lowConfidence.Set(float64(len(r.LowConfidence)))
	c.conditionNumber.Set(r.ConditionNumber)
	c.passShare.Set(r.PassShare)
}

// ObserveCalculation records a calculation result.
func (c *Collector) ObserveCalculation(res *models.CalculationResult) {
	if c == nil || res == nil {
		return
	}
	outcome := "ok"
	if len(res.Rejected) > 0 {
		outcome = "partial"
	}
	c.calculations.WithLabelValues(outcome).Inc()
	c.spending.WithLabelValues("mapped").Add(res.TotalSpending - res.UnmappedAmount)
	c.spending.WithLabelValues("unmapped").Add(res.UnmappedAmount)
	c.rejected.Add(float64(len(res.Rejected)))
}

// buildOutcome labels a build error by the failing stage.
func buildOutcome(err error) string {
	switch {
	case err == nil:
		return "published"
	case errors.Is(err, models.ErrMatrixSingularity):
		return "singular"
	case errors.Is(err, models.ErrLeontiefValidation):
		return "validation"
	case errors.Is(err, models.ErrCrosswalkWeightMismatch):
		return "crosswalk"
	case errors.Is(err, models.ErrMalformedMatrixInput):
		return "malformed"
	case errors.Is(err, models.ErrNegativeMultiplier):
		return "negative"
	default:
		return "error"
	}
}

// WriteTextfile writes every metric in g to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
