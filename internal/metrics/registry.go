package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/reconcile"
)

// Cycle result label values.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
)

// Registry holds all sync metrics on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	CyclesTotal  *prometheus.CounterVec
	RulesAdded   prometheus.Counter
	RulesRemoved prometheus.Counter
	RuleFailures *prometheus.CounterVec

	DesiredRanges *prometheus.GaugeVec
	CurrentRanges *prometheus.GaugeVec

	SyncDuration prometheus.Histogram
	LastSuccess  prometheus.Gauge

	now func() time.Time
}

// NewRegistry creates a Registry with Go runtime and process collectors
// already registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	r := &Registry{reg: reg, now: time.Now}

	r.CyclesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cfufw_sync_cycles_total",
		Help: "Sync cycles by outcome",
	}, []string{"result"})

	r.RulesAdded = f.NewCounter(prometheus.CounterOpts{
		Name: "cfufw_rules_added_total",
		Help: "Allow rules added to ufw",
	})

	r.RulesRemoved = f.NewCounter(prometheus.CounterOpts{
		Name: "cfufw_rules_removed_total",
		Help: "Allow rules removed from ufw",
	})

	r.RuleFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cfufw_rule_failures_total",
		Help: "Rule mutations that ufw rejected",
	}, []string{"op"})

	r.DesiredRanges = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cfufw_desired_ranges",
		Help: "Validated provider ranges in the last cycle",
	}, []string{"family"})

	r.CurrentRanges = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cfufw_current_ranges",
		Help: "Owned ufw rules observed at the start of the last cycle",
	}, []string{"family"})

	r.SyncDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "cfufw_sync_duration_seconds",
		Help:    "Duration of reconcile cycles",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	r.LastSuccess = f.NewGauge(prometheus.GaugeOpts{
		Name: "cfufw_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last cycle without an unrecoverable error",
	})

	// Pre-create label values so they are exported as zero.
	for _, v := range []string{ResultSuccess, ResultPartial, ResultFailure} {
		r.CyclesTotal.WithLabelValues(v)
	}
	r.RuleFailures.WithLabelValues("add")
	r.RuleFailures.WithLabelValues("remove")

	return r
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordCycle implements reconcile.Recorder.
func (r *Registry) RecordCycle(res reconcile.Result, err error) {
	r.CyclesTotal.WithLabelValues(classify(res, err)).Inc()
	r.RulesAdded.Add(float64(res.Added))
	r.RulesRemoved.Add(float64(res.Removed))
	r.RuleFailures.WithLabelValues("add").Add(float64(res.AddFailed))
	r.RuleFailures.WithLabelValues("remove").Add(float64(res.RemoveFailed))

	if res.Desired != nil {
		for _, f := range cidr.Families {
			r.DesiredRanges.WithLabelValues(string(f)).Set(float64(res.Desired[f]))
		}
	}
	if res.Current != nil {
		for _, f := range cidr.Families {
			r.CurrentRanges.WithLabelValues(string(f)).Set(float64(res.Current[f]))
		}
	}
	if res.Duration > 0 {
		r.SyncDuration.Observe(res.Duration.Seconds())
	}
	if err == nil {
		r.LastSuccess.Set(float64(r.now().Unix()))
	}
}

func classify(res reconcile.Result, err error) string {
	switch {
	case err != nil:
		return ResultFailure
	case res.AddFailed > 0 || res.RemoveFailed > 0 || res.StatusDegraded || res.PreconditionErr != nil:
		return ResultPartial
	default:
		return ResultSuccess
	}
}
