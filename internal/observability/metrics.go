package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the workflow collectors. A nil *Metrics is valid and records
// nothing, so tests and embedded uses can skip registration.
type Metrics struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	interrupts    *prometheus.CounterVec
	stepAttempts  prometheus.Counter
	commits       *prometheus.CounterVec
	retrievals    *prometheus.CounterVec
	generationDur prometheus.Histogram
	activeRuns    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_runs_started_total",
			Help: "Runs started, by router decision.",
		}, []string{"route"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_runs_finished_total",
			Help: "Runs finished, by outcome (done, failed, discarded).",
		}, []string{"outcome"}),
		interrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_interrupts_total",
			Help: "Interrupts issued, by kind.",
		}, []string{"kind"}),
		stepAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_step_attempts_total",
			Help: "Step drafts generated, including revisions.",
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_commits_total",
			Help: "Persistence commits, by status.",
		}, []string{"status"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_retrievals_total",
			Help: "Retrieval backend calls, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		generationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quill_generation_seconds",
			Help:    "Generation port latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quill_active_runs",
			Help: "Runs currently being advanced.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.runsStarted, m.runsFinished, m.interrupts, m.stepAttempts,
		m.commits, m.retrievals, m.generationDur, m.activeRuns,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RunStarted(route string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(route).Inc()
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Interrupt(kind string) {
	if m == nil {
		return
	}
	m.interrupts.WithLabelValues(kind).Inc()
}

func (m *Metrics) StepAttempt() {
	if m == nil {
		return
	}
	m.stepAttempts.Inc()
}

func (m *Metrics) Commit(status string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(status).Inc()
}

func (m *Metrics) Retrieval(backend, outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generationDur.Observe(d.Seconds())
}

// TrackActive increments the active-run gauge and returns its undo.
func (m *Metrics) TrackActive() func() {
	if m == nil {
		return func() {}
	}
	m.activeRuns.Inc()
	return m.activeRuns.Dec
}
