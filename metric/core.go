package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Eviction reasons for StackEvictions
const (
	EvictCompleted = "completed"
	EvictIdle      = "idle"
	EvictJoined    = "joined"
	EvictClosed    = "closed"
)

// Metrics contains the core metrics of failure resolution and call-stack tracking.
// All Record methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	// Resolution metrics
	Resolutions        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	ContextInfoEntries prometheus.Counter

	// Call-stack metrics
	ActiveStacks       prometheus.Gauge
	StackEvictions     *prometheus.CounterVec
	ProtocolViolations *prometheus.CounterVec
	StackOverflows     prometheus.Counter

	// Report metrics
	ReportsPublished *prometheus.CounterVec
}

// NewMetrics creates the core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowtrace",
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Total number of resolved failures by final error type",
			},
			[]string{"error_type", "mapped"},
		),

		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "flowtrace",
				Subsystem: "resolver",
				Name:      "duration_seconds",
				Help:      "Time spent resolving a failure",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),

		ContextInfoEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "flowtrace",
				Subsystem: "resolver",
				Name:      "context_info_entries_total",
				Help:      "Total number of diagnostic entries added by context providers",
			},
		),

		ActiveStacks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "flowtrace",
				Subsystem: "callstack",
				Name:      "active",
				Help:      "Number of event contexts with a live call stack",
			},
		),

		StackEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowtrace",
				Subsystem: "callstack",
				Name:      "evictions_total",
				Help:      "Total number of released call stacks by reason",
			},
			[]string{"reason"},
		),

		ProtocolViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowtrace",
				Subsystem: "callstack",
				Name:      "violations_total",
				Help:      "Total number of out-of-protocol notifications by kind",
			},
			[]string{"kind"},
		),

		StackOverflows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "flowtrace",
				Subsystem: "callstack",
				Name:      "overflows_total",
				Help:      "Total number of pipeline entries beyond the maximum depth",
			},
		),

		ReportsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowtrace",
				Subsystem: "report",
				Name:      "published_total",
				Help:      "Total number of failure reports by outcome",
			},
			[]string{"status"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.Resolutions,
		c.ResolutionDuration,
		c.ContextInfoEntries,
		c.ActiveStacks,
		c.StackEvictions,
		c.ProtocolViolations,
		c.StackOverflows,
		c.ReportsPublished,
	}
}

// RecordResolution counts a resolved failure
func (c *Metrics) RecordResolution(errorType string, mapped bool, duration time.Duration) {
	if c == nil {
		return
	}
	m := "false"
	if mapped {
		m = "true"
	}
	c.Resolutions.WithLabelValues(errorType, m).Inc()
	c.ResolutionDuration.Observe(duration.Seconds())
}

// RecordContextInfo counts diagnostic entries merged into a failure
func (c *Metrics) RecordContextInfo(added int) {
	if c == nil || added <= 0 {
		return
	}
	c.ContextInfoEntries.Add(float64(added))
}

// AddActiveStacks moves the live call stack gauge by delta
func (c *Metrics) AddActiveStacks(delta int) {
	if c == nil || delta == 0 {
		return
	}
	c.ActiveStacks.Add(float64(delta))
}

// RecordEviction counts released call stacks
func (c *Metrics) RecordEviction(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.StackEvictions.WithLabelValues(reason).Add(float64(n))
}

// RecordViolation counts an out-of-protocol notification
func (c *Metrics) RecordViolation(kind string) {
	if c == nil {
		return
	}
	c.ProtocolViolations.WithLabelValues(kind).Inc()
}

// RecordOverflow counts a pipeline entry beyond the maximum depth
func (c *Metrics) RecordOverflow() {
	if c == nil {
		return
	}
	c.StackOverflows.Inc()
}

// RecordReport counts a failure report by outcome ("published", "failed", "skipped")
func (c *Metrics) RecordReport(status string) {
	if c == nil {
		return
	}
	c.ReportsPublished.WithLabelValues(status).Inc()
}
