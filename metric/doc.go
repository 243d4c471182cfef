// Package metric provides the Prometheus metrics registry used by failure
// resolution, call-stack tracking and failure reporting.
//
// A MetricsRegistry owns a private prometheus.Registry with the core metrics
// (Metrics) and the Go runtime collectors already registered. Subsystems take
// an optional *MetricsRegistry and record through CoreMetrics(); a nil
// registry disables recording without any branching at call sites:
//
//	registry := metric.NewMetricsRegistry()
//	manager, err := flowtrace.NewManager(ctx, cfg, flowtrace.WithMetrics(registry))
//	http.Handle("/metrics", registry.Handler())
//
// Extensions register their own collectors through MetricsRegistrar, keyed by
// owner and metric name so two owners cannot silently share a collector:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "retries_total", Help: "..."})
//	err := registry.RegisterCounter("http-connector", "retries_total", counter)
//
// # Core metrics
//
//	flowtrace_resolver_resolutions_total{error_type,mapped}
//	flowtrace_resolver_duration_seconds
//	flowtrace_resolver_context_info_entries_total
//	flowtrace_callstack_active
//	flowtrace_callstack_evictions_total{reason}
//	flowtrace_callstack_violations_total{kind}
//	flowtrace_callstack_overflows_total
//	flowtrace_report_published_total{status}
package metric
