package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/metric"
	"github.com/c360/flowtrace/resolver"
)

// Report outcomes recorded in the flowtrace_report_published_total metric
const (
	StatusPublished = "published"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Publisher sends raw bytes on a subject. Conn implements it over NATS.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Reporter logs resolved failures locally and publishes them as JSON reports
// for remote consumption. Without a Publisher it only logs.
type Reporter struct {
	appID     string
	publisher Publisher
	logger    *slog.Logger
	metrics   *metric.Metrics
	retry     RetryPolicy
	now       func() time.Time
}

// Option configures a Reporter
type Option func(*Reporter)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records report outcomes in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Reporter) {
		r.metrics = registry.CoreMetrics()
	}
}

// WithRetry retries transient publish failures according to p. The default
// publishes once.
func WithRetry(p RetryPolicy) Option {
	return func(r *Reporter) {
		r.retry = p
	}
}

// WithClock replaces time.Now for report timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReporter creates a reporter for appID. publisher may be nil.
func NewReporter(appID string, publisher Publisher, opts ...Option) *Reporter {
	r := &Reporter{
		appID:     appID,
		publisher: publisher,
		logger:    slog.Default(),
		retry:     NoRetry(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "report")
	return r
}

// Report logs pe and publishes it. Publishing failures are logged and returned
// as transient errors; the local log record is always written.
func (r *Reporter) Report(ctx context.Context, pe *resolver.PipelineError) error {
	if pe == nil {
		return nil
	}

	rep := Build(r.appID, pe, r.now())
	r.logger.Error("Pipeline failure",
		"error_type", rep.ErrorType,
		"failing_component", rep.FailingComponent,
		"event_id", rep.EventID,
		"cause", rep.Cause)
	if rep.FlowStack != "" {
		r.logger.Debug("Failure call stack", "event_id", rep.EventID, "flow_stack", rep.FlowStack)
	}

	if r.publisher == nil {
		r.metrics.RecordReport(StatusSkipped)
		return nil
	}

	// Check context before performing I/O
	select {
	case <-ctx.Done():
		r.metrics.RecordReport(StatusSkipped)
		return errors.WrapTransient(ctx.Err(), "Reporter", "Report", "publish report")
	default:
	}

	data, err := json.Marshal(rep)
	if err != nil {
		r.metrics.RecordReport(StatusFailed)
		return errors.WrapInvalid(err, "Reporter", "Report", "marshal report")
	}

	typ := errortype.Unknown
	if ce, ok := pe.Classified(); ok {
		typ = ce.Type()
	}
	subject := Subject(r.appID, typ)

	attempts, err := r.retry.do(ctx, func() error {
		return r.publisher.Publish(ctx, subject, data)
	})
	if err != nil {
		r.metrics.RecordReport(StatusFailed)
		r.logger.Error("Failed to publish failure report",
			"error", err,
			"error_class", errors.Classify(err).String(),
			"subject", subject,
			"attempts", attempts)
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrPublishFailed, err),
			"Reporter", "Report", "publish report")
	}

	r.metrics.RecordReport(StatusPublished)
	return nil
}
