package resolver

import (
	"log/slog"
	"time"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errormapping"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/event"
	"github.com/c360/flowtrace/metric"
	"github.com/c360/flowtrace/notification"
)

// ProviderSource supplies the context providers consulted on enrichment.
// notification.Dispatcher implements it.
type ProviderSource interface {
	ContextProviders() []notification.ContextProvider
}

type staticProviders []notification.ContextProvider

func (s staticProviders) ContextProviders() []notification.ContextProvider { return s }

// Resolver turns an arbitrary failure into a PipelineError whose event carries
// the most relevant classified cause.
//
// Resolve and Enrich are stateless apart from their inputs and may be called
// from any number of goroutines.
type Resolver struct {
	locator   errortype.Locator
	providers ProviderSource
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records resolution metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Resolver) {
		r.metrics = registry.CoreMetrics()
	}
}

// WithDispatcher reads context providers from the listeners registered on d
func WithDispatcher(d *notification.Dispatcher) Option {
	return func(r *Resolver) {
		if d != nil {
			r.providers = d
		}
	}
}

// WithContextProviders uses a fixed provider list
func WithContextProviders(providers ...notification.ContextProvider) Option {
	return func(r *Resolver) {
		r.providers = staticProviders(providers)
	}
}

// New creates a resolver classifying causes through locator. A nil locator
// uses an empty catalog, which classifies only Typed errors.
func New(locator errortype.Locator, opts ...Option) *Resolver {
	if locator == nil {
		locator = errortype.NewCatalog(nil)
	}
	r := &Resolver{
		locator:   locator,
		providers: staticProviders(nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "resolver")
	return r
}

// Locator returns the locator used for classification
func (r *Resolver) Locator() errortype.Locator {
	return r.locator
}

// Resolve selects the root cause of pe and attaches its classification to the
// failure's event.
//
// The first classified cause fixes the error type; the innermost cause of that
// same type becomes the reported cause. The mappings of failing may translate
// the type. When the selected cause is itself a PipelineError it is updated
// and returned. Otherwise a new PipelineError wraps it and inherits the info
// entries of pe.
//
// A failure with no classifiable cause gets CORE:UNKNOWN, unless its event
// already carries an error for the same cause and failing has no mappings; pe
// is then returned unchanged.
func (r *Resolver) Resolve(failing component.Component, pe *PipelineError) *PipelineError {
	if pe == nil {
		return nil
	}
	start := time.Now()

	candidates := Walk(failing, pe, r.locator)
	if len(candidates) == 0 {
		res := r.resolveUnclassified(failing, pe)
		r.record(res, failing, false, start)
		return res
	}

	root := candidates[0]
	selected := root
	for _, c := range candidates[1:] {
		if c.Type.Equal(root.Type) {
			selected = c
		}
	}

	failingComponent := pe.FailingComponent()
	if failingComponent == nil && selected.Pipeline != nil {
		failingComponent = selected.Pipeline.FailingComponent()
	}
	if failingComponent == nil {
		failingComponent = failing
	}

	typ, mapped := errormapping.For(failing).Resolve(selected.Type)
	ce := event.NewClassifiedError(typ, rootCause(selected.Err), "")
	ev := pe.Event().WithError(ce)

	var res *PipelineError
	switch selected.Kind {
	case AlreadyClassified, PipelineCause:
		selected.Pipeline.SetEvent(ev)
		res = selected.Pipeline
	default:
		res = NewPipelineError(ev, selected.Err, failingComponent, WithInfo(pe.info))
	}

	r.record(res, failingComponent, mapped, start)
	return res
}

// resolveUnclassified attaches a default classification to a failure none of
// whose causes the catalog recognizes.
func (r *Resolver) resolveUnclassified(failing component.Component, pe *PipelineError) *PipelineError {
	cause := rootCause(pe)
	mappings := errormapping.For(failing)

	current, hasCurrent := pe.Classified()
	if hasCurrent && len(mappings) == 0 && sameError(current.Cause(), cause) {
		return pe
	}

	// The existing type only feeds mapping matches. A fresh cause nobody
	// recognizes stays unknown.
	base := errortype.Unknown
	if hasCurrent && !current.Type().IsUnknown() {
		base = current.Type()
	}
	typ, mapped := mappings.Resolve(base)
	if !mapped && !(hasCurrent && sameError(current.Cause(), cause)) {
		typ = errortype.Unknown
	}

	pe.SetEvent(pe.Event().WithError(event.NewClassifiedError(typ, cause, "")))
	return pe
}

func (r *Resolver) record(pe *PipelineError, failing component.Component, mapped bool, start time.Time) {
	ce, _ := pe.Classified()
	typ := errortype.Unknown
	if ce != nil {
		typ = ce.Type()
	}
	r.metrics.RecordResolution(typ.String(), mapped, time.Since(start))
	r.logger.Debug("Resolved pipeline failure",
		"error_type", typ.String(),
		"mapped", mapped,
		"failing_component", component.NameOf(failing),
		"event_id", pe.Event().ID())
}

// Enrich merges the diagnostic entries of every context provider into pe.
// Entries already present are kept, so the first writer of a key wins.
func (r *Resolver) Enrich(pe *PipelineError, failing component.Component) *PipelineError {
	if pe == nil {
		return nil
	}
	info := notification.Info{Event: pe.Event(), Component: failing}

	added := 0
	for _, p := range r.providers.ContextProviders() {
		for k, v := range p.ContextInfo(info, failing) {
			if pe.PutInfoIfAbsent(k, v) {
				added++
			}
		}
	}
	r.metrics.RecordContextInfo(added)
	return pe
}

// ResolveWithError enriches a failure whose classification is already
// settled. No cause selection takes place.
func (r *Resolver) ResolveWithError(pe *PipelineError, failing component.Component) *PipelineError {
	return r.Enrich(pe, failing)
}

// Handle resolves and enriches err raised by failing while processing ev.
// err is used as is when it already is a *PipelineError.
func (r *Resolver) Handle(ev *event.Event, failing component.Component, err error) *PipelineError {
	if err == nil {
		return nil
	}
	pe, ok := err.(*PipelineError)
	if !ok {
		pe = NewPipelineError(ev, err, nil)
	}
	return r.Enrich(r.Resolve(failing, pe), failing)
}
