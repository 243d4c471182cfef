package resolver

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errormapping"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/event"
	"github.com/c360/flowtrace/flowtrace"
	"github.com/c360/flowtrace/metric"
	"github.com/c360/flowtrace/notification"
)

type plainErr struct {
	msg  string
	next error
}

func (e *plainErr) Error() string { return e.msg }
func (e *plainErr) Unwrap() error { return e.next }

type timeoutErr struct {
	msg  string
	next error
}

func (e *timeoutErr) Error() string { return e.msg }
func (e *timeoutErr) Unwrap() error { return e.next }

type validationErr struct{ msg string }

func (e *validationErr) Error() string { return e.msg }

// listErr is deliberately not comparable
type listErr struct{ items []string }

func (e listErr) Error() string { return fmt.Sprint(e.items) }

// loopErr is not comparable and may list itself among its causes
type loopErr struct{ errs []error }

func (e loopErr) Error() string   { return "loop" }
func (e loopErr) Unwrap() []error { return e.errs }

var errConnRefused = stderrors.New("connection refused")

type mappedProcessor struct {
	*component.Static
	mappings errormapping.Table
}

func (p *mappedProcessor) ErrorMappings() errormapping.Table { return p.mappings }

func processor(path string) *component.Static {
	return &component.Static{
		Metadata: component.Metadata{Name: path, Type: "processor"},
		Loc:      &component.Location{Path: path},
	}
}

func newCatalog(t *testing.T) *errortype.Catalog {
	t.Helper()
	cat := errortype.NewCatalog(nil)
	require.NoError(t, errortype.BindType[*timeoutErr](cat, "", errortype.Timeout))
	require.NoError(t, errortype.BindType[*validationErr](cat, "", errortype.Validation))
	require.NoError(t, errortype.BindType[listErr](cat, "", errortype.Transformation))
	require.NoError(t, cat.BindError("http", errConnRefused, errortype.Connectivity))
	return cat
}

func newEvent() *event.Event {
	return event.New(event.NewContext("test"), "payload")
}

// chain builds A(unknown) -> B(TIMEOUT) -> C(TIMEOUT) -> D(VALIDATION)
func chain() (a, b, c, d error) {
	d = &validationErr{msg: "d"}
	c = &timeoutErr{msg: "c", next: d}
	b = &timeoutErr{msg: "b", next: c}
	a = &plainErr{msg: "a", next: b}
	return a, b, c, d
}

func classification(t *testing.T, pe *PipelineError) *event.ClassifiedError {
	t.Helper()
	require.NotNil(t, pe)
	ce, ok := pe.Classified()
	require.True(t, ok, "event carries no error")
	return ce
}

func TestWalk(t *testing.T) {
	cat := newCatalog(t)
	a, b, c, d := chain()

	candidates := Walk(nil, a, cat)
	require.Len(t, candidates, 3)
	assert.Same(t, b, candidates[0].Err)
	assert.Same(t, c, candidates[1].Err)
	assert.Same(t, d, candidates[2].Err)
	assert.Equal(t, errortype.Timeout, candidates[0].Type)
	assert.Equal(t, errortype.Validation, candidates[2].Type)
	for _, cand := range candidates {
		assert.Equal(t, RawCause, cand.Kind)
		assert.Nil(t, cand.Pipeline)
	}

	assert.Nil(t, Walk(nil, nil, cat))
	assert.Empty(t, Walk(nil, &plainErr{msg: "alone"}, cat))
}

func TestWalk_JoinedErrorsArePreOrder(t *testing.T) {
	cat := newCatalog(t)
	first := &timeoutErr{msg: "first", next: &validationErr{msg: "first-inner"}}
	second := &validationErr{msg: "second"}

	candidates := Walk(nil, stderrors.Join(first, second), cat)
	require.Len(t, candidates, 3)
	assert.Equal(t, "first", candidates[0].Err.Error())
	assert.Equal(t, "first-inner", candidates[1].Err.Error())
	assert.Equal(t, "second", candidates[2].Err.Error())
}

func TestWalk_SelfReferentialChainTerminates(t *testing.T) {
	cat := newCatalog(t)
	loop := &timeoutErr{msg: "loop"}
	loop.next = loop

	candidates := Walk(nil, loop, cat)
	require.Len(t, candidates, 1)
	assert.Same(t, loop, candidates[0].Err)

	// two-node cycle through an unclassified wrapper
	outer := &plainErr{msg: "outer"}
	inner := &timeoutErr{msg: "inner", next: outer}
	outer.next = inner
	assert.Len(t, Walk(nil, outer, cat), 1)
}

func TestWalk_NonComparableCauses(t *testing.T) {
	cat := newCatalog(t)
	err := fmt.Errorf("wrapped: %w", listErr{items: []string{"x", "y"}})

	candidates := Walk(nil, err, cat)
	require.Len(t, candidates, 1)
	assert.Equal(t, errortype.Transformation, candidates[0].Type)
}

func TestWalk_SelfReferentialNonComparable(t *testing.T) {
	cat := newCatalog(t)
	timeout := &timeoutErr{msg: "slow"}
	loop := loopErr{errs: make([]error, 2)}
	loop.errs[0] = timeout
	loop.errs[1] = loop

	done := make(chan []Candidate, 1)
	go func() { done <- Walk(nil, loop, cat) }()

	select {
	case candidates := <-done:
		require.Len(t, candidates, 1)
		assert.Same(t, timeout, candidates[0].Err)
	case <-time.After(5 * time.Second):
		t.Fatal("walk did not stop on a self-referential chain")
	}
}

func TestWalk_WideJoinIsClassified(t *testing.T) {
	cat := newCatalog(t)
	causes := make([]error, 5000)
	for i := range causes {
		causes[i] = &timeoutErr{msg: fmt.Sprintf("slow %d", i)}
	}

	candidates := Walk(nil, stderrors.Join(causes...), cat)
	require.NotEmpty(t, candidates)
	assert.Less(t, len(candidates), maxWalkNodes)
	assert.Same(t, causes[0], candidates[0].Err)
	assert.Equal(t, errortype.Timeout, candidates[0].Type)

	res := New(cat).Resolve(nil, NewPipelineError(newEvent(), stderrors.Join(causes...), nil))
	assert.Equal(t, errortype.Timeout, classification(t, res).Type())
}

func TestWalk_ComponentNamespace(t *testing.T) {
	cat := newCatalog(t)
	err := fmt.Errorf("request failed: %w", errConnRefused)

	assert.Empty(t, Walk(processor("flow/processors/0"), err, cat))

	httpRequest := processor("flow/processors/0")
	httpRequest.ID = component.Identifier{Namespace: "http", Name: "request"}
	candidates := Walk(httpRequest, err, cat)
	require.Len(t, candidates, 1)
	assert.Equal(t, errortype.Connectivity, candidates[0].Type)
	assert.Same(t, errConnRefused, candidates[0].Err)
}

func TestWalk_ClassifiedPipelineErrorReusesType(t *testing.T) {
	cat := newCatalog(t)
	ev := newEvent()
	cause := &plainErr{msg: "unclassifiable"}
	classified := NewPipelineError(
		ev.WithError(event.NewClassifiedError(errortype.Security, cause, "")),
		cause, processor("flow/processors/1"))
	unresolved := NewPipelineError(ev, &validationErr{msg: "v"}, nil)

	candidates := Walk(nil, fmt.Errorf("outer: %w", classified), cat)
	require.Len(t, candidates, 1)
	assert.Equal(t, AlreadyClassified, candidates[0].Kind)
	assert.Equal(t, errortype.Security, candidates[0].Type)
	assert.Same(t, classified, candidates[0].Pipeline)

	// a pipeline error without classification is only a wrapper
	candidates = Walk(nil, unresolved, cat)
	require.Len(t, candidates, 1)
	assert.Equal(t, RawCause, candidates[0].Kind)
	assert.Equal(t, errortype.Validation, candidates[0].Type)
}

func TestResolve_OutermostTypeInnermostCause(t *testing.T) {
	cat := newCatalog(t)
	r := New(cat)
	a, _, c, _ := chain()
	ev := newEvent()
	failing := processor("flow/processors/0")

	pe := NewPipelineError(ev, a, nil)
	res := r.Resolve(failing, pe)

	ce := classification(t, res)
	assert.Equal(t, errortype.Timeout, ce.Type())
	assert.Same(t, c, ce.Cause())
	assert.Same(t, c, res.Unwrap())
	assert.Equal(t, failing, res.FailingComponent())
	assert.Equal(t, ev.ID(), res.Event().ID())

	_, hasError := ev.Error()
	assert.False(t, hasError, "original event snapshot must not change")
}

func TestResolve_Mappings(t *testing.T) {
	cat := newCatalog(t)
	r := New(cat)
	a, _, c, _ := chain()

	toConnectivity, err := errormapping.NewRule(errormapping.Exact(errortype.Timeout), errortype.Connectivity)
	require.NoError(t, err)
	neverMatches, err := errormapping.NewRule(errormapping.Exact(errortype.Security), errortype.Routing)
	require.NoError(t, err)

	tests := []struct {
		name     string
		mappings errormapping.Table
		want     errortype.ErrorType
	}{
		{"no mappings", nil, errortype.Timeout},
		{"matching rule", errormapping.Table{toConnectivity}, errortype.Connectivity},
		{"non-matching rule", errormapping.Table{neverMatches}, errortype.Timeout},
		{"first match wins", errormapping.Table{neverMatches, toConnectivity}, errortype.Connectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing := &mappedProcessor{Static: processor("flow/processors/2"), mappings: tt.mappings}
			res := r.Resolve(failing, NewPipelineError(newEvent(), a, nil))

			ce := classification(t, res)
			assert.Equal(t, tt.want, ce.Type())
			assert.Same(t, c, ce.Cause())
		})
	}
}

func TestResolve_ReusesClassifiedPipelineError(t *testing.T) {
	r := New(newCatalog(t))
	ev := newEvent()
	cause := &plainErr{msg: "boom"}
	innerFailing := processor("inner/processors/0")
	inner := NewPipelineError(
		ev.WithError(event.NewClassifiedError(errortype.Security, cause, "")),
		cause, innerFailing)

	outer := NewPipelineError(ev, fmt.Errorf("flow-ref failed: %w", inner), nil)
	res := r.Resolve(processor("outer/processors/3"), outer)

	assert.Same(t, inner, res)
	assert.Equal(t, innerFailing, res.FailingComponent())
	ce := classification(t, res)
	assert.Equal(t, errortype.Security, ce.Type())
	assert.Same(t, cause, ce.Cause())
}

func TestResolve_FailingComponentPrecedence(t *testing.T) {
	r := New(newCatalog(t))
	ev := newEvent()
	argument := processor("outer/processors/0")

	recorded := processor("inner/processors/0")
	res := r.Resolve(argument, NewPipelineError(ev, &timeoutErr{msg: "slow"}, recorded))
	assert.Equal(t, recorded, res.FailingComponent())

	res = r.Resolve(argument, NewPipelineError(ev, &timeoutErr{msg: "slow"}, nil))
	assert.Equal(t, argument, res.FailingComponent())
	assert.Equal(t, errortype.Timeout, classification(t, res).Type())
}

func TestResolve_UnclassifiedFailure(t *testing.T) {
	r := New(newCatalog(t))
	cause := &plainErr{msg: "mystery"}

	pe := NewPipelineError(newEvent(), cause, nil)
	res := r.Resolve(processor("flow/processors/0"), pe)

	assert.Same(t, pe, res)
	ce := classification(t, res)
	assert.True(t, ce.Type().IsUnknown())
	assert.Same(t, cause, ce.Cause())
}

func TestResolve_UnclassifiedKeepsExistingError(t *testing.T) {
	r := New(newCatalog(t))
	cause := &plainErr{msg: "mystery"}
	ev := newEvent().WithError(event.NewClassifiedError(errortype.Routing, cause, ""))

	pe := NewPipelineError(ev, cause, nil)
	res := r.Resolve(processor("flow/processors/0"), pe)
	assert.Same(t, ev, res.Event())

	rule, err := errormapping.NewRule(errormapping.Hierarchy(errortype.Routing), errortype.Expression)
	require.NoError(t, err)
	failing := &mappedProcessor{Static: processor("flow/processors/1"), mappings: errormapping.Table{rule}}
	res = r.Resolve(failing, NewPipelineError(ev, cause, nil))
	assert.Equal(t, errortype.Expression, classification(t, res).Type())
}

func TestResolve_FreshUnclassifiedCauseIsUnknown(t *testing.T) {
	r := New(newCatalog(t))
	earlier := &timeoutErr{msg: "earlier"}
	ev := newEvent().WithError(event.NewClassifiedError(errortype.Timeout, earlier, ""))

	fresh := &plainErr{msg: "new unclassifiable failure"}
	res := r.Resolve(processor("flow/processors/0"), NewPipelineError(ev, fresh, nil))
	ce := classification(t, res)
	assert.True(t, ce.Type().IsUnknown(), "got %s", ce.Type())
	assert.Same(t, fresh, ce.Cause())

	// The earlier type still selects a mapping rule
	rule, err := errormapping.NewRule(errormapping.Hierarchy(errortype.Timeout), errortype.RetryExhausted)
	require.NoError(t, err)
	failing := &mappedProcessor{Static: processor("flow/processors/1"), mappings: errormapping.Table{rule}}
	res = r.Resolve(failing, NewPipelineError(ev, fresh, nil))
	assert.Equal(t, errortype.RetryExhausted, classification(t, res).Type())
}

func TestResolve_NilFailure(t *testing.T) {
	r := New(nil)
	assert.Nil(t, r.Resolve(nil, nil))
	assert.Nil(t, r.Enrich(nil, nil))
	assert.Nil(t, r.Handle(newEvent(), nil, nil))
}

func TestResolve_TypedErrorsWithoutCatalogBindings(t *testing.T) {
	r := New(nil)
	typed := event.NewClassifiedError(errortype.Validation, stderrors.New("bad input"), "")

	res := r.Resolve(nil, NewPipelineError(newEvent(), fmt.Errorf("step: %w", typed), nil))
	assert.Equal(t, errortype.Validation, classification(t, res).Type())
}

func TestEnrich_FirstWriterWins(t *testing.T) {
	first := notification.ContextProviderFunc(func(notification.Info, component.Component) map[string]string {
		return map[string]string{"Element": "first", "Shared": "first"}
	})
	second := notification.ContextProviderFunc(func(notification.Info, component.Component) map[string]string {
		return map[string]string{"Shared": "second", "Extra": "second"}
	})
	r := New(nil, WithContextProviders(first, second))

	pe := NewPipelineError(newEvent(), stderrors.New("x"), nil, WithInfo(map[string]string{"Element": "preset"}))
	res := r.ResolveWithError(pe, processor("flow/processors/0"))

	assert.Same(t, pe, res)
	assert.Equal(t, map[string]string{
		"Element": "preset",
		"Shared":  "first",
		"Extra":   "second",
	}, res.Info())
}

func TestEnrich_ProviderSeesFailure(t *testing.T) {
	var seen notification.Info
	var seenFailing component.Component
	p := notification.ContextProviderFunc(func(info notification.Info, failing component.Component) map[string]string {
		seen, seenFailing = info, failing
		return nil
	})
	r := New(nil, WithContextProviders(p))
	failing := processor("flow/processors/4")
	pe := NewPipelineError(newEvent(), stderrors.New("x"), nil)

	r.Enrich(pe, failing)
	assert.Same(t, pe.Event(), seen.Event)
	assert.Equal(t, failing, seen.Component)
	assert.Equal(t, failing, seenFailing)
	assert.Empty(t, pe.Info())
}

func TestHandle_IncludesFlowStack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := flowtrace.DefaultConfig()
	cfg.ApplicationID = "APP"
	manager, err := flowtrace.NewManager(ctx, cfg)
	require.NoError(t, err)
	defer manager.Close()

	dispatcher := notification.NewDispatcher(nil)
	require.True(t, dispatcher.Register(manager))
	r := New(newCatalog(t), WithDispatcher(dispatcher))

	ev := newEvent()
	failing := processor("flow/processors/0")
	dispatcher.PipelineStart(ev, "flow")
	dispatcher.ComponentPreInvoke(ev, failing)

	res := r.Handle(ev, failing, &timeoutErr{msg: "slow backend"})
	require.NotNil(t, res)

	trace, ok := res.InfoValue(flowtrace.FlowStackInfoKey)
	require.True(t, ok)
	assert.Equal(t, manager.RenderedTrace(ev), trace)
	assert.Contains(t, trace, "at flow(flow/processors/0 @ APP:")
	assert.Equal(t, errortype.Timeout, classification(t, res).Type())
}

func TestResolve_MetricsAndLogging(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rule, err := errormapping.NewRule(errormapping.Any(), errortype.Connectivity)
	require.NoError(t, err)
	provider := notification.ContextProviderFunc(func(notification.Info, component.Component) map[string]string {
		return map[string]string{"a": "1", "b": "2"}
	})
	r := New(newCatalog(t), WithMetrics(registry), WithLogger(logger), WithContextProviders(provider))

	failing := &mappedProcessor{Static: processor("flow/processors/0"), mappings: errormapping.Table{rule}}
	r.Handle(newEvent(), failing, &timeoutErr{msg: "slow"})
	r.Handle(newEvent(), processor("flow/processors/1"), &timeoutErr{msg: "slow"})

	assert.Equal(t, 1.0, resolutions(t, registry, "CORE:CONNECTIVITY", "true"))
	assert.Equal(t, 1.0, resolutions(t, registry, "CORE:TIMEOUT", "false"))

	m := &dto.Metric{}
	require.NoError(t, registry.CoreMetrics().ContextInfoEntries.Write(m))
	assert.Equal(t, 4.0, m.GetCounter().GetValue())

	assert.Contains(t, logs.String(), `"msg":"Resolved pipeline failure"`)
	assert.Contains(t, logs.String(), `"error_type":"CORE:CONNECTIVITY"`)
	assert.Contains(t, logs.String(), `"failing_component":"flow/processors/0"`)
}

func resolutions(t *testing.T, registry *metric.MetricsRegistry, errorType, mapped string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, registry.CoreMetrics().Resolutions.WithLabelValues(errorType, mapped).Write(m))
	return m.GetCounter().GetValue()
}

func TestResolve_WrappedCauseInheritsInfo(t *testing.T) {
	r := New(newCatalog(t))
	pe := NewPipelineError(newEvent(), &timeoutErr{msg: "slow"}, nil,
		WithInfo(map[string]string{"FlowStack": "at inner"}))

	res := r.Resolve(processor("flow/processors/0"), pe)
	require.NotSame(t, pe, res)
	v, ok := res.InfoValue("FlowStack")
	assert.True(t, ok)
	assert.Equal(t, "at inner", v)
}
