package testutil

import (
	"context"
	stderrors "errors"

	"golang.org/x/sync/errgroup"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/event"
	"github.com/c360/flowtrace/flowtrace"
	"github.com/c360/flowtrace/notification"
	"github.com/c360/flowtrace/resolver"
)

// Processor is a component that transforms events
type Processor interface {
	component.Component
	Process(ev *event.Event) (*event.Event, error)
}

// Step is one element of a flow: a processor, a reference to another flow, or
// a scatter-gather over several routes.
type Step struct {
	component component.Component
	processor Processor
	ref       *Flow
	routes    []*Flow
}

// Process wraps a processor as a step
func Process(p Processor) Step {
	return Step{component: p, processor: p}
}

// FlowRef invokes f from the component ref
func FlowRef(ref component.Component, f *Flow) Step {
	return Step{component: ref, ref: f}
}

// ScatterGather runs every route concurrently on a forked copy of the event
// and gathers their payloads in route order
func ScatterGather(router component.Component, routes ...*Flow) Step {
	return Step{component: router, routes: routes}
}

// Flow is a named sequence of steps
type Flow struct {
	Name  string
	Steps []Step
}

// NewFlow creates a flow
func NewFlow(name string, steps ...Step) *Flow {
	return &Flow{Name: name, Steps: steps}
}

// CompositeRoutingError gathers the failures of scatter-gather routes
type CompositeRoutingError struct {
	Failures []error
}

// Error implements error
func (e *CompositeRoutingError) Error() string {
	return "scatter-gather failed: " + stderrors.Join(e.Failures...).Error()
}

// Unwrap returns every route failure
func (e *CompositeRoutingError) Unwrap() []error {
	return e.Failures
}

// ErrorType implements errortype.Typed
func (e *CompositeRoutingError) ErrorType() errortype.ErrorType {
	return errortype.CompositeRouting
}

// Runner drives flows the way a runtime would: it emits pipeline and
// component notifications and resolves failures where they are raised.
type Runner struct {
	Dispatcher *notification.Dispatcher
	Resolver   *resolver.Resolver
	// Manager forks and joins call stacks for scatter-gather. Optional.
	Manager *flowtrace.Manager
	// OnFailure observes every failure leaving a top-level flow. Optional.
	OnFailure func(*resolver.PipelineError)
}

// NewRunner wires a dispatcher with manager registered as listener and
// context provider, and a resolver reading providers from it
func NewRunner(manager *flowtrace.Manager, locator errortype.Locator, opts ...resolver.Option) *Runner {
	d := notification.NewDispatcher(nil)
	if manager != nil {
		d.Register(manager)
	}
	opts = append([]resolver.Option{resolver.WithDispatcher(d)}, opts...)
	return &Runner{
		Dispatcher: d,
		Resolver:   resolver.New(locator, opts...),
		Manager:    manager,
	}
}

// Run executes f on ev. A failure is returned as a resolved and enriched
// *resolver.PipelineError.
func (r *Runner) Run(ctx context.Context, f *Flow, ev *event.Event) (*event.Event, error) {
	out, pe := r.run(ctx, f, ev)
	if pe != nil {
		if r.OnFailure != nil {
			r.OnFailure(pe)
		}
		return nil, pe
	}
	return out, nil
}

func (r *Runner) run(ctx context.Context, f *Flow, ev *event.Event) (*event.Event, *resolver.PipelineError) {
	r.Dispatcher.PipelineStart(ev, f.Name)
	defer func() { r.Dispatcher.PipelineComplete(ev, f.Name) }()

	for _, step := range f.Steps {
		r.Dispatcher.ComponentPreInvoke(ev, step.component)

		var (
			out *event.Event
			err error
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			out, err = r.invoke(ctx, step, ev)
		}
		if err != nil {
			return nil, r.Resolver.Handle(ev, step.component, err)
		}
		if out != nil {
			ev = out
		}
	}
	return ev, nil
}

func (r *Runner) invoke(ctx context.Context, step Step, ev *event.Event) (*event.Event, error) {
	switch {
	case step.processor != nil:
		return step.processor.Process(ev)
	case step.ref != nil:
		out, pe := r.run(ctx, step.ref, ev)
		if pe != nil {
			return nil, pe
		}
		return out, nil
	default:
		return r.scatterGather(ctx, step.routes, ev)
	}
}

func (r *Runner) scatterGather(ctx context.Context, routes []*Flow, ev *event.Event) (*event.Event, error) {
	branches := r.fork(ev, len(routes))
	results := make([]*event.Event, len(routes))
	failures := make([]error, len(routes))

	// Every route runs to completion; a failure never cancels its siblings
	var g errgroup.Group
	for i, route := range routes {
		g.Go(func() error {
			out, pe := r.run(ctx, route, branches[i])
			if pe != nil {
				failures[i] = pe
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if r.Manager != nil {
		r.Manager.Join(ev, branches...)
	}

	var composite CompositeRoutingError
	for _, err := range failures {
		if err != nil {
			composite.Failures = append(composite.Failures, err)
		}
	}
	if len(composite.Failures) > 0 {
		return nil, &composite
	}

	payloads := make([]any, len(results))
	for i, res := range results {
		payloads[i] = res.Payload()
	}
	return ev.WithPayload(payloads), nil
}

func (r *Runner) fork(ev *event.Event, n int) []*event.Event {
	if r.Manager != nil {
		return r.Manager.Fork(ev, n)
	}
	branches := make([]*event.Event, n)
	for i := range branches {
		branches[i] = ev.Fork()
	}
	return branches
}
