// Package notification carries execution signals from a pipeline runtime to
// the subsystems that observe it.
//
// The runtime tells a Dispatcher when a pipeline starts or completes and when a
// component is about to run. The Dispatcher fans each signal out to registered
// listeners synchronously, on the caller's goroutine, so a listener sees the
// signals of one event in the order the runtime issued them. A panicking
// listener is logged and skipped; it never reaches the pipeline.
//
// ContextProviders contribute diagnostic key/value pairs when a failure is
// resolved.
package notification

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/event"
)

// Info describes the execution point a signal or failure refers to
type Info struct {
	Event     *event.Event
	Component component.Component
	Pipeline  string
}

// PipelineListener observes pipelines being entered and exited
type PipelineListener interface {
	OnPipelineStart(ev *event.Event, pipeline string)
	OnPipelineComplete(ev *event.Event, pipeline string)
}

// ComponentListener observes components about to run
type ComponentListener interface {
	OnComponentPreInvoke(ev *event.Event, c component.Component)
}

// ContextProvider contributes diagnostic entries for a failure
type ContextProvider interface {
	ContextInfo(info Info, failing component.Component) map[string]string
}

// ContextProviderFunc adapts a function to ContextProvider
type ContextProviderFunc func(info Info, failing component.Component) map[string]string

// ContextInfo implements ContextProvider
func (f ContextProviderFunc) ContextInfo(info Info, failing component.Component) map[string]string {
	return f(info, failing)
}

// Dispatcher delivers signals to listeners
type Dispatcher struct {
	mu        sync.RWMutex
	pipelines []PipelineListener
	compos    []ComponentListener
	providers []ContextProvider
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger.With("component", "notification")}
}

// Register adds l under every listener and provider interface it implements.
// It reports whether l implemented any of them.
func (d *Dispatcher) Register(l any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	registered := false
	if pl, ok := l.(PipelineListener); ok {
		d.pipelines = append(d.pipelines, pl)
		registered = true
	}
	if cl, ok := l.(ComponentListener); ok {
		d.compos = append(d.compos, cl)
		registered = true
	}
	if cp, ok := l.(ContextProvider); ok {
		d.providers = append(d.providers, cp)
		registered = true
	}
	return registered
}

// ContextProviders returns the registered providers in registration order
func (d *Dispatcher) ContextProviders() []ContextProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ContextProvider, len(d.providers))
	copy(out, d.providers)
	return out
}

// PipelineStart signals that ev entered pipeline
func (d *Dispatcher) PipelineStart(ev *event.Event, pipeline string) {
	for _, l := range d.pipelineListeners() {
		d.safely("pipeline start", func() { l.OnPipelineStart(ev, pipeline) })
	}
}

// PipelineComplete signals that ev left pipeline
func (d *Dispatcher) PipelineComplete(ev *event.Event, pipeline string) {
	for _, l := range d.pipelineListeners() {
		d.safely("pipeline complete", func() { l.OnPipelineComplete(ev, pipeline) })
	}
}

// ComponentPreInvoke signals that c is about to process ev
func (d *Dispatcher) ComponentPreInvoke(ev *event.Event, c component.Component) {
	d.mu.RLock()
	listeners := d.compos
	d.mu.RUnlock()

	for _, l := range listeners {
		d.safely("component pre-invoke", func() { l.OnComponentPreInvoke(ev, c) })
	}
}

func (d *Dispatcher) pipelineListeners() []PipelineListener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pipelines
}

func (d *Dispatcher) safely(signal string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Listener panic recovered", "signal", signal, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
