package resolver

import (
	"maps"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/event"
)

// PipelineError is a failure raised while an event traversed a pipeline. It
// carries the event snapshot at the time of failure, the component that failed
// and a diagnostic info map.
//
// Nested pipeline invocations accumulate one evolving PipelineError: once a
// failure is resolved, outer layers update its event instead of wrapping it.
// A PipelineError is owned by the goroutine handling the failure and is not
// safe for concurrent mutation.
type PipelineError struct {
	ev      *event.Event
	cause   error
	failing component.Component
	message string
	info    map[string]string
}

// PipelineErrorOption configures a PipelineError
type PipelineErrorOption func(*PipelineError)

// WithMessage sets the message reported by Error
func WithMessage(msg string) PipelineErrorOption {
	return func(pe *PipelineError) {
		pe.message = msg
	}
}

// WithInfo seeds the info map
func WithInfo(info map[string]string) PipelineErrorOption {
	return func(pe *PipelineError) {
		maps.Copy(pe.info, info)
	}
}

// NewPipelineError creates a pipeline failure of ev caused by cause. failing
// may be nil when the failing component is not known yet. A nil ev gets an
// empty event on a fresh context.
func NewPipelineError(ev *event.Event, cause error, failing component.Component, opts ...PipelineErrorOption) *PipelineError {
	if ev == nil {
		ev = event.New(event.NewContext(""), nil)
	}
	pe := &PipelineError{
		ev:      ev,
		cause:   cause,
		failing: failing,
		info:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(pe)
	}
	return pe
}

// Error implements error
func (pe *PipelineError) Error() string {
	switch {
	case pe.message != "":
		return pe.message
	case pe.cause != nil:
		return pe.cause.Error()
	default:
		return "pipeline failure"
	}
}

// Unwrap returns the cause
func (pe *PipelineError) Unwrap() error {
	return pe.cause
}

// Event returns the event snapshot of the failure
func (pe *PipelineError) Event() *event.Event {
	return pe.ev
}

// SetEvent replaces the event snapshot, typically with one carrying the
// resolved classification
func (pe *PipelineError) SetEvent(ev *event.Event) {
	if ev != nil {
		pe.ev = ev
	}
}

// FailingComponent returns the component that failed, or nil
func (pe *PipelineError) FailingComponent() component.Component {
	return pe.failing
}

// Classified returns the error attached to the event, if any
func (pe *PipelineError) Classified() (*event.ClassifiedError, bool) {
	return pe.ev.Error()
}

// Info returns a copy of the diagnostic info map
func (pe *PipelineError) Info() map[string]string {
	return maps.Clone(pe.info)
}

// InfoValue returns one diagnostic entry
func (pe *PipelineError) InfoValue(key string) (string, bool) {
	v, ok := pe.info[key]
	return v, ok
}

// PutInfoIfAbsent adds an entry unless key is already present. It reports
// whether the entry was added.
func (pe *PipelineError) PutInfoIfAbsent(key, value string) bool {
	if _, exists := pe.info[key]; exists {
		return false
	}
	pe.info[key] = value
	return true
}

// isClassified reports whether pe already went through resolution: its event
// carries an error and the failing component is known.
func (pe *PipelineError) isClassified() bool {
	_, ok := pe.ev.Error()
	return ok && pe.failing != nil
}

// rootCause returns the first cause below nested pipeline errors. A pipeline
// error without a cause is its own root.
func rootCause(err error) error {
	for {
		pe, ok := err.(*PipelineError)
		if !ok || pe.cause == nil {
			return err
		}
		err = pe.cause
	}
}
