package event

import (
	"github.com/c360/flowtrace/errortype"
)

// Event is an immutable snapshot of a unit of work at one point of its
// processing. Deriving a new snapshot (WithError, WithPayload, Fork) never
// changes the receiver.
type Event struct {
	ctx     *Context
	payload any
	err     *ClassifiedError
}

// New creates an event on ctx
func New(ctx *Context, payload any) *Event {
	return &Event{ctx: ctx, payload: payload}
}

// Context returns the event's context
func (e *Event) Context() *Context {
	return e.ctx
}

// ID returns the identity of the event's context
func (e *Event) ID() string {
	if e == nil || e.ctx == nil {
		return ""
	}
	return e.ctx.id
}

// Payload returns the event payload
func (e *Event) Payload() any {
	return e.payload
}

// Error returns the classified error attached to the event
func (e *Event) Error() (*ClassifiedError, bool) {
	return e.err, e.err != nil
}

// WithError returns a copy of e carrying ce
func (e *Event) WithError(ce *ClassifiedError) *Event {
	cp := *e
	cp.err = ce
	return &cp
}

// WithPayload returns a copy of e carrying payload
func (e *Event) WithPayload(payload any) *Event {
	cp := *e
	cp.payload = payload
	return &cp
}

// Fork returns a copy of e on a child context of e's context
func (e *Event) Fork() *Event {
	cp := *e
	cp.ctx = e.ctx.Child()
	return &cp
}

// ClassifiedError is the error attached to an event once a failure has been
// resolved. It is never mutated; a new resolution replaces it.
type ClassifiedError struct {
	typ         errortype.ErrorType
	cause       error
	description string
}

// NewClassifiedError builds a classified error. An empty description defaults
// to the cause's message.
func NewClassifiedError(t errortype.ErrorType, cause error, description string) *ClassifiedError {
	if description == "" && cause != nil {
		description = cause.Error()
	}
	return &ClassifiedError{typ: t, cause: cause, description: description}
}

// Type returns the error type
func (ce *ClassifiedError) Type() errortype.ErrorType { return ce.typ }

// Cause returns the underlying error
func (ce *ClassifiedError) Cause() error { return ce.cause }

// Description returns the human readable description
func (ce *ClassifiedError) Description() string { return ce.description }

// Error implements error
func (ce *ClassifiedError) Error() string {
	if ce.description == "" {
		return ce.typ.String()
	}
	return ce.typ.String() + ": " + ce.description
}

// Unwrap returns the cause
func (ce *ClassifiedError) Unwrap() error { return ce.cause }

// ErrorType implements errortype.Typed, so a classified error found in a cause
// chain keeps its classification.
func (ce *ClassifiedError) ErrorType() errortype.ErrorType { return ce.typ }
