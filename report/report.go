package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/flowtrace"
	"github.com/c360/flowtrace/resolver"
)

// SubjectPrefix is the first token of every report subject
const SubjectPrefix = "errors"

// Report is the published form of a resolved pipeline failure
type Report struct {
	Timestamp        string            `json:"timestamp"` // RFC3339 format
	ApplicationID    string            `json:"application_id"`
	EventID          string            `json:"event_id"`
	RootEventID      string            `json:"root_event_id,omitempty"`
	ErrorType        string            `json:"error_type"`
	Description      string            `json:"description,omitempty"`
	Cause            string            `json:"cause,omitempty"`
	FailingComponent string            `json:"failing_component,omitempty"`
	FlowStack        string            `json:"flow_stack,omitempty"`
	ProcessorsTrace  []string          `json:"processors_trace,omitempty"`
	Info             map[string]string `json:"info,omitempty"`
}

// Build captures pe as a report. The rendered call stack is taken from the
// FlowStack info entry and left out of Info.
func Build(appID string, pe *resolver.PipelineError, now time.Time) Report {
	r := Report{
		Timestamp:     now.UTC().Format(time.RFC3339Nano),
		ApplicationID: appID,
		ErrorType:     errortype.Unknown.String(),
	}

	if ev := pe.Event(); ev != nil {
		r.EventID = ev.ID()
		if ctx := ev.Context(); ctx != nil {
			if root := ctx.Root(); root != ctx {
				r.RootEventID = root.ID()
			}
			if trace := ctx.ProcessorsTrace(); trace != nil {
				r.ProcessorsTrace = trace.Entries()
			}
		}
	}

	if ce, ok := pe.Classified(); ok {
		r.ErrorType = ce.Type().String()
		r.Description = ce.Description()
		if cause := ce.Cause(); cause != nil {
			r.Cause = cause.Error()
		}
	} else if cause := pe.Unwrap(); cause != nil {
		r.Cause = cause.Error()
	}

	if failing := pe.FailingComponent(); failing != nil {
		r.FailingComponent = component.NameOf(failing)
	}

	info := pe.Info()
	if stack, ok := info[flowtrace.FlowStackInfoKey]; ok {
		r.FlowStack = stack
		delete(info, flowtrace.FlowStackInfoKey)
	}
	if len(info) > 0 {
		r.Info = info
	}
	return r
}

// Subject returns the subject a report of type t is published on:
// errors.{app}.{namespace}, lower-cased.
func Subject(appID string, t errortype.ErrorType) string {
	ns := t.Namespace()
	if ns == "" {
		ns = errortype.CoreNamespace
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, strings.ToLower(appID), strings.ToLower(ns))
}
