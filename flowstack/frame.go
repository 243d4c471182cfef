package flowstack

import (
	"strconv"
	"strings"

	"github.com/c360/flowtrace/component"
)

// unknownPlaceholder stands in for missing location metadata so traces keep a
// fixed shape.
const unknownPlaceholder = "null"

// ComponentRef locates a component that ran inside a pipeline
type ComponentRef struct {
	Path          string
	ApplicationID string
	SourceFile    string
	SourceLine    int
	DisplayName   string
}

// NewComponentRef derives a reference from a component's location metadata.
// Components without location report their name as path.
func NewComponentRef(applicationID string, c component.Component) ComponentRef {
	ref := ComponentRef{ApplicationID: applicationID}
	if loc, ok := component.LocationOf(c); ok {
		ref.Path = loc.Path
		ref.SourceFile = loc.SourceFile
		ref.SourceLine = loc.SourceLine
		ref.DisplayName = loc.DocName
	}
	if ref.Path == "" {
		ref.Path = component.NameOf(c)
	}
	return ref
}

// String renders "path @ app:file:line", followed by " (name)" when the
// component has a display name. Missing file and line render as "null".
func (r ComponentRef) String() string {
	var b strings.Builder
	b.WriteString(r.Path)
	b.WriteString(" @ ")
	b.WriteString(r.ApplicationID)
	b.WriteByte(':')
	if r.SourceFile != "" {
		b.WriteString(r.SourceFile)
	} else {
		b.WriteString(unknownPlaceholder)
	}
	b.WriteByte(':')
	if r.SourceLine > 0 {
		b.WriteString(strconv.Itoa(r.SourceLine))
	} else {
		b.WriteString(unknownPlaceholder)
	}
	if r.DisplayName != "" {
		b.WriteString(" (")
		b.WriteString(r.DisplayName)
		b.WriteByte(')')
	}
	return b.String()
}

// Frame is one pipeline invocation on a call stack, annotated with the last
// component that ran inside it.
type Frame struct {
	Pipeline  string
	Component *ComponentRef
}

// String renders "at pipeline(component)" or "at pipeline" before any component ran
func (f Frame) String() string {
	if f.Component == nil {
		return "at " + f.Pipeline
	}
	return "at " + f.Pipeline + "(" + f.Component.String() + ")"
}
