package component

import (
	"fmt"
	"strings"

	"github.com/c360/flowtrace/errors"
)

// Component is a single processing step inside a pipeline. The call-stack
// manager and the exception resolver only need to name it; every other piece
// of information is an optional capability discovered at runtime.
type Component interface {
	// Meta returns basic component information
	Meta() Metadata
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "processor", "router", "source", "scope"
	Description string `json:"description,omitempty"`
}

// Identifier is the namespaced kind of a component, e.g. "http:request".
// The namespace selects component-specific error-type bindings in the catalog.
type Identifier struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String renders the identifier as "namespace:name"
func (id Identifier) String() string {
	if id.Namespace == "" {
		return id.Name
	}
	return id.Namespace + ":" + id.Name
}

// IsZero reports whether the identifier is empty
func (id Identifier) IsZero() bool {
	return id.Namespace == "" && id.Name == ""
}

// ParseIdentifier parses "namespace:name". Both parts are required.
func ParseIdentifier(s string) (Identifier, error) {
	ns, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || ns == "" || name == "" {
		return Identifier{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrInvalidData, s),
			"component", "ParseIdentifier", "identifier format (namespace:name)")
	}
	return Identifier{Namespace: strings.ToLower(ns), Name: name}, nil
}

// Location is where a component is declared in the application.
// SourceFile and SourceLine are optional; zero values mean unknown.
type Location struct {
	Path       string `json:"path"`
	SourceFile string `json:"source_file,omitempty"`
	SourceLine int    `json:"source_line,omitempty"`
	DocName    string `json:"doc_name,omitempty"`
}

// Identifiable is implemented by components that expose their kind
type Identifiable interface {
	Identifier() Identifier
}

// Locatable is implemented by components that know where they are declared
type Locatable interface {
	Location() Location
}

// IdentifierOf returns the component's identifier if it exposes one
func IdentifierOf(c Component) (Identifier, bool) {
	if c == nil {
		return Identifier{}, false
	}
	idc, ok := c.(Identifiable)
	if !ok {
		return Identifier{}, false
	}
	id := idc.Identifier()
	if id.IsZero() {
		return Identifier{}, false
	}
	return id, true
}

// LocationOf returns the component's declared location if it exposes one
func LocationOf(c Component) (Location, bool) {
	if c == nil {
		return Location{}, false
	}
	lc, ok := c.(Locatable)
	if !ok {
		return Location{}, false
	}
	return lc.Location(), true
}

// NameOf returns a printable name for any component, including nil
func NameOf(c Component) string {
	if c == nil {
		return ""
	}
	if loc, ok := LocationOf(c); ok && loc.Path != "" {
		return loc.Path
	}
	return c.Meta().Name
}

// Static is a component described entirely by data. It is what configuration
// produces for components that only need to be named and located.
type Static struct {
	Metadata Metadata
	ID       Identifier
	Loc      *Location
}

// Meta implements Component
func (s *Static) Meta() Metadata {
	return s.Metadata
}

// Identifier implements Identifiable
func (s *Static) Identifier() Identifier {
	return s.ID
}

// Location implements Locatable. A Static without a location reports only its name as path.
func (s *Static) Location() Location {
	if s.Loc == nil {
		return Location{Path: s.Metadata.Name}
	}
	return *s.Loc
}
