package testutil

import (
	"sync"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errormapping"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/event"
)

// MockComponent is a processor for driving flows in tests. It is identifiable,
// locatable and may carry error mappings.
type MockComponent struct {
	mu sync.Mutex

	Path     string
	ID       component.Identifier
	Mappings errormapping.Table

	// ProcessFunc transforms the event. nil passes the event through.
	ProcessFunc func(ev *event.Event) (*event.Event, error)

	// ProcessCalls counts invocations
	ProcessCalls int
}

var (
	_ component.Identifiable = (*MockComponent)(nil)
	_ component.Locatable    = (*MockComponent)(nil)
	_ errormapping.Mapped    = (*MockComponent)(nil)
)

// NewMockComponent creates a pass-through processor declared at path
func NewMockComponent(path string) *MockComponent {
	return &MockComponent{Path: path}
}

// Failing creates a processor at path that always fails with err
func Failing(path string, err error) *MockComponent {
	return &MockComponent{
		Path: path,
		ProcessFunc: func(*event.Event) (*event.Event, error) {
			return nil, err
		},
	}
}

// WithIdentifier sets the component kind and returns m
func (m *MockComponent) WithIdentifier(namespace, name string) *MockComponent {
	m.ID = component.Identifier{Namespace: namespace, Name: name}
	return m
}

// WithMappings sets the error mappings and returns m
func (m *MockComponent) WithMappings(rules ...errormapping.Rule) *MockComponent {
	m.Mappings = rules
	return m
}

// Meta implements component.Component
func (m *MockComponent) Meta() component.Metadata {
	return component.Metadata{Name: m.Path, Type: "processor"}
}

// Identifier implements component.Identifiable
func (m *MockComponent) Identifier() component.Identifier {
	return m.ID
}

// Location implements component.Locatable
func (m *MockComponent) Location() component.Location {
	return component.Location{Path: m.Path, SourceFile: "test.yaml", SourceLine: 1}
}

// ErrorMappings implements errormapping.Mapped
func (m *MockComponent) ErrorMappings() errormapping.Table {
	return m.Mappings
}

// Process runs ProcessFunc
func (m *MockComponent) Process(ev *event.Event) (*event.Event, error) {
	m.mu.Lock()
	m.ProcessCalls++
	fn := m.ProcessFunc
	m.mu.Unlock()

	if fn == nil {
		return ev, nil
	}
	return fn(ev)
}

// Calls returns the number of invocations
func (m *MockComponent) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ProcessCalls
}

// MockError is an error that declares its own error type
type MockError struct {
	Message string
	Type    errortype.ErrorType
	Cause   error
}

// NewMockError creates an error of type t
func NewMockError(message string, t errortype.ErrorType) *MockError {
	return &MockError{Message: message, Type: t}
}

// Error implements error
func (e *MockError) Error() string {
	return e.Message
}

// ErrorType implements errortype.Typed
func (e *MockError) ErrorType() errortype.ErrorType {
	return e.Type
}

// Unwrap returns the cause
func (e *MockError) Unwrap() error {
	return e.Cause
}
