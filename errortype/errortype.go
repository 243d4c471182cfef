// Package errortype provides the namespaced, hierarchical error types assigned to
// failing events, the repository that declares them, and the catalog that maps Go
// errors onto them.
package errortype

import (
	"fmt"
	"strings"

	"github.com/c360/flowtrace/errors"
)

// CoreNamespace holds the error types every runtime knows about
const CoreNamespace = "CORE"

// ErrorType is an immutable, namespaced classification of a failure.
// Two error types are equal when namespace and identifier match; the parent
// only takes part in hierarchy checks.
type ErrorType struct {
	namespace  string
	identifier string
	parent     *ErrorType
}

// New builds an error type. Namespace and identifier are upper-cased.
func New(namespace, identifier string, parent *ErrorType) ErrorType {
	return ErrorType{
		namespace:  strings.ToUpper(namespace),
		identifier: strings.ToUpper(identifier),
		parent:     parent,
	}
}

// Namespace returns the type's namespace
func (t ErrorType) Namespace() string { return t.namespace }

// Identifier returns the type's identifier within its namespace
func (t ErrorType) Identifier() string { return t.identifier }

// Parent returns the parent type, if any
func (t ErrorType) Parent() (ErrorType, bool) {
	if t.parent == nil {
		return ErrorType{}, false
	}
	return *t.parent, true
}

// String renders "NAMESPACE:IDENTIFIER"
func (t ErrorType) String() string {
	if t.IsZero() {
		return ""
	}
	return t.namespace + ":" + t.identifier
}

// IsZero reports whether t is the zero value
func (t ErrorType) IsZero() bool {
	return t.namespace == "" && t.identifier == ""
}

// Equal compares namespace and identifier
func (t ErrorType) Equal(other ErrorType) bool {
	return t.namespace == other.namespace && t.identifier == other.identifier
}

// IsA reports whether t equals other or descends from it
func (t ErrorType) IsA(other ErrorType) bool {
	for cur := &t; cur != nil; cur = cur.parent {
		if cur.Equal(other) {
			return true
		}
	}
	return false
}

// Ancestors returns the parent chain of t, nearest first
func (t ErrorType) Ancestors() []ErrorType {
	var out []ErrorType
	for cur := t.parent; cur != nil; cur = cur.parent {
		out = append(out, *cur)
	}
	return out
}

// IsUnknown reports whether t is the reserved unknown type
func (t ErrorType) IsUnknown() bool {
	return t.Equal(Unknown)
}

// Parse splits "NAMESPACE:IDENTIFIER". An unqualified identifier belongs to CORE.
func Parse(s string) (namespace, identifier string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", errors.WrapInvalid(errors.ErrInvalidErrorType, "errortype", "Parse", "empty identifier")
	}
	ns, id, ok := strings.Cut(s, ":")
	if !ok {
		ns, id = CoreNamespace, s
	}
	if ns == "" || id == "" || strings.Contains(id, ":") {
		return "", "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrInvalidErrorType, s),
			"errortype", "Parse", "identifier format (NAMESPACE:IDENTIFIER)")
	}
	return strings.ToUpper(ns), strings.ToUpper(id), nil
}

func core(identifier string, parent *ErrorType) ErrorType {
	return New(CoreNamespace, identifier, parent)
}

func ptr(t ErrorType) *ErrorType { return &t }

// Well-known core error types
var (
	// Any is the root every regular error type descends from
	Any = core("ANY", nil)
	// Unknown is the reserved type of causes the catalog cannot classify
	Unknown = core("UNKNOWN", ptr(Any))

	Connectivity         = core("CONNECTIVITY", ptr(Any))
	RetryExhausted       = core("RETRY_EXHAUSTED", ptr(Connectivity))
	Timeout              = core("TIMEOUT", ptr(Any))
	Expression           = core("EXPRESSION", ptr(Any))
	Transformation       = core("TRANSFORMATION", ptr(Any))
	Validation           = core("VALIDATION", ptr(Any))
	Routing              = core("ROUTING", ptr(Any))
	CompositeRouting     = core("COMPOSITE_ROUTING", ptr(Routing))
	Security             = core("SECURITY", ptr(Any))
	ClientSecurity       = core("CLIENT_SECURITY", ptr(Security))
	ServerSecurity       = core("SERVER_SECURITY", ptr(Security))
	NotPermitted         = core("NOT_PERMITTED", ptr(Any))
	DuplicateMessage     = core("DUPLICATE_MESSAGE", ptr(Validation))
	RedeliveryExhausted  = core("REDELIVERY_EXHAUSTED", ptr(Any))
	StreamMaxSizeReached = core("STREAM_MAXIMUM_SIZE_EXCEEDED", ptr(Any))

	// Critical and its children sit outside Any: they are not meant to be handled
	Critical = core("CRITICAL", nil)
	Overload = core("OVERLOAD", ptr(Critical))
)

// CoreTypes lists the well-known core types in declaration order
func CoreTypes() []ErrorType {
	return []ErrorType{
		Any, Unknown, Connectivity, RetryExhausted, Timeout, Expression, Transformation,
		Validation, Routing, CompositeRouting, Security, ClientSecurity, ServerSecurity,
		NotPermitted, DuplicateMessage, RedeliveryExhausted, StreamMaxSizeReached,
		Critical, Overload,
	}
}

// Typed is implemented by errors that declare their own error type
type Typed interface {
	ErrorType() ErrorType
}
