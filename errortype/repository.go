package errortype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/flowtrace/errors"
)

// Repository declares the error types known to an application.
// It starts with the core types and is safe for concurrent use.
type Repository struct {
	mu    sync.RWMutex
	types map[string]ErrorType
}

// NewRepository creates a repository holding the core types
func NewRepository() *Repository {
	r := &Repository{types: make(map[string]ErrorType)}
	for _, t := range CoreTypes() {
		r.types[t.String()] = t
	}
	return r
}

// Register declares namespace:identifier under parent. A zero parent means Any.
// Registering an existing type with the same parent is a no-op.
func (r *Repository) Register(namespace, identifier string, parent ErrorType) (ErrorType, error) {
	if namespace == "" || identifier == "" {
		return ErrorType{}, errors.WrapInvalid(errors.ErrInvalidErrorType, "Repository", "Register",
			"namespace and identifier are required")
	}
	if parent.IsZero() {
		parent = Any
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Always link to the registered parent instance so ancestors stay complete
	registeredParent, ok := r.types[parent.String()]
	if !ok {
		return ErrorType{}, errors.WrapInvalid(
			fmt.Errorf("%w: parent %s", errors.ErrUnknownErrorType, parent),
			"Repository", "Register", "parent lookup")
	}

	t := New(namespace, identifier, &registeredParent)
	if existing, exists := r.types[t.String()]; exists {
		if p, hasParent := existing.Parent(); hasParent && p.Equal(registeredParent) {
			return existing, nil
		}
		return ErrorType{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDuplicateErrorType, t),
			"Repository", "Register", "conflicting declaration")
	}

	r.types[t.String()] = t
	return t, nil
}

// RegisterString declares a type from its "NS:ID" form under a parent given the same way.
// An empty parent means Any.
func (r *Repository) RegisterString(typ, parent string) (ErrorType, error) {
	ns, id, err := Parse(typ)
	if err != nil {
		return ErrorType{}, err
	}
	p := Any
	if parent != "" {
		var ok bool
		p, ok = r.LookupString(parent)
		if !ok {
			return ErrorType{}, errors.WrapInvalid(
				fmt.Errorf("%w: parent %s", errors.ErrUnknownErrorType, parent),
				"Repository", "RegisterString", "parent lookup")
		}
	}
	return r.Register(ns, id, p)
}

// Lookup finds a declared type
func (r *Repository) Lookup(namespace, identifier string) (ErrorType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[New(namespace, identifier, nil).String()]
	return t, ok
}

// LookupString finds a declared type from its "NS:ID" form
func (r *Repository) LookupString(s string) (ErrorType, bool) {
	ns, id, err := Parse(s)
	if err != nil {
		return ErrorType{}, false
	}
	return r.Lookup(ns, id)
}

// Types returns every declared type sorted by its string form
func (r *Repository) Types() []ErrorType {
	r.mu.RLock()
	out := make([]ErrorType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Namespaces returns the distinct namespaces with declared types
func (r *Repository) Namespaces() []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, t := range r.types {
		seen[t.Namespace()] = struct{}{}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
