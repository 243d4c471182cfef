package errortype

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errors"
)

// Locator maps a single cause onto an error type. Implementations must classify
// only the error they are given, never its wrapped causes: the resolver walks
// the chain itself and asks about every link.
type Locator interface {
	// LookupErrorType classifies err without any component context
	LookupErrorType(err error) ErrorType
	// LookupComponentErrorType classifies err as raised by a component of kind id
	LookupComponentErrorType(id component.Identifier, err error) ErrorType
}

// MatchFunc decides whether a single error belongs to a binding
type MatchFunc func(err error) bool

type binding struct {
	match MatchFunc
	typ   ErrorType
}

// Catalog is the default Locator. Bindings are consulted in registration order,
// component-namespace bindings before global ones.
type Catalog struct {
	repo          *Repository
	mu            sync.RWMutex
	global        []binding
	byNamespace   map[string][]binding
	classFallback bool
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithClassFallback classifies OpError values from the errors package by class:
// transient as CONNECTIVITY, invalid as VALIDATION and fatal as CRITICAL.
func WithClassFallback() CatalogOption {
	return func(c *Catalog) {
		c.classFallback = true
	}
}

// NewCatalog creates a catalog over repo. Context deadline and cancellation
// errors are bound to TIMEOUT from the start.
func NewCatalog(repo *Repository, opts ...CatalogOption) *Catalog {
	if repo == nil {
		repo = NewRepository()
	}
	c := &Catalog{
		repo:        repo,
		byNamespace: make(map[string][]binding),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.global = append(c.global,
		binding{match: Same(context.DeadlineExceeded), typ: Timeout},
		binding{match: Same(context.Canceled), typ: Timeout},
	)
	return c
}

// Repository returns the repository the catalog resolves names against
func (c *Catalog) Repository() *Repository {
	return c.repo
}

// Bind classifies errors matched by fn as t. An empty namespace binds globally.
func (c *Catalog) Bind(namespace string, fn MatchFunc, t ErrorType) error {
	if fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Catalog", "Bind", "nil matcher")
	}
	declared, ok := c.repo.Lookup(t.Namespace(), t.Identifier())
	if !ok {
		return errors.WrapInvalid(errors.ErrUnknownErrorType, "Catalog", "Bind", "error type "+t.String())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The declared instance carries the parent chain
	b := binding{match: fn, typ: declared}
	if namespace == "" {
		c.global = append(c.global, b)
		return nil
	}
	ns := strings.ToLower(namespace)
	c.byNamespace[ns] = append(c.byNamespace[ns], b)
	return nil
}

// BindError classifies the sentinel target (and errors reporting Is(target)) as t
func (c *Catalog) BindError(namespace string, target error, t ErrorType) error {
	if target == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Catalog", "BindError", "nil target")
	}
	return c.Bind(namespace, Same(target), t)
}

// BindType classifies every error whose dynamic type is E as t
func BindType[E error](c *Catalog, namespace string, t ErrorType) error {
	return c.Bind(namespace, func(err error) bool {
		_, ok := err.(E)
		return ok
	}, t)
}

// LookupErrorType implements Locator
func (c *Catalog) LookupErrorType(err error) ErrorType {
	if err == nil {
		return Unknown
	}
	if typed, ok := err.(Typed); ok {
		if t := typed.ErrorType(); !t.IsZero() {
			return t
		}
	}

	c.mu.RLock()
	t, ok := firstMatch(c.global, err)
	c.mu.RUnlock()
	if ok {
		return t
	}

	if c.classFallback {
		if class, isOp := errors.ClassOf(err); isOp {
			switch class {
			case errors.ErrorTransient:
				return Connectivity
			case errors.ErrorInvalid:
				return Validation
			case errors.ErrorFatal:
				return Critical
			}
		}
	}
	return Unknown
}

// LookupComponentErrorType implements Locator
func (c *Catalog) LookupComponentErrorType(id component.Identifier, err error) ErrorType {
	if err == nil {
		return Unknown
	}
	if id.Namespace != "" {
		c.mu.RLock()
		t, ok := firstMatch(c.byNamespace[strings.ToLower(id.Namespace)], err)
		c.mu.RUnlock()
		if ok {
			return t
		}
	}
	return c.LookupErrorType(err)
}

func firstMatch(bindings []binding, err error) (ErrorType, bool) {
	for _, b := range bindings {
		if b.match(err) {
			return b.typ, true
		}
	}
	return ErrorType{}, false
}

// Same matches target itself, or an error whose own Is method reports target.
// It never unwraps.
func Same(target error) MatchFunc {
	canCompare := reflect.TypeOf(target).Comparable()
	return func(err error) bool {
		if err == nil {
			return false
		}
		if canCompare && reflect.TypeOf(err) == reflect.TypeOf(target) && err == target {
			return true
		}
		if x, ok := err.(interface{ Is(error) bool }); ok {
			return x.Is(target)
		}
		return false
	}
}
