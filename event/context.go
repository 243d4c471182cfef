package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context identifies one unit of work flowing through the runtime.
//
// A Context is immutable once created. Forking an event for parallel branches
// creates child contexts through Child: each child has its own identity, so the
// call-stack manager tracks it separately, but all of them share the root's
// ProcessorsTrace.
type Context struct {
	id        string
	origin    string
	createdAt time.Time
	parent    *Context
	trace     *ProcessorsTrace
}

// ContextOption configures a Context at construction
type ContextOption func(*Context)

// WithID sets a specific identifier instead of a generated one.
// Useful for correlating with identifiers issued by an upstream system.
func WithID(id string) ContextOption {
	return func(c *Context) {
		if id != "" {
			c.id = id
		}
	}
}

// WithCreatedAt sets the creation time instead of time.Now()
func WithCreatedAt(t time.Time) ContextOption {
	return func(c *Context) {
		c.createdAt = t
	}
}

// NewContext creates a root context. origin names where the work entered the
// system, typically the source component of the first pipeline.
func NewContext(origin string, opts ...ContextOption) *Context {
	c := &Context{
		id:        uuid.New().String(),
		origin:    origin,
		createdAt: time.Now(),
		trace:     &ProcessorsTrace{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Child creates a context for a forked branch of c
func (c *Context) Child() *Context {
	return &Context{
		id:        uuid.New().String(),
		origin:    c.origin,
		createdAt: time.Now(),
		parent:    c,
		trace:     c.trace,
	}
}

// ID returns the stable identity of the context
func (c *Context) ID() string {
	return c.id
}

// Origin returns where the unit of work entered the system
func (c *Context) Origin() string {
	return c.origin
}

// CreatedAt returns when the context was created
func (c *Context) CreatedAt() time.Time {
	return c.createdAt
}

// Parent returns the context c was forked from, or nil for a root context
func (c *Context) Parent() *Context {
	return c.parent
}

// Root returns the outermost ancestor of c
func (c *Context) Root() *Context {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Depth returns the number of forks between c and its root
func (c *Context) Depth() int {
	depth := 0
	for p := c.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// ProcessorsTrace returns the execution trace shared by the whole lineage
func (c *Context) ProcessorsTrace() *ProcessorsTrace {
	return c.trace
}

// ProcessorsTrace is an append-only, order-preserving record of every
// component that executed for an event lineage, forked branches included.
type ProcessorsTrace struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an executed component reference
func (p *ProcessorsTrace) Add(entry string) {
	p.mu.Lock()
	p.entries = append(p.entries, entry)
	p.mu.Unlock()
}

// Entries returns a copy of the trace in execution order
func (p *ProcessorsTrace) Entries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of recorded entries
func (p *ProcessorsTrace) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
