package flowtrace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/event"
	"github.com/c360/flowtrace/flowstack"
	"github.com/c360/flowtrace/metric"
	"github.com/c360/flowtrace/notification"
)

// FlowStackInfoKey is the context-info key carrying the rendered trace
const FlowStackInfoKey = "FlowStack"

// Protocol violation kinds
const (
	ViolationPopEmpty         = "pop_empty"
	ViolationPipelineMismatch = "pipeline_mismatch"
	ViolationAnnotateEmpty    = "annotate_empty"
	ViolationDepthExceeded    = "depth_exceeded"
	ViolationPanic            = "panic"
)

// Manager tracks the live call stack of every in-flight event context.
//
// Stacks are created on the first pipeline start of a context and released when
// its last pipeline completes, when a fork is joined, or when they have been
// idle for longer than Config.MaxIdle. Notification callbacks never panic and
// never fail; malformed sequences degrade to best-effort state and are counted
// as protocol violations.
type Manager struct {
	cfg      Config
	stacks   *registry
	active   atomic.Int64
	logger   *slog.Logger
	limiter  *rate.Limiter
	metrics  *metric.Metrics
	now      func() time.Time
	closed   atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

var (
	_ notification.PipelineListener  = (*Manager)(nil)
	_ notification.ComponentListener = (*Manager)(nil)
	_ notification.ContextProvider   = (*Manager)(nil)
)

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records call-stack metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.metrics = registry.CoreMetrics()
	}
}

// WithClock replaces time.Now for idle accounting
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager. When idle eviction is configured a background
// sweep runs until ctx is done or Close is called.
func NewManager(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "flowtrace", "NewManager", "validate config")
	}

	m := &Manager{
		cfg:      cfg,
		stacks:   newRegistry(),
		logger:   slog.Default(),
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "flowtrace")

	// A zero rate never logs; violations are still counted.
	burst := int(cfg.ViolationLogRate)
	if cfg.ViolationLogRate > 0 && burst < 1 {
		burst = 1
	}
	m.limiter = rate.NewLimiter(rate.Limit(cfg.ViolationLogRate), burst)

	if cfg.Enabled && cfg.MaxIdle > 0 {
		go m.cleanup(ctx)
	} else {
		close(m.done)
	}

	return m, nil
}

// Enabled reports whether notifications are tracked
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled && !m.closed.Load()
}

// OnPipelineStart pushes a frame for pipeline on the stack of ev's context
func (m *Manager) OnPipelineStart(ev *event.Event, pipeline string) {
	if !m.tracks(ev) {
		return
	}
	defer m.recoverPanic("pipeline start")

	e, created := m.stacks.acquire(ev.Context(), true, m.now())
	defer e.mu.Unlock()
	if created {
		m.active.Add(1)
		m.metrics.AddActiveStacks(1)
	}
	e.touched = m.now()

	if m.cfg.MaxDepth > 0 && e.stack.Depth() >= m.cfg.MaxDepth {
		e.overflow++
		m.metrics.RecordOverflow()
		m.violation(ViolationDepthExceeded, "Call stack depth exceeded, frame not recorded",
			"event_id", ev.ID(), "pipeline", pipeline, "max_depth", m.cfg.MaxDepth)
		return
	}
	e.stack = e.stack.Push(pipeline)
}

// OnPipelineComplete pops the most recent frame of ev's context. The stack is
// released once no pipeline remains active.
func (m *Manager) OnPipelineComplete(ev *event.Event, pipeline string) {
	if !m.tracks(ev) {
		return
	}
	defer m.recoverPanic("pipeline complete")

	e, _ := m.stacks.acquire(ev.Context(), false, time.Time{})
	if e == nil {
		m.violation(ViolationPopEmpty, "Pipeline completed without an active call stack",
			"event_id", ev.ID(), "pipeline", pipeline)
		return
	}
	defer e.mu.Unlock()
	e.touched = m.now()

	if e.overflow > 0 {
		e.overflow--
	} else {
		rest, popped, ok := e.stack.Pop()
		if !ok {
			m.violation(ViolationPopEmpty, "Pipeline completed on an empty call stack",
				"event_id", ev.ID(), "pipeline", pipeline)
		} else {
			e.stack = rest
			if popped.Pipeline != pipeline {
				m.violation(ViolationPipelineMismatch, "Completed pipeline does not match the innermost frame",
					"event_id", ev.ID(), "pipeline", pipeline, "frame", popped.Pipeline)
			}
		}
	}

	if e.empty() {
		m.releaseLocked(e, metric.EvictCompleted)
	}
}

// OnComponentPreInvoke records c as the component running in the innermost
// pipeline of ev's context and appends it to the shared processors trace.
func (m *Manager) OnComponentPreInvoke(ev *event.Event, c component.Component) {
	if !m.tracks(ev) {
		return
	}
	defer m.recoverPanic("component pre-invoke")

	ref := flowstack.NewComponentRef(m.cfg.ApplicationID, c)
	ev.Context().ProcessorsTrace().Add(ref.String())

	e, _ := m.stacks.acquire(ev.Context(), false, time.Time{})
	if e == nil {
		m.violation(ViolationAnnotateEmpty, "Component invoked outside any pipeline",
			"event_id", ev.ID(), "component_path", ref.Path)
		return
	}
	defer e.mu.Unlock()
	e.touched = m.now()

	if e.overflow > 0 {
		return
	}
	e.stack, _ = e.stack.Annotate(ref)
}

// CallStack returns a snapshot of the stack of ev's context. The snapshot is
// persistent: later notifications never change it.
func (m *Manager) CallStack(ev *event.Event) flowstack.CallStack {
	if ev == nil || ev.Context() == nil {
		return flowstack.CallStack{}
	}
	stack, _ := m.stacks.snapshot(ev.Context())
	return stack
}

// RenderedTrace renders the live stack of ev's context, most recent pipeline
// first. It returns "" when no pipeline is active.
func (m *Manager) RenderedTrace(ev *event.Event) string {
	return m.CallStack(ev).Render()
}

// ProcessorsTrace returns every component executed by the lineage of ctx, in
// execution order
func (m *Manager) ProcessorsTrace(ctx *event.Context) []string {
	if ctx == nil {
		return nil
	}
	return ctx.ProcessorsTrace().Entries()
}

// Fork derives n branch events from ev for parallel execution. Each branch
// runs on a child context carrying an independent copy of ev's current stack.
func (m *Manager) Fork(ev *event.Event, n int) []*event.Event {
	if n <= 0 || ev == nil {
		return nil
	}
	branches := make([]*event.Event, n)
	for i := range branches {
		branches[i] = ev.Fork()
	}
	if !m.tracks(ev) {
		return branches
	}
	defer m.recoverPanic("fork")

	parent, ok := m.stacks.snapshot(ev.Context())
	if !ok {
		return branches
	}
	now := m.now()
	for _, b := range branches {
		e, created := m.stacks.acquire(b.Context(), true, now)
		e.stack = parent.Clone()
		e.mu.Unlock()
		if created {
			m.active.Add(1)
			m.metrics.AddActiveStacks(1)
		}
	}
	return branches
}

// Join ends a fork. The parent's stack continues from where it was when the
// branches were created; whatever remains of the branch stacks is released.
// Processors trace entries of the branches stay in the shared trace.
func (m *Manager) Join(parent *event.Event, branches ...*event.Event) {
	if !m.tracks(parent) {
		return
	}
	defer m.recoverPanic("join")

	released := 0
	for _, b := range branches {
		if b == nil || b.Context() == nil || b.Context() == parent.Context() {
			continue
		}
		e, _ := m.stacks.acquire(b.Context(), false, time.Time{})
		if e == nil {
			continue
		}
		m.stacks.release(e)
		e.mu.Unlock()
		released++
	}
	if released > 0 {
		m.active.Add(int64(-released))
		m.metrics.AddActiveStacks(-released)
		m.metrics.RecordEviction(metric.EvictJoined, released)
	}
}

// ContextInfo implements notification.ContextProvider: the rendered trace of
// the failing event under FlowStackInfoKey.
func (m *Manager) ContextInfo(info notification.Info, _ component.Component) map[string]string {
	if !m.Enabled() || info.Event == nil || info.Event.Context() == nil {
		return nil
	}
	return map[string]string{FlowStackInfoKey: m.RenderedTrace(info.Event)}
}

// ActiveStacks returns the number of contexts with a live stack
func (m *Manager) ActiveStacks() int {
	return int(m.active.Load())
}

// Close stops the idle sweep and releases every stack. Notifications after
// Close are ignored.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrManagerClosed, "flowtrace", "Close", "close manager")
	}
	m.stopOnce.Do(func() { close(m.shutdown) })

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		return errors.WrapTransient(
			fmt.Errorf("timeout waiting for cleanup goroutine to finish"),
			"flowtrace", "Close", "stop idle sweep")
	}

	n := m.stacks.drain()
	m.metrics.AddActiveStacks(-int(m.active.Swap(0)))
	m.metrics.RecordEviction(metric.EvictClosed, n)
	return nil
}

func (m *Manager) tracks(ev *event.Event) bool {
	return m.Enabled() && ev != nil && ev.Context() != nil
}

// releaseLocked removes a locked entry and accounts for it
func (m *Manager) releaseLocked(e *entry, reason string) {
	m.stacks.release(e)
	m.active.Add(-1)
	m.metrics.AddActiveStacks(-1)
	m.metrics.RecordEviction(reason, 1)
}

func (m *Manager) violation(kind, msg string, args ...any) {
	m.metrics.RecordViolation(kind)
	if m.limiter.Allow() {
		m.logger.Warn(msg, append(args, "violation", kind)...)
	}
}

func (m *Manager) recoverPanic(op string) {
	if r := recover(); r != nil {
		m.violation(ViolationPanic, "Call stack notification panic recovered",
			"operation", op, "panic", fmt.Sprint(r))
	}
}

// cleanup periodically evicts idle stacks
func (m *Manager) cleanup(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle releases stacks untouched for longer than MaxIdle
func (m *Manager) evictIdle() int {
	cutoff := m.now().Add(-m.cfg.MaxIdle)
	evicted := 0
	for _, e := range m.stacks.idle(cutoff) {
		e.mu.Lock()
		if !e.removed && e.touched.Before(cutoff) {
			m.logger.Debug("Evicting idle call stack",
				"event_id", e.key, "origin", e.ctx.Origin(), "depth", e.depth(), "idle_since", e.touched)
			m.releaseLocked(e, metric.EvictIdle)
			evicted++
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		m.logger.Warn("Evicted abandoned call stacks", "count", evicted, "max_idle", m.cfg.MaxIdle)
	}
	return evicted
}
