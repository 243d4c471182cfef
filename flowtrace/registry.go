package flowtrace

import (
	"hash/maphash"
	"sync"
	"time"

	"github.com/c360/flowtrace/event"
	"github.com/c360/flowtrace/flowstack"
)

const shardCount = 32

// entry is the call stack of one event context. All fields are guarded by mu.
type entry struct {
	mu       sync.Mutex
	key      string
	ctx      *event.Context
	stack    flowstack.CallStack
	overflow int
	touched  time.Time
	removed  bool
}

// depth counts stored and overflowed pipeline entries
func (e *entry) depth() int {
	return e.stack.Depth() + e.overflow
}

func (e *entry) empty() bool {
	return e.stack.IsEmpty() && e.overflow == 0
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// registry maps context identity to call stacks. Shard locks only guard map
// access; mutations of one context serialize on its entry lock, so different
// contexts never contend beyond a map lookup.
type registry struct {
	seed   maphash.Seed
	shards [shardCount]shard
}

func newRegistry() *registry {
	r := &registry{seed: maphash.MakeSeed()}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry)
	}
	return r
}

func (r *registry) shardFor(key string) *shard {
	return &r.shards[maphash.String(r.seed, key)%shardCount]
}

// acquire returns the locked entry of ctx. With create false a missing entry
// yields nil; with create true the entry is created and created reports it.
func (r *registry) acquire(ctx *event.Context, create bool, now time.Time) (e *entry, created bool) {
	key := ctx.ID()
	s := r.shardFor(key)
	for {
		s.mu.Lock()
		e = s.entries[key]
		if e == nil {
			if !create {
				s.mu.Unlock()
				return nil, false
			}
			e = &entry{key: key, ctx: ctx, touched: now}
			s.entries[key] = e
			created = true
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e, created
		}
		// Removed between lookup and lock; retry against the map.
		e.mu.Unlock()
		created = false
	}
}

// release removes a locked entry from the map. The caller keeps holding e.mu.
func (r *registry) release(e *entry) {
	e.removed = true
	s := r.shardFor(e.key)
	s.mu.Lock()
	if s.entries[e.key] == e {
		delete(s.entries, e.key)
	}
	s.mu.Unlock()
}

// snapshot returns the current stack of ctx without creating an entry
func (r *registry) snapshot(ctx *event.Context) (flowstack.CallStack, bool) {
	e, _ := r.acquire(ctx, false, time.Time{})
	if e == nil {
		return flowstack.CallStack{}, false
	}
	defer e.mu.Unlock()
	return e.stack, true
}

// idle collects entries untouched since cutoff
func (r *registry) idle(cutoff time.Time) []*entry {
	var out []*entry
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		candidates := make([]*entry, 0, len(s.entries))
		for _, e := range s.entries {
			candidates = append(candidates, e)
		}
		s.mu.Unlock()

		for _, e := range candidates {
			e.mu.Lock()
			if !e.removed && e.touched.Before(cutoff) {
				out = append(out, e)
			}
			e.mu.Unlock()
		}
	}
	return out
}

// drain removes every entry and returns how many there were
func (r *registry) drain() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		entries := s.entries
		s.entries = make(map[string]*entry)
		s.mu.Unlock()

		for _, e := range entries {
			e.mu.Lock()
			e.removed = true
			e.mu.Unlock()
			n++
		}
	}
	return n
}
