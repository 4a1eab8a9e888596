// Package hazard implements a lock-free, chunked pool of reusable slots.
// Nodes are never freed once allocated: a slot is handed out by locking
// it, and returned to the pool by unlocking it, so a caller holding a
// *Guard can be certain the pool will never move or reclaim the
// underlying value out from under it, even without any reader-side
// synchronization with the pool's own growth.
//
// This is the allocator the hazard-backed Flash and EvMap strategies use
// in place of a mutex-guarded slice of reader registrations: growing the
// pool never blocks a concurrent Acquire, and a released slot is reused
// by the next Acquire instead of being freed.
package hazard

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// chunkSize is a plain constant rather than a type parameter: Go has no
// const generics, so a per-instance chunk size would require a slice
// instead of a fixed-size array field, trading one pointer dereference
// against the ability to tune chunk size at construction time. This pool
// is small (per-strategy reader/epoch registries, not general-purpose
// allocation), so a fixed-size array field is used to avoid the extra
// indirection.
const chunkSize = 4

// node pads its lock flag away from its value, so the flag and the value
// do not share a cache line; adjacent nodes are not padded apart.
type node[V any] struct {
	locked atomic.Bool
	_      cpu.CacheLinePad
	value  V
}

type chunk[V any] struct {
	next  atomic.Pointer[chunk[V]]
	items [chunkSize]node[V]
}

// Pool is a lock-free chunked pool of V slots.
type Pool[V any] struct {
	head atomic.Pointer[chunk[V]]
}

// NewPool returns an empty Pool.
func NewPool[V any]() *Pool[V] {
	return &Pool[V]{}
}

// Guard is a handle to a slot acquired from a Pool. Release must be
// called exactly once.
type Guard[V any] struct {
	n *node[V]
}

// Value returns a pointer to the acquired slot's value. The pointer
// remains valid until Release.
func (g *Guard[V]) Value() *V {
	return &g.n.value
}

// Release returns the slot to the pool, making it available to a future
// Acquire. The value is left as-is; the next Acquire of this slot will
// see whatever the previous holder left behind, matching the underlying
// allocator's "nodes are never freed, only relocked" contract.
func (g *Guard[V]) Release() {
	g.n.locked.Store(false)
}

// Acquire returns a locked slot, scanning existing chunks for a free
// node before allocating a new chunk. factory initializes a freshly
// allocated node's value; it is never called for a reused node.
func (p *Pool[V]) Acquire(factory func() V) *Guard[V] {
	for c := p.head.Load(); c != nil; c = c.next.Load() {
		for i := range c.items {
			n := &c.items[i]
			if n.locked.CompareAndSwap(false, true) {
				return &Guard[V]{n: n}
			}
		}
	}
	return p.insertChunk(factory)
}

func (p *Pool[V]) insertChunk(factory func() V) *Guard[V] {
	nc := &chunk[V]{}
	for i := range nc.items {
		nc.items[i].value = factory()
	}
	nc.items[0].locked.Store(true)
	guard := &Guard[V]{n: &nc.items[0]}

	for {
		old := p.head.Load()
		nc.next.Store(old)
		if p.head.CompareAndSwap(old, nc) {
			return guard
		}
	}
}

// All calls yield once for every node ever allocated by this pool,
// regardless of its current lock state, and stops early if yield returns
// false. Nodes are never removed from the pool, so this traversal is
// safe to run concurrently with Acquire/Release.
func (p *Pool[V]) All(yield func(*V) bool) {
	for c := p.head.Load(); c != nil; c = c.next.Load() {
		for i := range c.items {
			if !yield(&c.items[i].value) {
				return
			}
		}
	}
}
