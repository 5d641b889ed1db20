package main

import (
	"sync"
	"sync/atomic"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
)

// entityRef stands in for a simulation entity the daemon only knows by id.
type entityRef struct {
	id   uint64
	dead atomic.Bool
}

func (e *entityRef) ID() uint64   { return e.id }
func (e *entityRef) IsDead() bool { return e.dead.Load() }

type entityRegistry struct {
	mu   sync.Mutex
	refs map[uint64]*entityRef
}

func newEntityRegistry() *entityRegistry {
	return &entityRegistry{refs: map[uint64]*entityRef{}}
}

// Get returns the ref for id, creating a live one on first use.
func (r *entityRegistry) Get(id uint64) *entityRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.refs[id]
	if !ok {
		e = &entityRef{id: id}
		r.refs[id] = e
	}
	return e
}

// Resolve is the snapshot import resolver.
func (r *entityRegistry) Resolve(id uint64) designation.Entity {
	return r.Get(id)
}

// Kill marks id dead; its designations go at the next sweep. It reports
// whether the entity was known.
func (r *entityRegistry) Kill(id uint64) bool {
	r.mu.Lock()
	e, ok := r.refs[id]
	r.mu.Unlock()
	if ok {
		e.dead.Store(true)
	}
	return ok
}
