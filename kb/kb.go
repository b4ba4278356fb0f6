package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// ErrBodyNotFound is returned when a body id is not registered.
var ErrBodyNotFound = errors.New("body not found")

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventBodyAttached EventType = iota
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Body model.BodyDefinition
}

// Entry is a registered body with its trajectory.
type Entry struct {
	Definition model.BodyDefinition
	Trajectory model.Trajectory
}

// Registry is an in-memory, thread-safe store of the bodies in the scene.
// Bodies are only ever attached; a body id is registered at most once.
type Registry struct {
	mu sync.RWMutex

	bodies map[string]Entry
	order  []string

	nextSub int
	subs    map[int]func(Event)
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bodies: make(map[string]Entry),
		subs:   make(map[int]func(Event)),
	}
}

// Attach registers a body. Attaching an id that is already registered is a
// no-op and reports added=false; subscribers are only notified for new
// bodies.
func (r *Registry) Attach(def model.BodyDefinition, traj model.Trajectory) (added bool, err error) {
	if def.ID == "" {
		return false, fmt.Errorf("attach: body id is empty")
	}
	if traj == nil {
		return false, fmt.Errorf("attach %q: trajectory is nil", def.ID)
	}

	r.mu.Lock()
	if _, exists := r.bodies[def.ID]; exists {
		r.mu.Unlock()
		return false, nil
	}
	r.bodies[def.ID] = Entry{Definition: def, Trajectory: traj}
	r.order = append(r.order, def.ID)
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	ev := Event{Type: EventBodyAttached, Body: def}
	for _, fn := range subs {
		fn(ev)
	}
	return true, nil
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bodies[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrBodyNotFound, id)
	}
	return e, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bodies[id]
	return ok
}

// List returns a snapshot of every entry in attach order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		res = append(res, r.bodies[id])
	}
	return res
}

// Len returns the number of registered bodies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function; calling it more than once is safe.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}
