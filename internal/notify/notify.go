// Package notify implements the notification subsystem from spec.md §4.8:
// a config table, a matcher invoked after every successful write, and
// bounded delivery queues with a drop-newest overflow policy (grounded on
// the non-blocking select/default publish pattern used for the engine's
// internal event bus).
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/types"
)

// Target distinguishes the two NotifyConfig shapes from spec.md §4.8.
type Target struct {
	// Entity is set when the config targets one specific entity; Type is
	// set (and Entity left zero) when it targets every entity of a type.
	Entity   types.EntityId
	HasEntity bool
	Type     types.EntityTypeHandle
}

// Config is one standing subscription.
type Config struct {
	ID              string
	Target          Target
	Field           types.FieldTypeHandle
	TriggerOnChange bool
	// Context is a set of indirection paths rooted at the notifying entity,
	// resolved at the instant of the write and attached to every
	// Notification this config produces.
	Context [][]indirect.Token
}

// Snapshot is the (value, timestamp, writer) triple attached to the old and
// new side of a Notification.
type Snapshot struct {
	Value     types.Value
	Timestamp int64 // UnixNano
	Writer    string
}

// ContextValue is one resolved context-path entry. Unresolved paths set
// Unresolved true instead of failing the whole notification (spec.md §4.8,
// "unresolvable context paths map to a BadIndirection sentinel, not an
// operation failure").
type ContextValue struct {
	Value      types.Value
	Unresolved bool
}

// Notification is one delivered record.
type Notification struct {
	ConfigID string
	Entity   types.EntityId
	Field    types.FieldTypeHandle
	Old      Snapshot
	New      Snapshot
	Context  map[int]ContextValue // indexed by position in Config.Context
}

// Queue is a bounded MPMC buffer with drop-newest overflow (spec.md §4.8).
// Implementations may instead choose to block; this one drops, which is
// the deployment-observable choice this repository makes.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []Notification
	cap     int
	closed  bool
	dropped atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	q := &Queue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushBack enqueues n, dropping it (and incrementing Dropped) if the queue
// is at capacity.
func (q *Queue) PushBack(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.buf) >= q.cap {
		q.dropped.Add(1)
		return
	}
	q.buf = append(q.buf, n)
	q.cond.Signal()
}

// PopFront blocks until a notification is available or the queue is
// closed, in which case it returns (Notification{}, false).
func (q *Queue) PopFront() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return Notification{}, false
	}
	n := q.buf[0]
	q.buf = q.buf[1:]
	return n, true
}

// TryPopFront is the non-blocking variant used by pollers (e.g. the wire
// layer's out-of-band frame writer).
func (q *Queue) TryPopFront() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return Notification{}, false
	}
	n := q.buf[0]
	q.buf = q.buf[1:]
	return n, true
}

// Close unblocks any pending PopFront and marks the queue as no longer
// accepting pushes (spec.md §5, "subscriptions belonging to a closed
// connection are unregistered; their queues are drained and discarded").
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Dropped returns the number of notifications discarded due to overflow.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Registry holds every registered Config and its target Queue.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

type subscription struct {
	cfg   Config
	queue *Queue
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*subscription)}
}

// Register installs cfg delivering to queue and returns the subscription id.
func (r *Registry) Register(cfg Config, queue *Queue) string {
	id := uuid.NewString()
	cfg.ID = id
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[id] = &subscription{cfg: cfg, queue: queue}
	return id
}

// Unregister removes a subscription and closes its queue.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		sub.queue.Close()
	}
}

// UnregisterAll removes and closes every subscription whose id is in ids,
// used when a connection closes (spec.md §5).
func (r *Registry) UnregisterAll(ids []string) {
	for _, id := range ids {
		r.Unregister(id)
	}
}

// Resolver resolves a context path at the instant of a write; the executor
// supplies an implementation backed by internal/indirect + internal/store.
type Resolver interface {
	ResolveContext(entity types.EntityId, path []indirect.Token) (types.Value, error)
}

// Dispatch matches every registered config against (entity, field) and
// enqueues a Notification to each matching config's queue (spec.md §4.8).
// before/after carry the cell's value/timestamp/writer from immediately before
// and after the write that triggered this dispatch.
func (r *Registry) Dispatch(entityType types.EntityTypeHandle, entity types.EntityId, field types.FieldTypeHandle, before, after Snapshot, resolver Resolver) {
	r.mu.RLock()
	matches := make([]*subscription, 0)
	for _, sub := range r.subs {
		if !matchesTarget(sub.cfg.Target, entityType, entity) {
			continue
		}
		if sub.cfg.Field != field {
			continue
		}
		matches = append(matches, sub)
	}
	r.mu.RUnlock()

	if len(matches) == 0 {
		return
	}

	for _, sub := range matches {
		if sub.cfg.TriggerOnChange && before.Value.Equal(after.Value) {
			continue
		}
		ctx := make(map[int]ContextValue, len(sub.cfg.Context))
		for i, path := range sub.cfg.Context {
			v, err := resolver.ResolveContext(entity, path)
			if err != nil {
				ctx[i] = ContextValue{Unresolved: true}
				continue
			}
			ctx[i] = ContextValue{Value: v}
		}
		sub.queue.PushBack(Notification{
			ConfigID: sub.cfg.ID,
			Entity:   entity,
			Field:    field,
			Old:      before,
			New:      after,
			Context:  ctx,
		})
	}
}

func matchesTarget(t Target, entityType types.EntityTypeHandle, entity types.EntityId) bool {
	if t.HasEntity {
		return t.Entity == entity
	}
	return t.Type == entityType
}
