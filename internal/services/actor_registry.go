package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tides/internal/models"
)

// ActorRegistry hosts one OwnerActor per active owner. Actors are created on
// first use and reclaimed by ReapIdle.
type ActorRegistry struct {
	docs *DocumentStore
	cfg  ActorConfig

	mu     sync.Mutex
	actors map[string]*OwnerActor
}

// NewActorRegistry creates a registry whose actors keep their state in docs
func NewActorRegistry(docs *DocumentStore, cfg ActorConfig) *ActorRegistry {
	return &ActorRegistry{
		docs:   docs,
		cfg:    cfg.withDefaults(),
		actors: make(map[string]*OwnerActor),
	}
}

// Get returns the owner's actor, starting one if needed
func (r *ActorRegistry) Get(ownerID string) *OwnerActor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[ownerID]; ok {
		return a
	}
	a := newOwnerActor(ownerID, r.docs, r.cfg, r.discard)
	r.actors[ownerID] = a
	return a
}

// lookup returns the owner's actor without starting one
func (r *ActorRegistry) lookup(ownerID string) (*OwnerActor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[ownerID]
	return a, ok
}

// forget removes a from the registry if it is still the owner's actor
func (r *ActorRegistry) forget(a *OwnerActor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.actors[a.ownerID]; ok && current == a {
		delete(r.actors, a.ownerID)
	}
}

// discard forgets a failed actor so the next request starts a fresh one
func (r *ActorRegistry) discard(a *OwnerActor) {
	r.forget(a)
	a.Dispose()
}

// Submit runs fn in the owner's actor. A request that lost a race with the
// reaper is retried once on a fresh actor.
func (r *ActorRegistry) Submit(ctx context.Context, ownerID, op string, fn ActorFunc) (interface{}, error) {
	if err := models.ValidateID("owner_id", ownerID); err != nil {
		return nil, err
	}

	a := r.Get(ownerID)
	value, err := a.Submit(ctx, op, fn)
	if errors.Is(err, errActorDisposed) {
		r.forget(a)
		value, err = r.Get(ownerID).Submit(ctx, op, fn)
	}
	return value, err
}

// Do is Submit with a typed result
func Do[T any](ctx context.Context, r *ActorRegistry, ownerID, op string, fn func(ctx context.Context, a *OwnerActor) (T, error)) (T, error) {
	var zero T
	value, err := r.Submit(ctx, ownerID, op, func(ctx context.Context, a *OwnerActor) (interface{}, error) {
		return fn(ctx, a)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T", op, value)
	}
	return typed, nil
}

// Subscribe attaches a listener to the owner's actor
func (r *ActorRegistry) Subscribe(ctx context.Context, ownerID string, l Listener) error {
	_, err := r.Submit(ctx, ownerID, "subscribe", func(ctx context.Context, a *OwnerActor) (interface{}, error) {
		a.addListener(ctx, l)
		return nil, nil
	})
	return err
}

// Unsubscribe detaches a listener. It does not start an actor.
func (r *ActorRegistry) Unsubscribe(ownerID, listenerID string) {
	if a, ok := r.lookup(ownerID); ok {
		a.RemoveListener(listenerID)
	}
}

// Broadcast delivers an event to the owner's listeners on this instance.
// An owner without an actor has no listeners, so none is started.
func (r *ActorRegistry) Broadcast(ownerID string, event models.LiveEvent) int {
	a, ok := r.lookup(ownerID)
	if !ok {
		return 0
	}
	return a.Broadcast(event)
}

// Count returns the number of live actors
func (r *ActorRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// ReapIdle disposes actors idle for longer than ttl that have no listeners and
// nothing queued. Returns the number disposed.
func (r *ActorRegistry) ReapIdle(ttl time.Duration) int {
	r.mu.Lock()
	reaped := make([]*OwnerActor, 0)
	for ownerID, a := range r.actors {
		if a.Status() != ActorReady || a.ListenerCount() > 0 || a.QueueLength() > 0 {
			continue
		}
		if time.Since(a.IdleSince()) < ttl {
			continue
		}
		delete(r.actors, ownerID)
		reaped = append(reaped, a)
	}
	r.mu.Unlock()

	for _, a := range reaped {
		a.Dispose()
	}
	if len(reaped) > 0 {
		log.Printf("🧹 [ACTOR] Reaped %d idle actors", len(reaped))
	}
	return len(reaped)
}

// Shutdown disposes every actor
func (r *ActorRegistry) Shutdown() {
	r.mu.Lock()
	actors := r.actors
	r.actors = make(map[string]*OwnerActor)
	r.mu.Unlock()

	for _, a := range actors {
		a.Dispose()
	}
	log.Printf("🔌 [ACTOR] Registry shut down (%d actors disposed)", len(actors))
}
