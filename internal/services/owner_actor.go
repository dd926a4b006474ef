package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"tides/internal/models"
)

// ActorStatus is the lifecycle state of an owner actor
type ActorStatus string

const (
	ActorUninitialized ActorStatus = "uninitialized"
	ActorInitializing  ActorStatus = "initializing"
	ActorReady         ActorStatus = "ready"
	ActorBusy          ActorStatus = "busy"
	ActorDisposed      ActorStatus = "disposed"
	ActorFailed        ActorStatus = "failed"
)

// Default actor tuning
const (
	DefaultActorQueueTimeout = 10 * time.Second
	DefaultActorInboxSize    = 256
)

// errActorDisposed marks a request that never ran because its actor was
// disposed. The registry retries such requests on a fresh actor.
var errActorDisposed = fmt.Errorf("%w: actor disposed", models.ErrActorUnavailable)

// Listener receives live events for one owner. Send must not block.
type Listener interface {
	ID() string
	Send(event models.LiveEvent) error
	Closed() bool
}

// ActorFunc runs inside the owner's actor, one at a time
type ActorFunc func(ctx context.Context, a *OwnerActor) (interface{}, error)

// ActorConfig tunes owner actors
type ActorConfig struct {
	// QueueTimeout bounds how long a request may wait to be picked up
	QueueTimeout time.Duration
	InboxSize    int
}

func (c ActorConfig) withDefaults() ActorConfig {
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = DefaultActorQueueTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultActorInboxSize
	}
	return c
}

// request states
const (
	requestPending int32 = iota
	requestRunning
	requestAbandoned
)

type actorResult struct {
	value interface{}
	err   error
}

type actorRequest struct {
	op    string
	ctx   context.Context
	fn    ActorFunc
	state atomic.Int32
	done  chan actorResult
}

// start claims the request for execution. False means the caller gave up.
func (r *actorRequest) start() bool {
	return r.state.CompareAndSwap(requestPending, requestRunning)
}

// abandon withdraws a request that has not started. False means it is running.
func (r *actorRequest) abandon() bool {
	return r.state.CompareAndSwap(requestPending, requestAbandoned)
}

func (r *actorRequest) reject(err error) {
	if r.abandon() {
		r.done <- actorResult{err: err}
	}
}

// OwnerActor is the single point of serialization for one owner. A dedicated
// goroutine loads the actor state, then executes requests from the inbox one
// at a time in arrival order. It also holds the owner's live listeners.
type OwnerActor struct {
	ownerID string
	docs    *DocumentStore
	cfg     ActorConfig

	inbox    chan *actorRequest
	stop     chan struct{}
	stopOnce sync.Once
	onFailed func(*OwnerActor)

	statusMu sync.RWMutex
	status   ActorStatus
	initErr  error

	// state is touched only by the run goroutine
	state *models.ActorState

	listenersMu sync.Mutex
	listeners   map[string]Listener

	lastActive atomic.Int64
}

// NewOwnerActor creates and starts an actor. Actor state is kept in docs.
func NewOwnerActor(ownerID string, docs *DocumentStore, cfg ActorConfig) *OwnerActor {
	return newOwnerActor(ownerID, docs, cfg, nil)
}

func newOwnerActor(ownerID string, docs *DocumentStore, cfg ActorConfig, onFailed func(*OwnerActor)) *OwnerActor {
	cfg = cfg.withDefaults()
	a := &OwnerActor{
		ownerID:   ownerID,
		docs:      docs,
		cfg:       cfg,
		inbox:     make(chan *actorRequest, cfg.InboxSize),
		stop:      make(chan struct{}),
		onFailed:  onFailed,
		status:    ActorUninitialized,
		listeners: make(map[string]Listener),
	}
	a.touch()
	go a.run()
	return a
}

// OwnerID returns the owner this actor serializes
func (a *OwnerActor) OwnerID() string {
	return a.ownerID
}

// Status returns the current lifecycle state
func (a *OwnerActor) Status() ActorStatus {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *OwnerActor) setStatus(s ActorStatus) {
	a.statusMu.Lock()
	a.status = s
	a.statusMu.Unlock()
}

func (a *OwnerActor) touch() {
	a.lastActive.Store(time.Now().UnixNano())
}

// IdleSince returns when the actor last finished a request or changed listeners
func (a *OwnerActor) IdleSince() time.Time {
	return time.Unix(0, a.lastActive.Load())
}

// QueueLength returns the number of requests waiting in the inbox
func (a *OwnerActor) QueueLength() int {
	return len(a.inbox)
}

// Dispose stops the actor. Waiting requests are rejected.
func (a *OwnerActor) Dispose() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
}

func (a *OwnerActor) run() {
	a.setStatus(ActorInitializing)

	if err := a.initialize(); err != nil {
		a.statusMu.Lock()
		a.status = ActorFailed
		a.initErr = err
		a.statusMu.Unlock()

		log.Printf("❌ [ACTOR] Initialization failed for owner %s: %v", a.ownerID, err)
		if a.onFailed != nil {
			a.onFailed(a)
		}

		rejectErr := fmt.Errorf("%w: initialization failed: %v", models.ErrActorUnavailable, err)
		for {
			select {
			case req := <-a.inbox:
				req.reject(rejectErr)
			case <-a.stop:
				a.drain(rejectErr)
				return
			}
		}
	}

	a.setStatus(ActorReady)

	for {
		select {
		case <-a.stop:
			a.setStatus(ActorDisposed)
			a.drain(errActorDisposed)
			log.Printf("🔌 [ACTOR] Disposed actor for owner %s", a.ownerID)
			return
		case req := <-a.inbox:
			a.handle(req)
		}
	}
}

func (a *OwnerActor) drain(err error) {
	for {
		select {
		case req := <-a.inbox:
			req.reject(err)
		default:
			return
		}
	}
}

// initialize loads the persisted actor state. A missing state starts fresh.
func (a *OwnerActor) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.QueueTimeout)
	defer cancel()

	var state models.ActorState
	err := a.docs.Get(ctx, ActorStateKey(a.ownerID), &state)
	switch {
	case errors.Is(err, models.ErrNotFound):
		state = models.ActorState{OwnerID: a.ownerID}
	case err != nil:
		return err
	}
	if state.Preferences == nil {
		state.Preferences = make(map[string]string)
	}
	a.state = &state
	return nil
}

func (a *OwnerActor) handle(req *actorRequest) {
	if !req.start() {
		return
	}

	a.setStatus(ActorBusy)
	value, err := a.execute(req)
	a.setStatus(ActorReady)
	a.touch()

	GetMetrics().RecordActorMutation(req.op, err)
	req.done <- actorResult{value: value, err: err}
}

func (a *OwnerActor) execute(req *actorRequest) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [ACTOR] Panic in %s for owner %s: %v\n%s", req.op, a.ownerID, r, debug.Stack())
			err = fmt.Errorf("%s panicked: %v", req.op, r)
		}
	}()
	return req.fn(req.ctx, a)
}

// Submit queues fn and waits for its result. If the request is not picked up
// within the queue timeout it is withdrawn and ErrActorUnavailable returned;
// a withdrawn request never runs. Once running, Submit waits for completion.
func (a *OwnerActor) Submit(ctx context.Context, op string, fn ActorFunc) (interface{}, error) {
	a.statusMu.RLock()
	status, initErr := a.status, a.initErr
	a.statusMu.RUnlock()

	switch status {
	case ActorDisposed:
		return nil, errActorDisposed
	case ActorFailed:
		return nil, fmt.Errorf("%w: initialization failed: %v", models.ErrActorUnavailable, initErr)
	}

	req := &actorRequest{op: op, ctx: ctx, fn: fn, done: make(chan actorResult, 1)}

	timer := time.NewTimer(a.cfg.QueueTimeout)
	defer timer.Stop()

	select {
	case a.inbox <- req:
	case <-timer.C:
		GetMetrics().RecordActorQueueTimeout()
		return nil, fmt.Errorf("%w: inbox full for owner %s", models.ErrActorUnavailable, a.ownerID)
	case <-a.stop:
		return nil, errActorDisposed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeout := timer.C
	stopped := a.stop
	cancelled := ctx.Done()
	for {
		select {
		case res := <-req.done:
			return res.value, res.err
		case <-timeout:
			if req.abandon() {
				GetMetrics().RecordActorQueueTimeout()
				return nil, fmt.Errorf("%w: timed out after %s waiting for owner %s", models.ErrActorUnavailable, a.cfg.QueueTimeout, a.ownerID)
			}
			timeout = nil
		case <-stopped:
			if req.abandon() {
				return nil, errActorDisposed
			}
			stopped = nil
		case <-cancelled:
			if req.abandon() {
				return nil, ctx.Err()
			}
			cancelled = nil
		}
	}
}

// persistState writes the actor state. Only call from inside the actor.
func (a *OwnerActor) persistState(ctx context.Context) error {
	a.state.UpdatedAt = time.Now().UTC()
	return a.docs.Put(ctx, ActorStateKey(a.ownerID), a.state)
}

// snapshotState copies the actor state. Only call from inside the actor.
func (a *OwnerActor) snapshotState() models.ActorState {
	snapshot := *a.state
	snapshot.Preferences = make(map[string]string, len(a.state.Preferences))
	for k, v := range a.state.Preferences {
		snapshot.Preferences[k] = v
	}
	return snapshot
}

// addListener records the listener and its connection bookkeeping. Only call
// from inside the actor. A failed bookkeeping write does not reject the listener.
func (a *OwnerActor) addListener(ctx context.Context, l Listener) {
	a.listenersMu.Lock()
	_, existed := a.listeners[l.ID()]
	a.listeners[l.ID()] = l
	count := len(a.listeners)
	a.listenersMu.Unlock()

	if !existed {
		GetMetrics().RecordListenerAttached()
	}

	now := time.Now().UTC()
	a.state.TotalConnections++
	a.state.LastConnectedAt = &now
	if err := a.persistState(ctx); err != nil {
		log.Printf("⚠️ [ACTOR] Failed to persist connection bookkeeping for owner %s: %v", a.ownerID, err)
	}

	log.Printf("✅ [ACTOR] Listener %s subscribed to owner %s (Total: %d)", l.ID(), a.ownerID, count)
}

// RemoveListener detaches a listener. Unknown ids are ignored.
func (a *OwnerActor) RemoveListener(id string) {
	a.listenersMu.Lock()
	_, ok := a.listeners[id]
	delete(a.listeners, id)
	a.listenersMu.Unlock()

	if ok {
		GetMetrics().RecordListenerDetached()
		a.touch()
	}
}

// ListenerCount returns the number of attached listeners
func (a *OwnerActor) ListenerCount() int {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	return len(a.listeners)
}

// Broadcast delivers event to every listener and drops the ones that are
// closed or fail delivery. Returns the number of successful deliveries.
func (a *OwnerActor) Broadcast(event models.LiveEvent) int {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()

	delivered := 0
	for id, l := range a.listeners {
		if l.Closed() {
			delete(a.listeners, id)
			GetMetrics().RecordListenerDetached()
			continue
		}
		if err := l.Send(event); err != nil {
			log.Printf("⚠️ [ACTOR] Dropping listener %s for owner %s: %v", id, a.ownerID, err)
			delete(a.listeners, id)
			GetMetrics().RecordListenerDetached()
			continue
		}
		delivered++
	}
	return delivered
}
