package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tides/internal/models"
	"tides/internal/objectstore"
)

var errConnectionRefused = errors.New("connection refused")

// probeBackend wraps a backend with call counters and injectable failures
type probeBackend struct {
	objectstore.Backend

	gets  atomic.Int64
	puts  atomic.Int64
	lists atomic.Int64

	mu      sync.Mutex
	getErr  error
	putErr  error
	listErr error
	putFail func(key string) bool
	getHook func(key string)
}

func newProbeBackend(name string) *probeBackend {
	return &probeBackend{Backend: objectstore.NewMemoryBackend(name)}
}

func (p *probeBackend) setGetErr(err error) {
	p.mu.Lock()
	p.getErr = err
	p.mu.Unlock()
}

func (p *probeBackend) setListErr(err error) {
	p.mu.Lock()
	p.listErr = err
	p.mu.Unlock()
}

func (p *probeBackend) setPutFail(fn func(key string) bool) {
	p.mu.Lock()
	p.putFail = fn
	p.mu.Unlock()
}

func (p *probeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	p.gets.Add(1)
	p.mu.Lock()
	err, hook := p.getErr, p.getHook
	p.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if err != nil {
		return nil, err
	}
	return p.Backend.Get(ctx, key)
}

func (p *probeBackend) Put(ctx context.Context, key string, body []byte) error {
	p.puts.Add(1)
	p.mu.Lock()
	err, fail := p.putErr, p.putFail
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if fail != nil && fail(key) {
		return models.Unavailable(p.Name(), errConnectionRefused)
	}
	return p.Backend.Put(ctx, key, body)
}

func (p *probeBackend) List(ctx context.Context, prefix string) ([]string, error) {
	p.lists.Add(1)
	p.mu.Lock()
	err := p.listErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return p.Backend.List(ctx, prefix)
}

// unavailable returns a transient backend failure
func unavailable(name string) error {
	return models.Unavailable(name, errConnectionRefused)
}

// fakeListener records delivered events
type fakeListener struct {
	id string

	mu       sync.Mutex
	events   []models.LiveEvent
	closed   bool
	failSend bool
}

func newFakeListener(id string) *fakeListener {
	return &fakeListener{id: id}
}

func (l *fakeListener) ID() string { return l.id }

func (l *fakeListener) Send(event models.LiveEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSend {
		return errors.New("write failed")
	}
	l.events = append(l.events, event)
	return nil
}

func (l *fakeListener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeListener) Events() []models.LiveEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.LiveEvent(nil), l.events...)
}

func (l *fakeListener) setClosed() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *fakeListener) setFailSend() {
	l.mu.Lock()
	l.failSend = true
	l.mu.Unlock()
}

// testEnv is a TideService over a probed memory backend
type testEnv struct {
	backend *probeBackend
	source  Source
	actors  *ActorRegistry
	service *TideService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := newProbeBackend("primary")
	source := NewSource("primary", NewDocumentStore(backend))
	actors := NewActorRegistry(source.Docs, ActorConfig{QueueTimeout: 2 * time.Second})
	t.Cleanup(actors.Shutdown)

	service := NewTideService(TideServiceConfig{
		Primary:  source,
		Resolver: NewMultiSourceResolver(source),
		Actors:   actors,
	})

	return &testEnv{backend: backend, source: source, actors: actors, service: service}
}

// seedTide writes a tide document directly into docs
func seedTide(t *testing.T, docs *DocumentStore, id, ownerID string, createdAt time.Time) *models.Tide {
	t.Helper()

	tide := &models.Tide{
		ID:        id,
		OwnerID:   ownerID,
		Name:      "Tide " + id,
		FlowType:  models.FlowTypeDaily,
		Status:    models.TideStatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := docs.PutTide(context.Background(), tide); err != nil {
		t.Fatalf("Failed to seed tide %s: %v", id, err)
	}
	return tide
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %s", timeout)
}
