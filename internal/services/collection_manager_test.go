package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"tides/internal/models"
	"tides/internal/objectstore"
)

func newTestManager(t *testing.T) (*CollectionManager, *DocumentStore, *probeBackend) {
	t.Helper()
	backend := newProbeBackend("primary")
	docs := NewDocumentStore(backend)
	return NewCollectionManager(docs, NewSecondaryIndex(docs)), docs, backend
}

func TestCollectionManager_AppendMonotonicity(t *testing.T) {
	ctx := context.Background()
	m, docs, _ := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	durations := []int{10, 25, 50, 5, 90}
	for _, d := range durations {
		if _, err := m.AppendFlowSession(ctx, "user-1", "tide-1", models.FlowSession{Intensity: models.IntensityModerate, Duration: d}); err != nil {
			t.Fatalf("Failed to append session of %d: %v", d, err)
		}
	}

	tide, _ := docs.GetTide(ctx, "tide-1")
	if len(tide.FlowSessions) != len(durations) {
		t.Fatalf("Expected %d sessions, got %d", len(durations), len(tide.FlowSessions))
	}
	for i, d := range durations {
		if tide.FlowSessions[i].Duration != d {
			t.Errorf("Session %d: expected duration %d, got %d", i, d, tide.FlowSessions[i].Duration)
		}
	}
}

func TestCollectionManager_ItemIDs(t *testing.T) {
	ctx := context.Background()
	m, docs, _ := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	session, _ := m.AppendFlowSession(ctx, "user-1", "tide-1", models.FlowSession{Intensity: models.IntensityGentle, Duration: 5})
	energy, _ := m.AppendEnergyUpdate(ctx, "user-1", "tide-1", models.EnergyUpdate{EnergyLevel: "high"})
	link, _ := m.AppendTaskLink(ctx, "user-1", "tide-1", models.TaskLink{TaskURL: "https://tracker/1", TaskTitle: "Ship it"})

	checks := map[string]string{
		session.ID: `^session_\d+_[0-9a-z]{6}$`,
		energy.ID:  `^energy_\d+_[0-9a-z]{6}$`,
		link.ID:    `^link_\d+_[0-9a-z]{6}$`,
	}
	for id, pattern := range checks {
		if !regexp.MustCompile(pattern).MatchString(id) {
			t.Errorf("ID %q does not match %s", id, pattern)
		}
	}

	if session.TideID != "tide-1" || energy.TideID != "tide-1" || link.TideID != "tide-1" {
		t.Error("Appended items must carry the tide back-reference")
	}
	if session.StartedAt.IsZero() || energy.Timestamp.IsZero() || link.LinkedAt.IsZero() {
		t.Error("Appended items must be timestamped")
	}
}

func TestCollectionManager_FlowSessionUpdatesIndex(t *testing.T) {
	ctx := context.Background()
	m, docs, _ := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	started := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	m.AppendFlowSession(ctx, "user-1", "tide-1", models.FlowSession{Intensity: models.IntensityStrong, Duration: 90, StartedAt: started})

	entries, _ := m.index.List(ctx, "user-1", models.ListFilter{})
	if len(entries) != 1 || entries[0].FlowCount != 1 {
		t.Fatalf("Expected index entry with flow_count 1, got %+v", entries)
	}
	if entries[0].LastFlowAt == nil || !entries[0].LastFlowAt.Equal(started) {
		t.Errorf("Expected last_flow_at %v, got %v", started, entries[0].LastFlowAt)
	}
}

func TestCollectionManager_IndexFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	m, docs, backend := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	backend.setPutFail(func(key string) bool { return key == IndexKey("user-1") })

	session, err := m.AppendFlowSession(ctx, "user-1", "tide-1", models.FlowSession{Intensity: models.IntensityStrong, Duration: 30})
	if err != nil {
		t.Fatalf("Index failure must not fail the append: %v", err)
	}

	tide, _ := docs.GetTide(ctx, "tide-1")
	if len(tide.FlowSessions) != 1 || tide.FlowSessions[0].ID != session.ID {
		t.Errorf("Expected the session in the document, got %+v", tide.FlowSessions)
	}

	backend.setPutFail(nil)
	if _, err := m.index.Rebuild(ctx, "user-1"); err != nil {
		t.Fatalf("Failed to rebuild: %v", err)
	}
	entries, _ := m.index.List(ctx, "user-1", models.ListFilter{})
	if len(entries) != 1 || entries[0].FlowCount != 1 {
		t.Errorf("Expected rebuild to reconcile the drift, got %+v", entries)
	}
}

func TestCollectionManager_DocumentFailureFailsAppend(t *testing.T) {
	ctx := context.Background()
	m, docs, backend := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	backend.setPutFail(func(key string) bool { return key == TideKey("tide-1") })

	_, err := m.AppendEnergyUpdate(ctx, "user-1", "tide-1", models.EnergyUpdate{EnergyLevel: "low"})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCollectionManager_NotFoundAndValidation(t *testing.T) {
	ctx := context.Background()
	m, docs, _ := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	if _, err := m.AppendEnergyUpdate(ctx, "user-1", "missing", models.EnergyUpdate{EnergyLevel: "high"}); !errors.Is(err, models.ErrTideNotFound) {
		t.Errorf("Expected ErrTideNotFound, got %v", err)
	}
	if _, err := m.AppendEnergyUpdate(ctx, "user-2", "tide-1", models.EnergyUpdate{EnergyLevel: "high"}); !errors.Is(err, models.ErrTideNotFound) {
		t.Errorf("Expected another owner's tide to be not found, got %v", err)
	}
	if _, err := m.AppendFlowSession(ctx, "user-1", "tide-1", models.FlowSession{Intensity: models.IntensityStrong, Duration: -5}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for negative duration, got %v", err)
	}
}

func TestCollectionManager_RemovalSemantics(t *testing.T) {
	ctx := context.Background()
	m, docs, backend := newTestManager(t)
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	link, err := m.AppendTaskLink(ctx, "user-1", "tide-1", models.TaskLink{TaskURL: "https://tracker/1", TaskTitle: "Write docs"})
	if err != nil {
		t.Fatalf("Failed to link task: %v", err)
	}
	before, _ := backend.Backend.Get(ctx, TideKey("tide-1"))

	removed, err := m.RemoveTaskLink(ctx, "user-1", "tide-1", "link_unknown")
	if err != nil {
		t.Fatalf("Unknown link should not be an error: %v", err)
	}
	if removed {
		t.Error("Expected false for unknown link")
	}
	after, _ := backend.Backend.Get(ctx, TideKey("tide-1"))
	if string(before) != string(after) {
		t.Error("Unknown link removal must leave the document unchanged")
	}

	removed, err = m.RemoveTaskLink(ctx, "user-1", "tide-1", link.ID)
	if err != nil || !removed {
		t.Fatalf("Expected removal of known link, got %v, %v", removed, err)
	}
	tide, _ := docs.GetTide(ctx, "tide-1")
	if len(tide.TaskLinks) != 0 {
		t.Errorf("Expected link to be gone, got %+v", tide.TaskLinks)
	}
}

// barrierBackend holds every read of one key until n reads have happened,
// forcing concurrent read-modify-write cycles to overlap
type barrierBackend struct {
	objectstore.Backend
	key string
	n   int

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (b *barrierBackend) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := b.Backend.Get(ctx, key)
	if key != b.key {
		return body, err
	}

	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
	}
	return body, err
}

func TestCollectionManager_DirectConcurrentAppendsLoseUpdates(t *testing.T) {
	const writers = 50
	ctx := context.Background()

	backend := &barrierBackend{
		Backend: objectstore.NewMemoryBackend("primary"),
		key:     TideKey("tide-1"),
		n:       writers,
		release: make(chan struct{}),
	}
	docs := NewDocumentStore(backend)
	m := NewCollectionManager(docs, NewSecondaryIndex(docs))
	seedTide(t, docs, "tide-1", "user-1", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AppendEnergyUpdate(ctx, "user-1", "tide-1", models.EnergyUpdate{EnergyLevel: "steady"})
		}()
	}
	wg.Wait()

	final, err := docs.GetTide(ctx, "tide-1")
	if err != nil {
		t.Fatalf("Failed to read tide: %v", err)
	}

	if len(final.EnergyUpdates) >= writers {
		t.Fatalf("Expected lost updates without the actor, got all %d", len(final.EnergyUpdates))
	}
	t.Logf("Without the actor %d of %d concurrent appends survived", len(final.EnergyUpdates), writers)
}
