package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tides/internal/models"
)

func newTestSource(t *testing.T, id string) (Source, *probeBackend) {
	t.Helper()
	backend := newProbeBackend(id)
	return NewSource(id, NewDocumentStore(backend)), backend
}

func TestResolver_ShortCircuitsOnFirstHit(t *testing.T) {
	a, backendA := newTestSource(t, "a")
	b, _ := newTestSource(t, "b")
	c, backendC := newTestSource(t, "c")

	seedTide(t, b.Docs, "tide-1", "user-1", time.Now())
	seedTide(t, c.Docs, "tide-1", "user-1", time.Now())

	resolver := NewMultiSourceResolver(a, b, c)
	tide, sourceID, err := resolver.Resolve(context.Background(), "user-1", "tide-1")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if sourceID != "b" {
		t.Errorf("Expected source b, got %s", sourceID)
	}
	if tide.ID != "tide-1" {
		t.Errorf("Expected tide-1, got %s", tide.ID)
	}
	if backendA.gets.Load() != 1 {
		t.Errorf("Expected one read of A, got %d", backendA.gets.Load())
	}
	if backendC.gets.Load() != 0 {
		t.Errorf("C must not be queried after B hit, got %d reads", backendC.gets.Load())
	}
}

func TestResolver_OutageTolerance(t *testing.T) {
	a, backendA := newTestSource(t, "a")
	b, _ := newTestSource(t, "b")
	backendA.setGetErr(unavailable("a"))

	seedTide(t, b.Docs, "tide-1", "user-1", time.Now())
	resolver := NewMultiSourceResolver(a, b)

	_, sourceID, err := resolver.Resolve(context.Background(), "user-1", "tide-1")
	if err != nil {
		t.Fatalf("Outage on A must not fail the read: %v", err)
	}
	if sourceID != "b" {
		t.Errorf("Expected source b, got %s", sourceID)
	}

	_, _, err = resolver.Resolve(context.Background(), "user-1", "tide-2")
	if !errors.Is(err, models.ErrNotFoundAnywhere) {
		t.Errorf("Expected ErrNotFoundAnywhere, got %v", err)
	}
	if errors.Is(err, models.ErrStoreUnavailable) {
		t.Error("A's transient error must not leak through the resolver")
	}
}

func TestResolver_AllUnavailableIsNotFoundAnywhere(t *testing.T) {
	a, backendA := newTestSource(t, "a")
	b, backendB := newTestSource(t, "b")
	backendA.setGetErr(unavailable("a"))
	backendB.setGetErr(unavailable("b"))

	_, _, err := NewMultiSourceResolver(a, b).Resolve(context.Background(), "user-1", "tide-1")
	if !errors.Is(err, models.ErrNotFoundAnywhere) || !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFoundAnywhere, got %v", err)
	}
}

func TestResolver_ForeignOwnerIsNotFound(t *testing.T) {
	a, _ := newTestSource(t, "a")
	seedTide(t, a.Docs, "tide-1", "user-2", time.Now())

	_, _, err := NewMultiSourceResolver(a).Resolve(context.Background(), "user-1", "tide-1")
	if !errors.Is(err, models.ErrNotFoundAnywhere) {
		t.Errorf("Expected another owner's tide to be invisible, got %v", err)
	}
}

func TestResolver_RejectsPathLikeIDs(t *testing.T) {
	a, backendA := newTestSource(t, "a")

	_, _, err := NewMultiSourceResolver(a).Resolve(context.Background(), "user-1", "../index/user-1")
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if backendA.gets.Load() != 0 {
		t.Error("Invalid ids must not reach the backend")
	}
}

func TestResolver_ListAllUnionsAndDedupes(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestSource(t, "a")
	b, _ := newTestSource(t, "b")
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	a.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "shared", Name: "from A", CreatedAt: base})
	a.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "only-a", CreatedAt: base.Add(time.Hour)})
	b.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "shared", Name: "from B", CreatedAt: base})
	b.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "only-b", CreatedAt: base.Add(2 * time.Hour)})

	entries, err := NewMultiSourceResolver(a, b).ListAll(ctx, "user-1", models.ListFilter{})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %+v", len(entries), entries)
	}

	order := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	if order[0] != "only-b" || order[1] != "only-a" || order[2] != "shared" {
		t.Errorf("Expected newest-first [only-b only-a shared], got %v", order)
	}
	if entries[2].Name != "from A" {
		t.Errorf("Higher-priority source should win duplicates, got %q", entries[2].Name)
	}
}

func TestResolver_ListAllFiltersTheWinningEntry(t *testing.T) {
	ctx := context.Background()
	primary, _ := newTestSource(t, "primary")
	peer, _ := newTestSource(t, "peer")
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// The peer holds stale copies that disagree with the primary
	primary.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "t1", Status: models.TideStatusCompleted, FlowType: models.FlowTypeDaily, CreatedAt: base})
	primary.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "t2", Status: models.TideStatusActive, FlowType: models.FlowTypeProject, CreatedAt: base.Add(time.Hour)})
	peer.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "t1", Status: models.TideStatusActive, FlowType: models.FlowTypeDaily, CreatedAt: base})
	peer.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "t2", Status: models.TideStatusActive, FlowType: models.FlowTypeWeekly, CreatedAt: base.Add(time.Hour)})

	resolver := NewMultiSourceResolver(primary, peer)

	tests := []struct {
		name   string
		filter models.ListFilter
		want   []string
	}{
		{"no filter", models.ListFilter{}, []string{"t2", "t1"}},
		{"active only", models.ListFilter{ActiveOnly: true}, []string{"t2"}},
		{"weekly only", models.ListFilter{FlowType: models.FlowTypeWeekly}, []string{}},
		{"project only", models.ListFilter{FlowType: models.FlowTypeProject}, []string{"t2"}},
		{"completed daily", models.ListFilter{FlowType: models.FlowTypeDaily}, []string{"t1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := resolver.ListAll(ctx, "user-1", tt.filter)
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("Expected %v, got %+v", tt.want, entries)
			}
			for i, id := range tt.want {
				if entries[i].ID != id {
					t.Errorf("Entry %d: expected %s, got %s", i, id, entries[i].ID)
				}
			}
		})
	}

	entries, _ := resolver.ListAll(ctx, "user-1", models.ListFilter{})
	for _, e := range entries {
		if e.ID == "t1" && e.Status != models.TideStatusCompleted {
			t.Errorf("Expected the primary's status for t1, got %s", e.Status)
		}
	}
}

func TestResolver_ListAllSkipsUnavailable(t *testing.T) {
	ctx := context.Background()
	a, backendA := newTestSource(t, "a")
	b, _ := newTestSource(t, "b")

	b.Index.Upsert(ctx, "user-1", models.TideIndexEntry{ID: "t1"})
	backendA.setGetErr(unavailable("a"))

	resolver := NewMultiSourceResolver(a, b)
	entries, err := resolver.ListAll(ctx, "user-1", models.ListFilter{})
	if err != nil {
		t.Fatalf("A single outage must not fail ListAll: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "t1" {
		t.Errorf("Expected B's entry, got %v", entries)
	}

	resolver.SetSources([]Source{a})
	entries, err = resolver.ListAll(ctx, "user-1", models.ListFilter{})
	if err != nil {
		t.Fatalf("Expected empty result when every source is down, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %v", entries)
	}
}

func TestResolver_SetSources(t *testing.T) {
	a, _ := newTestSource(t, "a")
	b, _ := newTestSource(t, "b")
	seedTide(t, b.Docs, "tide-1", "user-1", time.Now())

	resolver := NewMultiSourceResolver(a)
	if _, _, err := resolver.Resolve(context.Background(), "user-1", "tide-1"); err == nil {
		t.Fatal("Expected miss before adding source b")
	}

	resolver.SetSources([]Source{a, b})
	if _, src, err := resolver.Resolve(context.Background(), "user-1", "tide-1"); err != nil || src != "b" {
		t.Errorf("Expected hit in b after SetSources, got %s, %v", src, err)
	}
}
