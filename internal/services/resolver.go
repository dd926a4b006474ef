package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"tides/internal/models"
)

// Source is one storage backend the resolver can read from
type Source struct {
	ID    string
	Docs  *DocumentStore
	Index *SecondaryIndex
}

// NewSource builds a source with its own document store and index
func NewSource(id string, docs *DocumentStore) Source {
	return Source{ID: id, Docs: docs, Index: NewSecondaryIndex(docs)}
}

// MultiSourceResolver reads tides from an ordered list of sources. Index 0 is
// the primary. It never writes.
type MultiSourceResolver struct {
	mu      sync.RWMutex
	sources []Source
}

// NewMultiSourceResolver creates a resolver over sources in priority order
func NewMultiSourceResolver(sources ...Source) *MultiSourceResolver {
	return &MultiSourceResolver{sources: append([]Source(nil), sources...)}
}

// SetSources replaces the source list, e.g. after the sources file changed
func (r *MultiSourceResolver) SetSources(sources []Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append([]Source(nil), sources...)
	log.Printf("🔄 [RESOLVER] Source list replaced (%d sources)", len(sources))
}

// Sources returns a snapshot of the source list
func (r *MultiSourceResolver) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Source(nil), r.sources...)
}

// Resolve returns the tide from the first source that has it, together with
// that source's id. Sources after the hit are not queried. A source that is
// unavailable is logged and skipped, so a single outage never fails the read.
func (r *MultiSourceResolver) Resolve(ctx context.Context, ownerID, tideID string) (*models.Tide, string, error) {
	if err := models.ValidateID("tide_id", tideID); err != nil {
		return nil, "", err
	}

	for _, src := range r.Sources() {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		tide, err := src.Docs.GetTide(ctx, tideID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				GetMetrics().RecordResolverFallback(src.ID, "not_found")
				continue
			}
			log.Printf("⚠️ [RESOLVER] Source %s failed reading tide %s, trying next: %v", src.ID, tideID, err)
			GetMetrics().RecordResolverFallback(src.ID, outcomeOf(err))
			continue
		}

		if tide.OwnerID != ownerID {
			GetMetrics().RecordResolverFallback(src.ID, "not_found")
			continue
		}

		return tide, src.ID, nil
	}

	GetMetrics().RecordResolverMiss()
	return nil, "", fmt.Errorf("%w: %s", models.ErrNotFoundAnywhere, tideID)
}

// ListAll unions the owner's index entries across every reachable source.
// Duplicate ids keep the entry from the highest-priority source, and the
// filter applies to that winning entry only. Unreachable sources are skipped;
// if none are reachable the result is empty.
func (r *MultiSourceResolver) ListAll(ctx context.Context, ownerID string, filter models.ListFilter) ([]models.TideIndexEntry, error) {
	seen := make(map[string]struct{})
	merged := make([]models.TideIndexEntry, 0)

	for _, src := range r.Sources() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := src.Index.List(ctx, ownerID, models.ListFilter{})
		if err != nil {
			log.Printf("⚠️ [RESOLVER] Source %s index unavailable for owner %s, skipping: %v", src.ID, ownerID, err)
			GetMetrics().RecordResolverFallback(src.ID, outcomeOf(err))
			continue
		}

		for _, e := range entries {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			if filter.Matches(e) {
				merged = append(merged, e)
			}
		}
	}

	sortNewestFirst(merged)
	return merged, nil
}
