package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"tides/internal/models"
)

// SecondaryIndex maintains the per-owner listing document index/{ownerId}.json.
// It is derived from the tide documents and can always be rebuilt from them.
// Nothing here locks: callers serialize writes for one owner through its actor.
type SecondaryIndex struct {
	docs *DocumentStore
}

// NewSecondaryIndex creates an index stored alongside the documents in docs
func NewSecondaryIndex(docs *DocumentStore) *SecondaryIndex {
	return &SecondaryIndex{docs: docs}
}

// load reads the owner's index. A missing index is empty.
func (idx *SecondaryIndex) load(ctx context.Context, ownerID string) (*models.TideIndex, error) {
	var index models.TideIndex
	err := idx.docs.Get(ctx, IndexKey(ownerID), &index)
	if errors.Is(err, models.ErrNotFound) {
		return &models.TideIndex{OwnerID: ownerID, Entries: []models.TideIndexEntry{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if index.Entries == nil {
		index.Entries = []models.TideIndexEntry{}
	}
	return &index, nil
}

func (idx *SecondaryIndex) save(ctx context.Context, index *models.TideIndex) error {
	index.UpdatedAt = time.Now().UTC()
	return idx.docs.Put(ctx, IndexKey(index.OwnerID), index)
}

// Upsert replaces the entry with the same id or appends it
func (idx *SecondaryIndex) Upsert(ctx context.Context, ownerID string, entry models.TideIndexEntry) error {
	index, err := idx.load(ctx, ownerID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range index.Entries {
		if index.Entries[i].ID == entry.ID {
			index.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		index.Entries = append(index.Entries, entry)
	}

	return idx.save(ctx, index)
}

// Remove drops the entry for tideID. Removing an absent entry is a no-op.
func (idx *SecondaryIndex) Remove(ctx context.Context, ownerID, tideID string) error {
	index, err := idx.load(ctx, ownerID)
	if err != nil {
		return err
	}

	kept := index.Entries[:0]
	removed := false
	for _, e := range index.Entries {
		if e.ID == tideID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil
	}
	index.Entries = kept

	return idx.save(ctx, index)
}

// List returns the owner's entries passing filter, newest first. Entries with
// equal created_at keep insertion order.
func (idx *SecondaryIndex) List(ctx context.Context, ownerID string, filter models.ListFilter) ([]models.TideIndexEntry, error) {
	index, err := idx.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.TideIndexEntry, 0, len(index.Entries))
	for _, e := range index.Entries {
		if filter.Matches(e) {
			entries = append(entries, e)
		}
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Rebuild recomputes the owner's index from a full scan of the tide documents
// and overwrites it. Returns the number of entries written.
func (idx *SecondaryIndex) Rebuild(ctx context.Context, ownerID string) (int, error) {
	tides, err := idx.docs.ListTides(ctx)
	if err != nil {
		return 0, err
	}

	owned := make([]*models.Tide, 0)
	for _, t := range tides {
		if t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}

	// Recreate insertion order as creation order
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	index := &models.TideIndex{OwnerID: ownerID, Entries: make([]models.TideIndexEntry, 0, len(owned))}
	for _, t := range owned {
		index.Entries = append(index.Entries, t.IndexEntry())
	}

	if err := idx.save(ctx, index); err != nil {
		return 0, err
	}

	log.Printf("🔁 [INDEX] Rebuilt index for owner %s (%d entries)", ownerID, len(index.Entries))
	return len(index.Entries), nil
}

// Owners returns every owner with an index document or a tide document
func (idx *SecondaryIndex) Owners(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	keys, err := idx.docs.List(ctx, indexKeyPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		owner := strings.TrimSuffix(strings.TrimPrefix(key, indexKeyPrefix), ".json")
		if owner != "" {
			seen[owner] = struct{}{}
		}
	}

	tides, err := idx.docs.ListTides(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tides {
		if t.OwnerID != "" {
			seen[t.OwnerID] = struct{}{}
		}
	}

	owners := make([]string, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// sortNewestFirst orders entries by created_at descending, stable for ties
func sortNewestFirst(entries []models.TideIndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
