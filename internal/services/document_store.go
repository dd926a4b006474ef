package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tides/internal/models"
	"tides/internal/objectstore"
)

// Object key layout
const (
	tideKeyPrefix  = "tides/"
	indexKeyPrefix = "index/"
	actorKeyPrefix = "actors/"
)

// TideKey returns the object key of a tide document
func TideKey(tideID string) string {
	return tideKeyPrefix + tideID + ".json"
}

// IndexKey returns the object key of an owner's index document
func IndexKey(ownerID string) string {
	return indexKeyPrefix + ownerID + ".json"
}

// ActorStateKey returns the object key of an owner actor's durable state
func ActorStateKey(ownerID string) string {
	return actorKeyPrefix + ownerID + "/state.json"
}

// DocumentStore persists JSON documents whole in an object store backend
type DocumentStore struct {
	backend objectstore.Backend
}

// NewDocumentStore creates a document store over backend
func NewDocumentStore(backend objectstore.Backend) *DocumentStore {
	return &DocumentStore{backend: backend}
}

// Name returns the backend name
func (s *DocumentStore) Name() string {
	return s.backend.Name()
}

// Backend returns the underlying backend
func (s *DocumentStore) Backend() objectstore.Backend {
	return s.backend
}

// Put serializes value and overwrites the object at key
func (s *DocumentStore) Put(ctx context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	start := time.Now()
	err = s.backend.Put(ctx, key, body)
	GetMetrics().RecordStoreOperation(s.backend.Name(), "put", outcomeOf(err), time.Since(start).Seconds())
	return err
}

// Get loads the object at key into out. A missing object is models.ErrNotFound.
func (s *DocumentStore) Get(ctx context.Context, key string, out interface{}) error {
	start := time.Now()
	body, err := s.backend.Get(ctx, key)
	GetMetrics().RecordStoreOperation(s.backend.Name(), "get", outcomeOf(err), time.Since(start).Seconds())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Delete removes the object at key
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.backend.Delete(ctx, key)
	GetMetrics().RecordStoreOperation(s.backend.Name(), "delete", outcomeOf(err), time.Since(start).Seconds())
	return err
}

// List returns the keys under prefix
func (s *DocumentStore) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.backend.List(ctx, prefix)
	GetMetrics().RecordStoreOperation(s.backend.Name(), "list", outcomeOf(err), time.Since(start).Seconds())
	return keys, err
}

// GetTide loads a tide document. A missing document is models.ErrTideNotFound.
func (s *DocumentStore) GetTide(ctx context.Context, tideID string) (*models.Tide, error) {
	var tide models.Tide
	if err := s.Get(ctx, TideKey(tideID), &tide); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTideNotFound, tideID)
		}
		return nil, err
	}
	tide.EnsureCollections()
	return &tide, nil
}

// PutTide writes a tide document whole
func (s *DocumentStore) PutTide(ctx context.Context, tide *models.Tide) error {
	tide.EnsureCollections()
	return s.Put(ctx, TideKey(tide.ID), tide)
}

// ListTides loads every tide document in the store. Documents that vanish
// between listing and loading are skipped.
func (s *DocumentStore) ListTides(ctx context.Context) ([]*models.Tide, error) {
	keys, err := s.List(ctx, tideKeyPrefix)
	if err != nil {
		return nil, err
	}

	tides := make([]*models.Tide, 0, len(keys))
	for _, key := range keys {
		var tide models.Tide
		if err := s.Get(ctx, key, &tide); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		tide.EnsureCollections()
		tides = append(tides, &tide)
	}
	return tides, nil
}

// outcomeOf labels an error for metrics
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrActorUnavailable):
		return "actor_unavailable"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
