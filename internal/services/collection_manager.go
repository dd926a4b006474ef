package services

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"time"

	"tides/internal/models"
)

// Embedded item id prefixes
const (
	itemPrefixSession = "session"
	itemPrefixEnergy  = "energy"
	itemPrefixLink    = "link"
)

const itemSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// CollectionManager appends to and removes from the sequences embedded in a
// tide document. Every operation is a read-modify-write of the whole document,
// so two concurrent calls on one tide can lose an update. Only the owner's
// actor may call it.
type CollectionManager struct {
	docs  *DocumentStore
	index *SecondaryIndex
	now   func() time.Time
}

// NewCollectionManager creates a collection manager
func NewCollectionManager(docs *DocumentStore, index *SecondaryIndex) *CollectionManager {
	return &CollectionManager{
		docs:  docs,
		index: index,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// loadOwned fetches the tide, treating another owner's tide as absent
func (m *CollectionManager) loadOwned(ctx context.Context, ownerID, tideID string) (*models.Tide, error) {
	if err := models.ValidateID("tide_id", tideID); err != nil {
		return nil, err
	}
	tide, err := m.docs.GetTide(ctx, tideID)
	if err != nil {
		return nil, err
	}
	if tide.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", models.ErrTideNotFound, tideID)
	}
	return tide, nil
}

// AppendFlowSession appends a flow session and refreshes the tide's index entry
func (m *CollectionManager) AppendFlowSession(ctx context.Context, ownerID, tideID string, session models.FlowSession) (*models.FlowSession, error) {
	if err := models.ValidateFlowSession(&session); err != nil {
		return nil, err
	}

	tide, err := m.loadOwned(ctx, ownerID, tideID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	session.ID = newItemID(tide, itemPrefixSession, now)
	session.TideID = tide.ID
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}

	tide.FlowSessions = append(tide.FlowSessions, session)
	tide.UpdatedAt = now

	if err := m.docs.PutTide(ctx, tide); err != nil {
		return nil, err
	}

	// The document write already succeeded; a stale index is repaired by Rebuild
	if err := m.index.Upsert(ctx, ownerID, tide.IndexEntry()); err != nil {
		log.Printf("⚠️ [COLLECTIONS] Index update failed for tide %s (owner %s): %v", tide.ID, ownerID, err)
		GetMetrics().RecordIndexUpdateFailure()
	}

	return &session, nil
}

// AppendEnergyUpdate appends an energy check-in
func (m *CollectionManager) AppendEnergyUpdate(ctx context.Context, ownerID, tideID string, update models.EnergyUpdate) (*models.EnergyUpdate, error) {
	if err := models.ValidateEnergyUpdate(&update); err != nil {
		return nil, err
	}

	tide, err := m.loadOwned(ctx, ownerID, tideID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	update.ID = newItemID(tide, itemPrefixEnergy, now)
	update.TideID = tide.ID
	if update.Timestamp.IsZero() {
		update.Timestamp = now
	}

	tide.EnergyUpdates = append(tide.EnergyUpdates, update)
	tide.UpdatedAt = now

	if err := m.docs.PutTide(ctx, tide); err != nil {
		return nil, err
	}
	return &update, nil
}

// AppendTaskLink appends a link to an external task
func (m *CollectionManager) AppendTaskLink(ctx context.Context, ownerID, tideID string, link models.TaskLink) (*models.TaskLink, error) {
	if err := models.ValidateTaskLink(&link); err != nil {
		return nil, err
	}

	tide, err := m.loadOwned(ctx, ownerID, tideID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	link.ID = newItemID(tide, itemPrefixLink, now)
	link.TideID = tide.ID
	link.LinkedAt = now

	tide.TaskLinks = append(tide.TaskLinks, link)
	tide.UpdatedAt = now

	if err := m.docs.PutTide(ctx, tide); err != nil {
		return nil, err
	}
	return &link, nil
}

// RemoveTaskLink removes the link with linkID. An unknown link returns false
// and leaves the document untouched.
func (m *CollectionManager) RemoveTaskLink(ctx context.Context, ownerID, tideID, linkID string) (bool, error) {
	tide, err := m.loadOwned(ctx, ownerID, tideID)
	if err != nil {
		return false, err
	}

	kept := make([]models.TaskLink, 0, len(tide.TaskLinks))
	for _, l := range tide.TaskLinks {
		if l.ID != linkID {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(tide.TaskLinks) {
		return false, nil
	}

	tide.TaskLinks = kept
	tide.UpdatedAt = m.now()

	if err := m.docs.PutTide(ctx, tide); err != nil {
		return false, err
	}
	return true, nil
}

// newItemID returns {prefix}_{unixMillis}_{6 base36 chars}, unique within the tide
func newItemID(tide *models.Tide, prefix string, now time.Time) string {
	for {
		suffix := make([]byte, 6)
		for i := range suffix {
			suffix[i] = itemSuffixAlphabet[rand.IntN(len(itemSuffixAlphabet))]
		}
		id := prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
		if !tide.HasItemID(id) {
			return id
		}
	}
}
