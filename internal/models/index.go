package models

import "time"

// TideIndexEntry is the denormalized listing summary of a tide.
// FlowCount and LastFlowAt follow the tide document eventually, not transactionally.
type TideIndexEntry struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	FlowType   FlowType   `json:"flow_type"`
	Status     TideStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FlowCount  int        `json:"flow_count"`
	LastFlowAt *time.Time `json:"last_flow_at,omitempty"`
}

// TideIndex is the per-owner index document. Entries keep insertion order.
type TideIndex struct {
	OwnerID   string           `json:"owner_id"`
	Entries   []TideIndexEntry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ListFilter narrows a tide listing
type ListFilter struct {
	FlowType   FlowType `json:"flow_type,omitempty"`
	ActiveOnly bool     `json:"active_only,omitempty"`
}

// Matches reports whether the entry passes the filter
func (f ListFilter) Matches(e TideIndexEntry) bool {
	if f.FlowType != "" && e.FlowType != f.FlowType {
		return false
	}
	if f.ActiveOnly && e.Status != TideStatusActive {
		return false
	}
	return true
}
