package models

import "time"

// Live event types pushed to connected listeners
const (
	EventTideCreated       = "tide_created"
	EventTideUpdated       = "tide_updated"
	EventFlowSessionAdded  = "flow_session_added"
	EventEnergyUpdateAdded = "energy_update_added"
	EventTaskLinkAdded     = "task_link_added"
	EventTaskLinkRemoved   = "task_link_removed"
	EventIndexRebuilt      = "index_rebuilt"
)

// LiveEvent is a change notification delivered to an owner's listeners
type LiveEvent struct {
	Type      string      `json:"type"`
	OwnerID   string      `json:"owner_id"`
	TideID    string      `json:"tide_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewLiveEvent stamps an event with the current time
func NewLiveEvent(eventType, ownerID, tideID string, payload interface{}) LiveEvent {
	return LiveEvent{
		Type:      eventType,
		OwnerID:   ownerID,
		TideID:    tideID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ActivityEvent is handed to the analytics rollup sink
type ActivityEvent struct {
	OwnerID    string                 `json:"owner_id" bson:"ownerId"`
	Action     string                 `json:"action" bson:"action"`
	TideID     string                 `json:"tide_id,omitempty" bson:"tideId,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty" bson:"attributes,omitempty"`
	OccurredAt time.Time              `json:"occurred_at" bson:"occurredAt"`
}

// AuthContext is the identity the transport vouches for. The core never authenticates.
type AuthContext struct {
	UserID string `json:"user_id"`
}

// ActorState is the small durable state an owner's actor keeps for itself
type ActorState struct {
	OwnerID          string            `json:"owner_id"`
	Preferences      map[string]string `json:"preferences"`
	TotalConnections int64             `json:"total_connections"`
	LastConnectedAt  *time.Time        `json:"last_connected_at,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
