package services

import (
	"encoding/json"
	"testing"

	"tides/internal/models"
)

func TestRelayChannel(t *testing.T) {
	if got := RelayChannel("user-1"); got != "tides:user:user-1:events" {
		t.Errorf("RelayChannel = %q", got)
	}
}

func TestEventRelay_HandleMessage(t *testing.T) {
	var delivered []models.LiveEvent
	relay := NewEventRelay(nil, "instance-a", func(ownerID string, event models.LiveEvent) {
		delivered = append(delivered, event)
	})

	encode := func(instanceID, ownerID string) []byte {
		data, _ := json.Marshal(RelayMessage{
			InstanceID: instanceID,
			Event:      models.NewLiveEvent(models.EventTideCreated, ownerID, "t1", nil),
		})
		return data
	}

	// Own messages are skipped
	relay.handleMessage(RelayChannel("user-1"), encode("instance-a", "user-1"))
	if len(delivered) != 0 {
		t.Fatalf("Expected own message to be skipped, got %d", len(delivered))
	}

	relay.handleMessage(RelayChannel("user-1"), encode("instance-b", "user-1"))
	if len(delivered) != 1 || delivered[0].OwnerID != "user-1" {
		t.Fatalf("Expected remote message delivery, got %+v", delivered)
	}

	// Channel and payload must agree on the owner
	relay.handleMessage(RelayChannel("user-2"), encode("instance-b", "user-1"))
	relay.handleMessage(RelayChannel("user-1"), []byte("not json"))
	if len(delivered) != 1 {
		t.Errorf("Expected mismatched and malformed messages to be dropped, got %d", len(delivered))
	}
}

func TestEventRelay_GeneratesInstanceID(t *testing.T) {
	a := NewEventRelay(nil, "", nil)
	b := NewEventRelay(nil, "", nil)
	if a.InstanceID() == "" || a.InstanceID() == b.InstanceID() {
		t.Errorf("Expected distinct generated instance ids, got %q and %q", a.InstanceID(), b.InstanceID())
	}
}
