package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tides/internal/models"
)

const (
	relayChannelPrefix = "tides:user:"
	relayChannelSuffix = ":events"
)

// RelayChannel returns the pub/sub channel carrying an owner's live events
func RelayChannel(ownerID string) string {
	return relayChannelPrefix + ownerID + relayChannelSuffix
}

// RelayMessage is a live event travelling between server instances
type RelayMessage struct {
	InstanceID string           `json:"instanceId"` // Source instance ID
	Event      models.LiveEvent `json:"event"`
}

// RelayHandler delivers a remote event to local listeners
type RelayHandler func(ownerID string, event models.LiveEvent)

// EventRelay forwards live events through Redis pub/sub so that listeners
// connected to other instances see them too. An instance ignores its own messages.
type EventRelay struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	instanceID string
	handler    RelayHandler
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewEventRelay creates a relay. An empty instanceID gets a random one.
func NewEventRelay(redisService *RedisService, instanceID string, handler RelayHandler) *EventRelay {
	if instanceID == "" {
		instanceID = uuid.New().String()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventRelay{
		redis:      redisService,
		instanceID: instanceID,
		handler:    handler,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this server instance on the relay
func (s *EventRelay) InstanceID() string {
	return s.instanceID
}

// Start subscribes to every owner's channel and begins delivering messages
func (s *EventRelay) Start() error {
	s.pubsub = s.redis.PSubscribe(s.ctx, RelayChannel("*"))

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}

	s.wg.Add(1)
	go s.processMessages()

	log.Printf("✅ [RELAY] Listening for live events (instance: %s)", s.instanceID)
	return nil
}

func (s *EventRelay) processMessages() {
	defer s.wg.Done()
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *EventRelay) handleMessage(channel string, payload []byte) {
	var message RelayMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		log.Printf("⚠️ [RELAY] Failed to unmarshal message on %s: %v", channel, err)
		return
	}

	// Skip messages from this instance (avoid double delivery)
	if message.InstanceID == s.instanceID {
		return
	}

	ownerID := strings.TrimSuffix(strings.TrimPrefix(channel, relayChannelPrefix), relayChannelSuffix)
	if ownerID == "" || ownerID != message.Event.OwnerID {
		log.Printf("⚠️ [RELAY] Ignoring event with mismatched owner on %s", channel)
		return
	}

	if s.handler != nil {
		s.handler(ownerID, message.Event)
	}
}

// Publish sends an event to the other instances
func (s *EventRelay) Publish(ctx context.Context, event models.LiveEvent) error {
	data, err := json.Marshal(&RelayMessage{InstanceID: s.instanceID, Event: event})
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, RelayChannel(event.OwnerID), data)
}

// Stop stops the relay
func (s *EventRelay) Stop() error {
	s.cancel()
	var err error
	if s.pubsub != nil {
		err = s.pubsub.Close()
	}
	s.wg.Wait()
	log.Println("🛑 [RELAY] Stopped")
	return err
}
