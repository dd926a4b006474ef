package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"tides/internal/models"
)

// relayPublishTimeout bounds a cross-instance event publish
const relayPublishTimeout = 3 * time.Second

// EventPublisher forwards live events to other server instances
type EventPublisher interface {
	Publish(ctx context.Context, event models.LiveEvent) error
}

// TideService is the public surface of the tides core. Mutations run inside
// the owner's actor against the primary store; reads go through the resolver.
type TideService struct {
	docs        *DocumentStore
	index       *SecondaryIndex
	collections *CollectionManager
	resolver    *MultiSourceResolver
	actors      *ActorRegistry
	publisher   EventPublisher
	activity    ActivitySink
	insights    *InsightService
	now         func() time.Time
}

// TideServiceConfig wires a TideService. Primary, Resolver and Actors are required.
type TideServiceConfig struct {
	Primary   Source
	Resolver  *MultiSourceResolver
	Actors    *ActorRegistry
	Publisher EventPublisher
	Activity  ActivitySink
	Insights  *InsightService
}

// NewTideService creates the tide service
func NewTideService(cfg TideServiceConfig) *TideService {
	return &TideService{
		docs:        cfg.Primary.Docs,
		index:       cfg.Primary.Index,
		collections: NewCollectionManager(cfg.Primary.Docs, cfg.Primary.Index),
		resolver:    cfg.Resolver,
		actors:      cfg.Actors,
		publisher:   cfg.Publisher,
		activity:    cfg.Activity,
		insights:    cfg.Insights,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher attaches the cross-instance relay after construction
func (s *TideService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// Actors returns the actor registry
func (s *TideService) Actors() *ActorRegistry {
	return s.actors
}

// Resolver returns the multi-source resolver
func (s *TideService) Resolver() *MultiSourceResolver {
	return s.resolver
}

// CreateTide creates a tide owned by ownerID and indexes it
func (s *TideService) CreateTide(ctx context.Context, ownerID string, req models.CreateTideRequest) (*models.Tide, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tide, err := Do(ctx, s.actors, ownerID, "create_tide", func(ctx context.Context, a *OwnerActor) (*models.Tide, error) {
		now := s.now()
		tide := &models.Tide{
			ID:          uuid.New().String(),
			OwnerID:     ownerID,
			Name:        strings.TrimSpace(req.Name),
			FlowType:    req.FlowType,
			Status:      models.TideStatusActive,
			Description: req.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := s.docs.PutTide(ctx, tide); err != nil {
			return nil, err
		}
		s.upsertIndex(ctx, tide)

		a.Broadcast(models.NewLiveEvent(models.EventTideCreated, ownerID, tide.ID, tide))
		return tide, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ownerID, models.EventTideCreated, tide.ID, tide, map[string]interface{}{
		"flow_type": tide.FlowType,
	})
	return tide, nil
}

// GetTide resolves a tide across every configured source
func (s *TideService) GetTide(ctx context.Context, ownerID, tideID string) (*models.Tide, error) {
	tide, _, err := s.resolver.Resolve(ctx, ownerID, tideID)
	return tide, err
}

// ListTides lists the owner's tides from every reachable source, newest first
func (s *TideService) ListTides(ctx context.Context, ownerID string, filter models.ListFilter) ([]models.TideIndexEntry, error) {
	return s.resolver.ListAll(ctx, ownerID, filter)
}

// UpdateTide applies a direct field update and refreshes the index entry
func (s *TideService) UpdateTide(ctx context.Context, ownerID, tideID string, req models.UpdateTideRequest) (*models.Tide, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tide, err := Do(ctx, s.actors, ownerID, "update_tide", func(ctx context.Context, a *OwnerActor) (*models.Tide, error) {
		tide, err := s.collections.loadOwned(ctx, ownerID, tideID)
		if err != nil {
			return nil, err
		}

		req.Apply(tide)
		tide.UpdatedAt = s.now()

		if err := s.docs.PutTide(ctx, tide); err != nil {
			return nil, err
		}
		s.upsertIndex(ctx, tide)

		a.Broadcast(models.NewLiveEvent(models.EventTideUpdated, ownerID, tide.ID, tide))
		return tide, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ownerID, models.EventTideUpdated, tide.ID, tide, map[string]interface{}{
		"status": tide.Status,
	})
	return tide, nil
}

// AppendFlowSession records a flow session
func (s *TideService) AppendFlowSession(ctx context.Context, ownerID, tideID string, session models.FlowSession) (*models.FlowSession, error) {
	created, err := Do(ctx, s.actors, ownerID, "append_flow_session", func(ctx context.Context, a *OwnerActor) (*models.FlowSession, error) {
		created, err := s.collections.AppendFlowSession(ctx, ownerID, tideID, session)
		if err != nil {
			return nil, err
		}
		a.Broadcast(models.NewLiveEvent(models.EventFlowSessionAdded, ownerID, tideID, created))
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ownerID, models.EventFlowSessionAdded, tideID, created, map[string]interface{}{
		"intensity": created.Intensity,
		"duration":  created.Duration,
	})
	return created, nil
}

// AppendEnergyUpdate records an energy check-in
func (s *TideService) AppendEnergyUpdate(ctx context.Context, ownerID, tideID string, update models.EnergyUpdate) (*models.EnergyUpdate, error) {
	created, err := Do(ctx, s.actors, ownerID, "append_energy_update", func(ctx context.Context, a *OwnerActor) (*models.EnergyUpdate, error) {
		created, err := s.collections.AppendEnergyUpdate(ctx, ownerID, tideID, update)
		if err != nil {
			return nil, err
		}
		a.Broadcast(models.NewLiveEvent(models.EventEnergyUpdateAdded, ownerID, tideID, created))
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ownerID, models.EventEnergyUpdateAdded, tideID, created, map[string]interface{}{
		"energy_level": created.EnergyLevel,
	})
	return created, nil
}

// AppendTaskLink links an external task
func (s *TideService) AppendTaskLink(ctx context.Context, ownerID, tideID string, link models.TaskLink) (*models.TaskLink, error) {
	created, err := Do(ctx, s.actors, ownerID, "append_task_link", func(ctx context.Context, a *OwnerActor) (*models.TaskLink, error) {
		created, err := s.collections.AppendTaskLink(ctx, ownerID, tideID, link)
		if err != nil {
			return nil, err
		}
		a.Broadcast(models.NewLiveEvent(models.EventTaskLinkAdded, ownerID, tideID, created))
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ownerID, models.EventTaskLinkAdded, tideID, created, map[string]interface{}{
		"task_type": created.TaskType,
	})
	return created, nil
}

// RemoveTaskLink unlinks a task. False means the link did not exist.
func (s *TideService) RemoveTaskLink(ctx context.Context, ownerID, tideID, linkID string) (bool, error) {
	removed, err := Do(ctx, s.actors, ownerID, "remove_task_link", func(ctx context.Context, a *OwnerActor) (bool, error) {
		removed, err := s.collections.RemoveTaskLink(ctx, ownerID, tideID, linkID)
		if err != nil || !removed {
			return removed, err
		}
		a.Broadcast(models.NewLiveEvent(models.EventTaskLinkRemoved, ownerID, tideID, map[string]string{"link_id": linkID}))
		return true, nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.afterMutation(ownerID, models.EventTaskLinkRemoved, tideID, map[string]string{"link_id": linkID}, nil)
	}
	return removed, nil
}

// ListTaskLinks returns the task links of a tide
func (s *TideService) ListTaskLinks(ctx context.Context, ownerID, tideID string) ([]models.TaskLink, error) {
	tide, err := s.GetTide(ctx, ownerID, tideID)
	if err != nil {
		return nil, err
	}
	return tide.TaskLinks, nil
}

// GetReport summarises a tide's sessions, energy and links
func (s *TideService) GetReport(ctx context.Context, ownerID, tideID string) (*models.TideReport, error) {
	tide, err := s.GetTide(ctx, ownerID, tideID)
	if err != nil {
		return nil, err
	}
	return models.BuildReport(tide, s.now()), nil
}

// Insights runs the configured prompt runner over the tide's report
func (s *TideService) Insights(ctx context.Context, ownerID, tideID string) (*PromptResult, error) {
	if !s.insights.Enabled() {
		return nil, ErrInsightsUnavailable
	}
	report, err := s.GetReport(ctx, ownerID, tideID)
	if err != nil {
		return nil, err
	}
	return s.insights.Analyze(ctx, report)
}

// RebuildIndex recomputes the owner's primary index from the tide documents
func (s *TideService) RebuildIndex(ctx context.Context, ownerID string) (int, error) {
	count, err := Do(ctx, s.actors, ownerID, "rebuild_index", func(ctx context.Context, a *OwnerActor) (int, error) {
		count, err := s.index.Rebuild(ctx, ownerID)
		if err != nil {
			return 0, err
		}
		a.Broadcast(models.NewLiveEvent(models.EventIndexRebuilt, ownerID, "", map[string]int{"entries": count}))
		return count, nil
	})
	if err != nil {
		return 0, err
	}

	s.afterMutation(ownerID, models.EventIndexRebuilt, "", map[string]int{"entries": count}, nil)
	return count, nil
}

// RebuildAllIndexes rebuilds the index of every owner in the primary store.
// One owner's failure does not stop the others.
func (s *TideService) RebuildAllIndexes(ctx context.Context) (int, error) {
	owners, err := s.index.Owners(ctx)
	if err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, ownerID := range owners {
		if _, err := s.RebuildIndex(ctx, ownerID); err != nil {
			log.Printf("⚠️ [INDEX] Rebuild failed for owner %s: %v", ownerID, err)
			continue
		}
		rebuilt++
	}
	return rebuilt, nil
}

// GetPreferences returns the owner's cached preferences
func (s *TideService) GetPreferences(ctx context.Context, ownerID string) (map[string]string, error) {
	return Do(ctx, s.actors, ownerID, "get_preferences", func(ctx context.Context, a *OwnerActor) (map[string]string, error) {
		return a.snapshotState().Preferences, nil
	})
}

// UpdatePreferences merges updates into the owner's preferences. An empty
// value deletes the key.
func (s *TideService) UpdatePreferences(ctx context.Context, ownerID string, updates map[string]string) (map[string]string, error) {
	return Do(ctx, s.actors, ownerID, "update_preferences", func(ctx context.Context, a *OwnerActor) (map[string]string, error) {
		for k, v := range updates {
			if v == "" {
				delete(a.state.Preferences, k)
				continue
			}
			a.state.Preferences[k] = v
		}
		if err := a.persistState(ctx); err != nil {
			return nil, err
		}
		return a.snapshotState().Preferences, nil
	})
}

// Subscribe attaches a live-event listener for the owner
func (s *TideService) Subscribe(ctx context.Context, ownerID string, l Listener) error {
	return s.actors.Subscribe(ctx, ownerID, l)
}

// Unsubscribe detaches a listener
func (s *TideService) Unsubscribe(ownerID, listenerID string) {
	s.actors.Unsubscribe(ownerID, listenerID)
}

// Broadcast delivers a caller-defined event to the owner's listeners here and
// on other instances. Returns the number of local deliveries.
func (s *TideService) Broadcast(ctx context.Context, ownerID string, event models.LiveEvent) (int, error) {
	if err := models.ValidateID("owner_id", ownerID); err != nil {
		return 0, err
	}
	if strings.TrimSpace(event.Type) == "" {
		return 0, models.NewValidationError("type", "is required")
	}
	event.OwnerID = ownerID
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	delivered := s.actors.Broadcast(ownerID, event)
	s.publish(event)
	return delivered, nil
}

// DeliverRemote hands an event received from another instance to local listeners
func (s *TideService) DeliverRemote(ownerID string, event models.LiveEvent) {
	s.actors.Broadcast(ownerID, event)
}

// upsertIndex refreshes the tide's index entry. A failure leaves the index
// stale until the next rebuild and is not returned.
func (s *TideService) upsertIndex(ctx context.Context, tide *models.Tide) {
	if err := s.index.Upsert(ctx, tide.OwnerID, tide.IndexEntry()); err != nil {
		log.Printf("⚠️ [TIDES] Index update failed for tide %s (owner %s): %v", tide.ID, tide.OwnerID, err)
		GetMetrics().RecordIndexUpdateFailure()
	}
}

// afterMutation relays the event to other instances and records activity
func (s *TideService) afterMutation(ownerID, eventType, tideID string, payload interface{}, attrs map[string]interface{}) {
	s.publish(models.NewLiveEvent(eventType, ownerID, tideID, payload))

	recordActivityAsync(s.activity, models.ActivityEvent{
		OwnerID:    ownerID,
		Action:     eventType,
		TideID:     tideID,
		Attributes: attrs,
		OccurredAt: s.now(),
	})
}

func (s *TideService) publish(event models.LiveEvent) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("⚠️ [RELAY] Failed to publish %s for owner %s: %v", event.Type, event.OwnerID, err)
	}
}
