package jobs

import (
	"context"
	"log"
	"time"

	"tides/internal/services"
)

// Job names
const (
	ActorReaperJob  = "actor_reaper"
	IndexRebuildJob = "index_rebuild"
)

// NewActorReaper disposes actors that have been idle for ttl with no listeners
func NewActorReaper(registry *services.ActorRegistry, ttl time.Duration) Task {
	return func(ctx context.Context) error {
		if reaped := registry.ReapIdle(ttl); reaped > 0 {
			log.Printf("🧹 [ACTOR] Reaped %d idle actors (%d remain)", reaped, registry.Count())
		}
		return nil
	}
}

// NewIndexRebuild rebuilds every owner's index from the tide documents
func NewIndexRebuild(service *services.TideService) Task {
	return func(ctx context.Context) error {
		rebuilt, err := service.RebuildAllIndexes(ctx)
		if err != nil {
			return err
		}
		log.Printf("🔧 [INDEX] Scheduled rebuild refreshed %d owners", rebuilt)
		return nil
	}
}

// Register wires the maintenance jobs. An empty rebuildCron leaves index
// rebuilds on demand only.
func Register(s *JobScheduler, service *services.TideService, idleTTL, reapInterval time.Duration, rebuildCron string) error {
	if err := s.Every(ActorReaperJob, reapInterval, NewActorReaper(service.Actors(), idleTTL)); err != nil {
		return err
	}

	if rebuildCron == "" {
		return nil
	}
	if err := s.Cron(IndexRebuildJob, rebuildCron, NewIndexRebuild(service)); err != nil {
		return err
	}
	if next, err := NextCronRun(rebuildCron, time.Now().UTC()); err == nil {
		log.Printf("⏰ [SCHEDULER] Index rebuild '%s' next runs at %s", rebuildCron, next.Format(time.RFC3339))
	}
	return nil
}
