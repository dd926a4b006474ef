package services

import (
	"context"
	"log"
	"time"

	"tides/internal/database"
	"tides/internal/models"
)

// activityTimeout bounds a fire-and-forget activity write
const activityTimeout = 5 * time.Second

// ActivitySink receives activity events for analytics rollups. Failures must
// never fail the operation that produced the event.
type ActivitySink interface {
	RecordActivity(ctx context.Context, event models.ActivityEvent) error
}

// MongoActivitySink appends activity events to the tide_activity collection
type MongoActivitySink struct {
	mongoDB *database.MongoDB
}

// NewMongoActivitySink creates a sink. A nil database disables recording.
func NewMongoActivitySink(mongoDB *database.MongoDB) *MongoActivitySink {
	return &MongoActivitySink{mongoDB: mongoDB}
}

// RecordActivity inserts the event
func (s *MongoActivitySink) RecordActivity(ctx context.Context, event models.ActivityEvent) error {
	if s.mongoDB == nil {
		return nil // Activity recording disabled
	}

	_, err := s.mongoDB.Collection(database.CollectionTideActivity).InsertOne(ctx, event)
	if err != nil {
		log.Printf("⚠️  [ACTIVITY] Failed to record %s for owner %s: %v", event.Action, event.OwnerID, err)
		return err
	}
	return nil
}

// LogActivitySink writes activity events to the log
type LogActivitySink struct{}

// RecordActivity logs the event
func (LogActivitySink) RecordActivity(ctx context.Context, event models.ActivityEvent) error {
	log.Printf("📊 [ACTIVITY] owner=%s action=%s tide=%s", event.OwnerID, event.Action, event.TideID)
	return nil
}

// recordActivityAsync hands the event to sink without blocking the caller
func recordActivityAsync(sink ActivitySink, event models.ActivityEvent) {
	if sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("⚠️  [ACTIVITY] Sink panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()

		if err := sink.RecordActivity(ctx, event); err != nil {
			log.Printf("⚠️  [ACTIVITY] Dropped %s event for owner %s: %v", event.Action, event.OwnerID, err)
		}
	}()
}
