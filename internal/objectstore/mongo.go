package objectstore

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tides/internal/database"
)

// MongoBackend stores objects as documents keyed by _id
type MongoBackend struct {
	db         *database.MongoDB
	collection *mongo.Collection
	ownsConn   bool
}

type mongoObject struct {
	Key       string    `bson:"_id"`
	Body      []byte    `bson:"body"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongoBackend stores objects in the tide_objects collection of db
func NewMongoBackend(db *database.MongoDB) *MongoBackend {
	return &MongoBackend{
		db:         db,
		collection: db.Collection(database.CollectionTideObjects),
	}
}

// Name returns the backend name
func (m *MongoBackend) Name() string {
	return "mongodb:" + m.db.Name()
}

// Get loads the object body
func (m *MongoBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var obj mongoObject
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&obj)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, classifyTransportError(m.Name(), err)
	}
	return obj.Body, nil
}

// Put upserts the object
func (m *MongoBackend) Put(ctx context.Context, key string, body []byte) error {
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		mongoObject{Key: key, Body: body, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return classifyTransportError(m.Name(), err)
	}
	return nil
}

// Delete removes the object
func (m *MongoBackend) Delete(ctx context.Context, key string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return classifyTransportError(m.Name(), err)
	}
	if result.DeletedCount == 0 {
		return notFound(key)
	}
	return nil
}

// List returns keys with the given prefix
func (m *MongoBackend) List(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetProjection(bson.M{"_id": 1})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, classifyTransportError(m.Name(), err)
	}
	defer cursor.Close(ctx)

	keys := make([]string, 0)
	for cursor.Next(ctx) {
		var doc struct {
			Key string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		keys = append(keys, doc.Key)
	}
	if err := cursor.Err(); err != nil {
		return nil, classifyTransportError(m.Name(), err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Close disconnects when the backend opened the connection itself
func (m *MongoBackend) Close(ctx context.Context) error {
	if !m.ownsConn {
		return nil
	}
	return m.db.Close(ctx)
}
