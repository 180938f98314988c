// Path: internal/storage/device_storage.go
package storage

import (
	"context"
	"errors"

	"esp-hub/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDeviceStorage is the MongoDB implementation of the durable
// per-device telemetry record store.
type MongoDeviceStorage struct {
	collection *mongo.Collection
}

// NewMongoDeviceStorage creates a new storage adapter for device records.
func NewMongoDeviceStorage(db *mongo.Database, collectionName string) *MongoDeviceStorage {
	return &MongoDeviceStorage{
		collection: db.Collection(collectionName),
	}
}

// SaveBatch upserts every device document of a flushed batch inside a
// single transaction: either the whole batch becomes durable or none of
// it does, so the buffer can safely retry the same records.
func (s *MongoDeviceStorage) SaveBatch(ctx context.Context, docs []domain.DeviceDocument) error {
	if len(docs) == 0 {
		return nil
	}

	writeModels := make([]mongo.WriteModel, len(docs))
	for i, doc := range docs {
		filter := bson.M{"_id": doc.ID}
		writeModels[i] = mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(doc).SetUpsert(true)
	}

	session, err := s.collection.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// SetOrdered(false) allows MongoDB to process the upserts in parallel.
		opts := options.BulkWrite().SetOrdered(false)
		return s.collection.BulkWrite(sc, writeModels, opts)
	})
	return err
}

// FindByID retrieves a single durable device record by device id.
func (s *MongoDeviceStorage) FindByID(ctx context.Context, deviceID string) (*domain.DeviceDocument, error) {
	var doc domain.DeviceDocument
	filter := bson.M{"_id": deviceID}
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Return nil, nil if not found
		}
		return nil, err
	}
	return &doc, nil
}
