// Path: internal/storage/access_storage.go
package storage

import (
	"context"
	"errors"
	"log"

	"esp-hub/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAccessStorage answers access-check queries against the durable
// user-device association collection and resolves session tokens.
type MongoAccessStorage struct {
	grants   *mongo.Collection
	sessions *mongo.Collection
}

// NewMongoAccessStorage creates a new storage adapter for access checks.
func NewMongoAccessStorage(db *mongo.Database, accessCollection, sessionCollection string) *MongoAccessStorage {
	return &MongoAccessStorage{
		grants:   db.Collection(accessCollection),
		sessions: db.Collection(sessionCollection),
	}
}

// IsSubscriptionAuthorized reports whether a durable association exists
// between the user and the device. A lookup error reads as not authorized.
func (s *MongoAccessStorage) IsSubscriptionAuthorized(ctx context.Context, userID, deviceID string) bool {
	filter := bson.M{"user_id": userID, "device_id": deviceID}
	count, err := s.grants.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		log.Printf("Access lookup for user %s on device %s failed: %v", userID, deviceID, err)
		return false
	}
	return count > 0
}

// IsDeviceProvisioned reports whether the device is associated with at
// least one user, which is what entitles it to connect.
func (s *MongoAccessStorage) IsDeviceProvisioned(ctx context.Context, deviceID string) bool {
	filter := bson.M{"device_id": deviceID}
	count, err := s.grants.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		log.Printf("Provisioning lookup for device %s failed: %v", deviceID, err)
		return false
	}
	return count > 0
}

// LookupSession resolves a session token to a user id. Token issuance is
// an external concern; an unknown token fails with ErrInvalidToken.
func (s *MongoAccessStorage) LookupSession(ctx context.Context, token string) (string, error) {
	var sess domain.Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": token}).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", domain.ErrInvalidToken
		}
		return "", err
	}
	return sess.UserID, nil
}
