package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/spec-kit/portal-session/internal/domain"
)

type mongoIdentityStore struct {
	collection *mongo.Collection
}

// NewMongoIdentityStore returns a store reading the partition's collection. Documents are keyed by _id.
func NewMongoIdentityStore(db *mongo.Database, partition domain.RolePartition) IdentityStore {
	return &mongoIdentityStore{collection: db.Collection(partition.Collection())}
}

// NewMongoIdentityStores builds one store per partition over a shared database.
func NewMongoIdentityStores(db *mongo.Database) IdentityStores {
	stores := make(IdentityStores, len(domain.Partitions))
	for _, partition := range domain.Partitions {
		stores[partition] = NewMongoIdentityStore(db, partition)
	}
	return stores
}

func (s *mongoIdentityStore) Get(ctx context.Context, subjectID string) (Record, error) {
	raw, err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: subjectID}}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	// Relaxed extended JSON keeps plain strings and numbers as JSON scalars.
	doc, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	return Record(doc), nil
}
