// Package mongodb implements wallet storage on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blockbase-labs/oid4vc-suite/internal/credential"
	"github.com/blockbase-labs/oid4vc-suite/internal/storage"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

// Store implements storage.Store on MongoDB.
type Store struct {
	client      *mongo.Client
	database    *mongo.Database
	credentials *CredentialStore
}

// NewStore connects to MongoDB, verifies the connection and prepares indexes.
func NewStore(ctx context.Context, cfg *config.MongoDBConfig) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)
	s := &Store{
		client:      client,
		database:    database,
		credentials: &CredentialStore{collection: database.Collection("credentials")},
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.credentials.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create credential indexes: %w", err)
	}
	return nil
}

func (s *Store) Credentials() storage.CredentialStore { return s.credentials }

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// CredentialStore implements MongoDB credential storage.
type CredentialStore struct {
	collection *mongo.Collection
}

func (s *CredentialStore) Save(ctx context.Context, cred *credential.Stored) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	_, err := s.collection.InsertOne(ctx, cred)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, id string) (*credential.Stored, error) {
	var cred credential.Stored
	err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&cred)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) GetAll(ctx context.Context) ([]*credential.Stored, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*credential.Stored
	for cursor.Next(ctx) {
		var cred credential.Stored
		if err := cursor.Decode(&cred); err != nil {
			return nil, fmt.Errorf("failed to decode credential: %w", err)
		}
		out = append(out, &cred)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return out, nil
}

func (s *CredentialStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
