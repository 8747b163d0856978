// Package store wraps the MongoDB connection and exposes the collections
// and primitives (indexes, transactions, live queries) the services build on.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Users() *mongo.Collection          { return s.db.Collection("users") }
func (s *Store) Preferences() *mongo.Collection    { return s.db.Collection("userPreferences") }
func (s *Store) Posts() *mongo.Collection          { return s.db.Collection("posts") }
func (s *Store) FriendRequests() *mongo.Collection { return s.db.Collection("friendRequests") }
func (s *Store) Friends() *mongo.Collection        { return s.db.Collection("friends") }
func (s *Store) Goals() *mongo.Collection          { return s.db.Collection("goals") }
func (s *Store) Messages() *mongo.Collection       { return s.db.Collection("messages") }
func (s *Store) LastSeen() *mongo.Collection       { return s.db.Collection("lastSeen") }

// WithTransaction runs fn inside a multi-document transaction. Used by the
// friend accept so the status transition and both membership records commit
// together or not at all.
func (s *Store) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

// EnsureIndexes creates the indexes the services rely on. The partial unique
// index on friendRequests backs the at-most-one-pending-request invariant at
// the storage layer, on top of the service-level check.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.Users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = s.FriendRequests().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fromUserId", Value: 1}, {Key: "toUserId", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": "pending"}),
	})
	if err != nil {
		return fmt.Errorf("failed to create friendRequests index: %w", err)
	}

	_, err = s.Friends().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "friendId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create friends index: %w", err)
	}

	_, err = s.Messages().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}

	for _, coll := range []*mongo.Collection{s.Posts(), s.Goals()} {
		_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "userId", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("failed to create %s index: %w", coll.Name(), err)
		}
	}

	return nil
}
