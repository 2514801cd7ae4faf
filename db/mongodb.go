package db

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kaanmetep/deepintodev/models"
)

// Connect and disconnect timeouts against the document store.
const mongoTimeout = 5 * time.Second

// MongoStore is a SubscriberStore and SuppressionStore backed by a Mongo
// database. Connections are dialed per call and released on every exit
// path; the only cross-request invariant is the unique index on email.
type MongoStore struct {
	cfg Config
}

// NewMongoStore returns a store for the database named in cfg. No
// connection is made until the first call.
func NewMongoStore(cfg Config) *MongoStore {
	return &MongoStore{cfg: cfg}
}

// withCollection dials the document store, runs fn against the named
// collection, and disconnects regardless of how fn exits.
func (s *MongoStore) withCollection(ctx context.Context, name string, fn func(context.Context, *mongo.Collection) error) error {
	dialCtx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().
		ApplyURI(s.cfg.MongoURI).
		SetConnectTimeout(mongoTimeout))
	if err != nil {
		return err
	}
	defer func() {
		discCtx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
		defer cancel()
		if err := client.Disconnect(discCtx); err != nil {
			log.Printf("Error closing MongoDB connection: %v", err)
		}
	}()
	return fn(ctx, client.Database(s.cfg.DbName).Collection(name))
}

// EnsureIndexes creates the unique index on subscriber emails. Called once
// at process start; the index is what makes concurrent duplicate inserts
// lose cleanly rather than double-subscribe.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	return s.withCollection(ctx, s.cfg.SubscriberCollection, func(ctx context.Context, c *mongo.Collection) error {
		_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		return err
	})
}

// Exists reports whether a subscriber record is present for email.
func (s *MongoStore) Exists(ctx context.Context, email string) (bool, error) {
	var found bool
	err := s.withCollection(ctx, s.cfg.SubscriberCollection, func(ctx context.Context, c *mongo.Collection) error {
		err := c.FindOne(ctx, bson.M{"email": email}).Err()
		if err == mongo.ErrNoDocuments {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Insert persists a verified subscriber record for email.
func (s *MongoStore) Insert(ctx context.Context, email string) error {
	return s.withCollection(ctx, s.cfg.SubscriberCollection, func(ctx context.Context, c *mongo.Collection) error {
		_, err := c.InsertOne(ctx, models.Subscriber{Email: email, Verified: true})
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadySubscribed
		}
		return err
	})
}

// PutSuppressedEmail adds a bounce or complaint notification to the
// suppression list.
func (s *MongoStore) PutSuppressedEmail(ctx context.Context, email string, reason string, timestamp string) error {
	return s.withCollection(ctx, s.cfg.SuppressionCollection, func(ctx context.Context, c *mongo.Collection) error {
		_, err := c.InsertOne(ctx, models.SuppressedEmail{
			Email:     email,
			Reason:    reason,
			Timestamp: timestamp,
		})
		return err
	})
}

// IsSuppressedEmail returns true iff we've recorded a bounce or complaint
// for the passed address.
func (s *MongoStore) IsSuppressedEmail(ctx context.Context, email string) (bool, error) {
	var suppressed bool
	err := s.withCollection(ctx, s.cfg.SuppressionCollection, func(ctx context.Context, c *mongo.Collection) error {
		count, err := c.CountDocuments(ctx, bson.M{"email": email})
		if err != nil {
			return err
		}
		suppressed = count > 0
		return nil
	})
	return suppressed, err
}
