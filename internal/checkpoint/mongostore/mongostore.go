// Package mongostore is the remote document-store checkpoint backend. It is
// the most durable tier and the only one shared across processes.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

const (
	// DefaultDatabase is used when Options.Database is empty.
	DefaultDatabase = "frinny"

	// DefaultCollection holds one document per conversation.
	DefaultCollection = "agent_state"
)

// Options configures [Connect].
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// document is the stored shape. _id and checkpoint_id both hold the
// canonical storage key; checkpoint_id is kept for readers that query by it.
type document struct {
	ID           string          `bson:"_id"`
	CheckpointID string          `bson:"checkpoint_id"`
	UserID       string          `bson:"user_id"`
	ContextID    string          `bson:"context_id"`
	Messages     []types.Message `bson:"messages"`
	Metadata     map[string]any  `bson:"metadata,omitempty"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

var _ checkpoint.Store = (*Store)(nil)

// Store is a [checkpoint.Store] backed by a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials MongoDB, verifies the primary is reachable and ensures the
// user_id index exists. Both server selection and the initial connect are
// bounded by ConnectTimeout so a dead cluster fails startup quickly.
func Connect(ctx context.Context, o Options) (*Store, error) {
	if o.URI == "" {
		return nil, errors.New("mongostore: empty URI")
	}
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(o.ConnectTimeout).
		SetServerSelectionTimeout(o.ConnectTimeout).
		SetAppName("frinny-backend")

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	coll := client.Database(o.Database).Collection(o.Collection)
	_, err = coll.Indexes().CreateOne(pingCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: create index: %w", err)
	}
	return &Store{client: client, coll: coll}, nil
}

// Get implements [checkpoint.Store.Get].
func (s *Store) Get(ctx context.Context, key checkpoint.Key) (checkpoint.State, bool, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: key.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return checkpoint.State{}, false, nil
	}
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("mongostore: get: %w", err)
	}
	return checkpoint.State{
		Key:       key,
		Messages:  doc.Messages,
		Metadata:  doc.Metadata,
		UpdatedAt: doc.UpdatedAt,
	}, true, nil
}

// Put implements [checkpoint.Store.Put]. A single-document replace is atomic.
func (s *Store) Put(ctx context.Context, key checkpoint.Key, st checkpoint.State) error {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	msgs := st.Messages
	if msgs == nil {
		msgs = []types.Message{}
	}
	doc := document{
		ID:           key.String(),
		CheckpointID: key.String(),
		UserID:       key.UserID,
		ContextID:    key.ContextID,
		Messages:     msgs,
		Metadata:     st.Metadata,
		UpdatedAt:    updated,
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: put: %w", err)
	}
	return nil
}

// Ping implements [checkpoint.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close implements [checkpoint.Store.Close].
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Name implements [checkpoint.Store.Name].
func (s *Store) Name() string { return "mongo" }
