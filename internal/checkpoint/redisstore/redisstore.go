// Package redisstore is a checkpoint backend on Redis. Each conversation is
// one string key holding the encoded state, optionally with a TTL.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
)

const keyPrefix = "frinny:checkpoint:"

var _ checkpoint.Store = (*Store)(nil)

// Store is a [checkpoint.Store] backed by Redis.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// Connect parses a redis:// or rediss:// URL and pings the server. A ttl of
// zero keeps conversations forever.
func Connect(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	if redisURL == "" {
		return nil, errors.New("redisstore: empty URL")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return New(client, ttl), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func redisKey(key checkpoint.Key) string {
	return keyPrefix + key.String()
}

// Get implements [checkpoint.Store.Get].
func (s *Store) Get(ctx context.Context, key checkpoint.Key) (checkpoint.State, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkpoint.State{}, false, nil
	}
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("redisstore: get: %w", err)
	}
	st, err := checkpoint.Unmarshal(data)
	if err != nil {
		return checkpoint.State{}, false, err
	}
	st.Key = key
	return st, true, nil
}

// Put implements [checkpoint.Store.Put]. SET replaces the value atomically.
func (s *Store) Put(ctx context.Context, key checkpoint.Key, st checkpoint.State) error {
	st.Key = key
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	data, err := checkpoint.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: put: %w", err)
	}
	return nil
}

// Ping implements [checkpoint.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements [checkpoint.Store.Close].
func (s *Store) Close() error { return s.client.Close() }

// Name implements [checkpoint.Store.Name].
func (s *Store) Name() string { return "redis" }
