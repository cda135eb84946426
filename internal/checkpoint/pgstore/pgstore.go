// Package pgstore is a checkpoint backend on PostgreSQL. Message history and
// metadata are stored as JSONB so they stay queryable from psql.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Schema is the SQL DDL for the conversation_checkpoints table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS conversation_checkpoints (
    storage_key TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    context_id  TEXT NOT NULL,
    messages    JSONB NOT NULL DEFAULT '[]',
    metadata    JSONB NOT NULL DEFAULT '{}',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversation_checkpoints_user ON conversation_checkpoints(user_id);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

var _ checkpoint.Store = (*Store)(nil)

// Store is a [checkpoint.Store] backed by PostgreSQL.
type Store struct {
	db    DB
	close func()
}

// New wraps an existing connection or pool. The caller owns db and is
// responsible for calling [Store.Migrate].
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool for dsn, pings it and applies [Schema]. The returned
// store closes the pool on Close.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s := &Store{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Get implements [checkpoint.Store.Get].
func (s *Store) Get(ctx context.Context, key checkpoint.Key) (checkpoint.State, bool, error) {
	var (
		msgJSON  []byte
		metaJSON []byte
		updated  time.Time
	)
	const query = `
		SELECT messages, metadata, updated_at
		FROM conversation_checkpoints
		WHERE storage_key = $1`
	err := s.db.QueryRow(ctx, query, key.String()).Scan(&msgJSON, &metaJSON, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkpoint.State{}, false, nil
	}
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("pgstore: get: %w", err)
	}

	st := checkpoint.State{Key: key, UpdatedAt: updated}
	if err := json.Unmarshal(msgJSON, &st.Messages); err != nil {
		return checkpoint.State{}, false, fmt.Errorf("pgstore: unmarshal messages: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &st.Metadata); err != nil {
			return checkpoint.State{}, false, fmt.Errorf("pgstore: unmarshal metadata: %w", err)
		}
	}
	return st, true, nil
}

// Put implements [checkpoint.Store.Put] as a single upsert.
func (s *Store) Put(ctx context.Context, key checkpoint.Key, st checkpoint.State) error {
	msgs := st.Messages
	if msgs == nil {
		msgs = []types.Message{}
	}
	msgJSON, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("pgstore: marshal messages: %w", err)
	}
	meta := st.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("pgstore: marshal metadata: %w", err)
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	const query = `
		INSERT INTO conversation_checkpoints (storage_key, user_id, context_id, messages, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (storage_key) DO UPDATE SET
			messages = EXCLUDED.messages,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(ctx, query,
		key.String(), key.UserID, key.ContextID, msgJSON, metaJSON, updated,
	); err != nil {
		return fmt.Errorf("pgstore: put: %w", err)
	}
	return nil
}

// Ping implements [checkpoint.Store.Ping].
func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// Close implements [checkpoint.Store.Close]. It only closes pools opened by
// [Connect].
func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Name implements [checkpoint.Store.Name].
func (s *Store) Name() string { return "postgres" }
