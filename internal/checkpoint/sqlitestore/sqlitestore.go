// Package sqlitestore is a checkpoint backend on a local SQLite file, using
// the pure-Go modernc.org/sqlite driver so no cgo toolchain is required.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
)

// Schema is the DDL applied by [Open].
const Schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    storage_key TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    context_id  TEXT NOT NULL,
    data        BLOB NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_user ON checkpoints(user_id);
`

var _ checkpoint.Store = (*Store)(nil)

// Store is a [checkpoint.Store] backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, opens the database at path
// in WAL mode and applies [Schema].
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitestore: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlitestore: create dir: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// One writer at a time; SQLite serialises writes anyway and a single
	// connection avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements [checkpoint.Store.Get].
func (s *Store) Get(ctx context.Context, key checkpoint.Key) (checkpoint.State, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE storage_key = ?`, key.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.State{}, false, nil
	}
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("sqlitestore: get: %w", err)
	}
	st, err := checkpoint.Unmarshal(data)
	if err != nil {
		return checkpoint.State{}, false, err
	}
	st.Key = key
	return st, true, nil
}

// Put implements [checkpoint.Store.Put].
func (s *Store) Put(ctx context.Context, key checkpoint.Key, st checkpoint.State) error {
	st.Key = key
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	data, err := checkpoint.Marshal(st)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO checkpoints (storage_key, user_id, context_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		key.String(), key.UserID, key.ContextID, data, st.UpdatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("sqlitestore: put: %w", err)
	}
	return nil
}

// Ping implements [checkpoint.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [checkpoint.Store.Close].
func (s *Store) Close() error { return s.db.Close() }

// Name implements [checkpoint.Store.Name].
func (s *Store) Name() string { return "sqlite" }
