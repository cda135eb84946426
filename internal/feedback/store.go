// Package feedback records player feedback sent over the socket, the HTTP
// fallback route or Discord. Entries are stored as append-only JSON lines in
// a local file, suitable for the small volume a single deployment sees.
package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"
)

// Sources.
const (
	SourceSocket  = "socket"
	SourceHTTP    = "http"
	SourceDiscord = "discord"
)

// Entry is a single feedback record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id"`
	Source    string         `json:"source"`
	RequestID string         `json:"request_id,omitempty"`
	ContextID string         `json:"context_id,omitempty"`
	Rating    int            `json:"rating,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink stores feedback entries. Implementations must be safe for concurrent use.
type Sink interface {
	Save(ctx context.Context, e Entry) error
}

var (
	_ Sink = (*FileStore)(nil)
	_ Sink = (*MemoryStore)(nil)
)

// FileStore persists feedback as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store appends to.
func (fs *FileStore) Path() string { return fs.path }

// Save appends e to the file. A zero Timestamp is set to the current time.
func (fs *FileStore) Save(_ context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}

// Load reads every entry in the file. A missing file yields no entries.
func (fs *FileStore) Load() ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("feedback: line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("feedback: read: %w", err)
	}
	return out, nil
}

// MemoryStore keeps entries in memory. It is used when no feedback file is
// configured, and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// Save implements [Sink].
func (m *MemoryStore) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a snapshot of the stored entries.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}
