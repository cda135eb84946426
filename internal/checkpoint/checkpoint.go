// Package checkpoint persists conversation state between turns.
//
// A checkpoint is the full message history of one (user, context) pair plus
// a small metadata map. Every backend derives its storage key through
// [Key.String] so reads and writes can never disagree on where a
// conversation lives.
//
// Backends live in subpackages (memory is built in). [Guarded] wraps any
// backend with a bounded per-operation timeout and a circuit breaker;
// [Cached] and [Windowed] are optional decorators.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

var (
	// ErrTimeout is returned by [Guarded] when the wrapped backend does not
	// answer within the operation timeout.
	ErrTimeout = errors.New("checkpoint: operation timed out")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("checkpoint: store closed")

	// ErrInvalidKey is returned for keys with an empty user or context id.
	ErrInvalidKey = errors.New("checkpoint: invalid key")
)

// Key identifies one conversation.
type Key struct {
	UserID    string
	ContextID string
}

// userEscaper escapes the separator inside the user half so that no two
// keys share a storage key.
var userEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// String returns the canonical storage key "user:context". A ':' or '%' in
// the user id is percent-escaped; plain ids are written as they are. Every
// backend uses it for both reads and writes.
func (k Key) String() string {
	return userEscaper.Replace(k.UserID) + ":" + k.ContextID
}

// Validate reports whether both halves of the key are set.
func (k Key) Validate() error {
	switch {
	case k.UserID == "":
		return fmt.Errorf("%w: empty user id", ErrInvalidKey)
	case k.ContextID == "":
		return fmt.Errorf("%w: empty context id", ErrInvalidKey)
	}
	return nil
}

// State is the persisted unit: an ordered message log plus metadata.
type State struct {
	Key       Key
	Messages  []types.Message
	Metadata  map[string]any
	UpdatedAt time.Time
}

// Clone returns a copy that shares no slices or maps with s. Metadata
// values are copied shallowly.
func (s State) Clone() State {
	out := s
	if s.Messages != nil {
		out.Messages = make([]types.Message, len(s.Messages))
		for i, m := range s.Messages {
			m.ToolCalls = slices.Clone(m.ToolCalls)
			out.Messages[i] = m
		}
	}
	if s.Metadata != nil {
		out.Metadata = maps.Clone(s.Metadata)
	}
	return out
}

// Store is a keyed checkpoint backend. Implementations must be safe for
// concurrent use and must write each key atomically; concurrent writers to
// the same key resolve as last write wins.
type Store interface {
	// Get returns the state stored under key. A missing key is reported as
	// (State{}, false, nil), never as an error.
	Get(ctx context.Context, key Key) (State, bool, error)

	// Put replaces the state stored under key.
	Put(ctx context.Context, key Key, state State) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error

	// Name returns a short backend label such as "mongo" or "memory".
	Name() string
}
