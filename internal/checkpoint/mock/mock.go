// Package mock provides a scriptable test double for checkpoint.Store.
//
// The mock keeps real state in a [checkpoint.MemoryStore], so a Put followed
// by a Get behaves like a working backend unless an error is injected.
// PutErrs and GetErrs are consumed one per call, which makes
// "fail once, then succeed" scenarios easy to express.
package mock

import (
	"context"
	"sync"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
)

var _ checkpoint.Store = (*Store)(nil)

// PutCall records a single Put.
type PutCall struct {
	Key   checkpoint.Key
	State checkpoint.State
	Err   error
}

// Store is a mock implementation of checkpoint.Store.
type Store struct {
	mu sync.Mutex

	// GetErrs are returned one per Get call, in order. A nil entry lets the
	// call through to the backing map.
	GetErrs []error

	// GetErr is returned from every Get once GetErrs is exhausted.
	GetErr error

	// PutErrs are returned one per Put call, in order.
	PutErrs []error

	// PutErr is returned from every Put once PutErrs is exhausted.
	PutErr error

	// PingErr is returned from Ping.
	PingErr error

	// BackendName is returned by Name. Defaults to "mock".
	BackendName string

	// GetKeys records every key passed to Get.
	GetKeys []checkpoint.Key

	// PutCalls records every Put.
	PutCalls []PutCall

	Closed bool

	data *checkpoint.MemoryStore
}

func (s *Store) backing() *checkpoint.MemoryStore {
	if s.data == nil {
		s.data = checkpoint.NewMemoryStore()
	}
	return s.data
}

// Seed stores st under key without recording a call.
func (s *Store) Seed(key checkpoint.Key, st checkpoint.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.backing().Put(context.Background(), key, st)
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, key checkpoint.Key) (checkpoint.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetKeys = append(s.GetKeys, key)
	if err := next(&s.GetErrs, s.GetErr); err != nil {
		return checkpoint.State{}, false, err
	}
	return s.backing().Get(ctx, key)
}

// Put implements checkpoint.Store.
func (s *Store) Put(ctx context.Context, key checkpoint.Key, st checkpoint.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := next(&s.PutErrs, s.PutErr)
	s.PutCalls = append(s.PutCalls, PutCall{Key: key, State: st.Clone(), Err: err})
	if err != nil {
		return err
	}
	return s.backing().Put(ctx, key, st)
}

// Ping implements checkpoint.Store.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// Close implements checkpoint.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Name implements checkpoint.Store.
func (s *Store) Name() string {
	if s.BackendName == "" {
		return "mock"
	}
	return s.BackendName
}

// Puts returns a snapshot of the recorded Put calls.
func (s *Store) Puts() []PutCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PutCall, len(s.PutCalls))
	copy(out, s.PutCalls)
	return out
}

// Gets returns a snapshot of the keys passed to Get.
func (s *Store) Gets() []checkpoint.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]checkpoint.Key, len(s.GetKeys))
	copy(out, s.GetKeys)
	return out
}

func next(queue *[]error, fallback error) error {
	if len(*queue) > 0 {
		err := (*queue)[0]
		*queue = (*queue)[1:]
		return err
	}
	return fallback
}
