// Package checkpointtest holds a behavioural test suite shared by every
// checkpoint backend.
package checkpointtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Run exercises the [checkpoint.Store] contract against the store returned
// by open. open is called once per subtest and should return an empty store.
func Run(t *testing.T, open func(t *testing.T) checkpoint.Store) {
	t.Helper()

	t.Run("MissingKeyIsAbsent", func(t *testing.T) {
		s := open(t)
		st, ok, err := s.Get(context.Background(), checkpoint.Key{UserID: "u", ContextID: "nope"})
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if ok {
			t.Fatalf("Get: found = true, want false (state %+v)", st)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		key := checkpoint.Key{UserID: "user-1", ContextID: "ctx-1"}
		want := sampleState(key)

		if err := s.Put(ctx, key, want); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if got.Key != key {
			t.Errorf("Key = %+v, want %+v", got.Key, key)
		}
		assertMessages(t, got.Messages, want.Messages)
		if got.Metadata["persona"] != "frinny" {
			t.Errorf("Metadata[persona] = %v, want frinny", got.Metadata["persona"])
		}
	})

	t.Run("OverwriteReplaces", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		key := checkpoint.Key{UserID: "user-1", ContextID: "ctx-2"}

		first := sampleState(key)
		if err := s.Put(ctx, key, first); err != nil {
			t.Fatalf("Put: %v", err)
		}
		second := first.Clone()
		second.Messages = append(second.Messages, types.Message{Role: types.RoleUser, Content: "and another"})
		if err := s.Put(ctx, key, second); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, _, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		assertMessages(t, got.Messages, second.Messages)
	})

	t.Run("KeysAreIsolated", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		a := checkpoint.Key{UserID: "alice", ContextID: "c"}
		b := checkpoint.Key{UserID: "bob", ContextID: "c"}
		if err := s.Put(ctx, a, sampleState(a)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, ok, err := s.Get(ctx, b); err != nil || ok {
			t.Fatalf("Get(bob): ok=%v err=%v, want absent", ok, err)
		}
	})

	t.Run("ConcurrentDistinctKeys", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		const n = 16

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := checkpoint.Key{UserID: fmt.Sprintf("user-%d", i), ContextID: "c"}
				if err := s.Put(ctx, key, sampleState(key)); err != nil {
					errs <- err
					return
				}
				if _, ok, err := s.Get(ctx, key); err != nil || !ok {
					errs <- fmt.Errorf("get %s: ok=%v err=%v", key, ok, err)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})

	t.Run("ConcurrentSameKey", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		key := checkpoint.Key{UserID: "user-1", ContextID: "shared"}
		const n = 8

		// Writer i puts i+1 messages all tagged with i, so a torn write
		// would show up as a mixed or wrongly sized history.
		written := make([]checkpoint.State, n)
		for i := range n {
			st := checkpoint.State{Key: key, Metadata: map[string]any{"writer": fmt.Sprint(i)}}
			for j := range i + 1 {
				st.Messages = append(st.Messages, types.Message{
					Role:    types.RoleUser,
					Content: fmt.Sprintf("writer %d message %d", i, j),
				})
			}
			written[i] = st
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Put(ctx, key, written[i]); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("Put: %v", err)
		}

		got, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		matches := 0
		for _, w := range written {
			if sameMessages(got.Messages, w.Messages) {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("final state matches %d written states, want exactly 1: %+v", matches, got.Messages)
		}
		if want := fmt.Sprint(len(got.Messages) - 1); got.Metadata["writer"] != want {
			t.Errorf("Metadata[writer] = %v, want %s to match the messages", got.Metadata["writer"], want)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}

func sampleState(key checkpoint.Key) checkpoint.State {
	return checkpoint.State{
		Key: key,
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "You are Frinny."},
			{Role: types.RoleUser, Content: "What does Shield do?"},
			{Role: types.RoleAssistant, Content: "It raises your AC!", ToolCalls: []types.ToolCall{
				{ID: "call_1", Name: "lookup_rules", Arguments: `{"query":"shield"}`},
			}},
		},
		Metadata:  map[string]any{"persona": "frinny", "last_event_type": "query"},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func sameMessages(a, b []types.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Content != b[i].Content {
			return false
		}
	}
	return true
}

func assertMessages(t *testing.T, got, want []types.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len(Messages) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Role != w.Role || g.Content != w.Content || g.ToolCallID != w.ToolCallID {
			t.Errorf("Messages[%d] = %+v, want %+v", i, g, w)
		}
		if len(g.ToolCalls) != len(w.ToolCalls) {
			t.Errorf("Messages[%d].ToolCalls len = %d, want %d", i, len(g.ToolCalls), len(w.ToolCalls))
			continue
		}
		for j := range w.ToolCalls {
			if g.ToolCalls[j] != w.ToolCalls[j] {
				t.Errorf("Messages[%d].ToolCalls[%d] = %+v, want %+v", i, j, g.ToolCalls[j], w.ToolCalls[j])
			}
		}
	}
}
