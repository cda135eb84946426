package checkpoint_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/checkpointtest"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

func TestKey_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  checkpoint.Key
		want string
	}{
		{checkpoint.Key{UserID: "u1", ContextID: "c1"}, "u1:c1"},
		{checkpoint.Key{UserID: "discord:42", ContextID: "abc"}, "discord%3A42:abc"},
		{checkpoint.Key{UserID: "50%", ContextID: "c:d"}, "50%25:c:d"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.key, got, tt.want)
		}
		// Same key, same derivation, every time.
		if tt.key.String() != (checkpoint.Key{UserID: tt.key.UserID, ContextID: tt.key.ContextID}).String() {
			t.Errorf("key derivation not stable for %+v", tt.key)
		}
	}
}

func TestKey_StringIsInjective(t *testing.T) {
	t.Parallel()

	pairs := [][2]checkpoint.Key{
		{{UserID: "a:b", ContextID: "c"}, {UserID: "a", ContextID: "b:c"}},
		{{UserID: "discord:123", ContextID: "discord:456"}, {UserID: "discord", ContextID: "123:discord:456"}},
		{{UserID: "a%3Ab", ContextID: "c"}, {UserID: "a:b", ContextID: "c"}},
	}
	for _, p := range pairs {
		if p[0].String() == p[1].String() {
			t.Errorf("%+v and %+v share storage key %q", p[0], p[1], p[0].String())
		}
	}
}

func TestKey_ColonUserIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := checkpoint.NewMemoryStore()
	owner := checkpoint.Key{UserID: "a:b", ContextID: "c"}
	other := checkpoint.Key{UserID: "a", ContextID: "b:c"}
	if err := s.Put(ctx, owner, checkpoint.State{Key: owner, Messages: []types.Message{{Role: types.RoleUser, Content: "mine"}}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := s.Get(ctx, other); err != nil || ok {
		t.Errorf("Get(%+v): ok=%v err=%v, want absent", other, ok, err)
	}
}

func TestKey_Validate(t *testing.T) {
	t.Parallel()

	if err := (checkpoint.Key{UserID: "u", ContextID: "c"}).Validate(); err != nil {
		t.Errorf("valid key: %v", err)
	}
	for _, k := range []checkpoint.Key{{ContextID: "c"}, {UserID: "u"}, {}} {
		if err := k.Validate(); !errors.Is(err, checkpoint.ErrInvalidKey) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidKey", k, err)
		}
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := checkpoint.State{
		Messages: []types.Message{{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "1"}}}},
		Metadata: map[string]any{"persona": "frinny"},
	}
	c := orig.Clone()
	c.Messages[0].Content = "changed"
	c.Messages[0].ToolCalls[0].ID = "2"
	c.Metadata["persona"] = "gamemaster"
	c.Messages = append(c.Messages, types.Message{Role: types.RoleUser})

	if orig.Messages[0].Content != "" || orig.Messages[0].ToolCalls[0].ID != "1" {
		t.Errorf("clone shares message storage with original: %+v", orig.Messages[0])
	}
	if orig.Metadata["persona"] != "frinny" {
		t.Errorf("clone shares metadata with original")
	}
	if len(orig.Messages) != 1 {
		t.Errorf("len(orig.Messages) = %d, want 1", len(orig.Messages))
	}
}

func TestMemoryStore_Conformance(t *testing.T) {
	t.Parallel()
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

func TestGuardedMemoryStore_Conformance(t *testing.T) {
	t.Parallel()
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		return checkpoint.Guard(checkpoint.NewMemoryStore())
	})
}

func TestCachedStore_Conformance(t *testing.T) {
	t.Parallel()
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		c, err := checkpoint.NewCached(checkpoint.NewMemoryStore(), 8)
		if err != nil {
			t.Fatalf("NewCached: %v", err)
		}
		return c
	})
}
