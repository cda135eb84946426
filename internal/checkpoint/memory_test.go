package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

func TestMemoryStore_StoresCopies(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	key := Key{UserID: "u", ContextID: "c"}
	st := State{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}}

	if err := s.Put(ctx, key, st); err != nil {
		t.Fatalf("Put: %v", err)
	}
	st.Messages[0].Content = "mutated after put"

	got, _, _ := s.Get(ctx, key)
	if got.Messages[0].Content != "hi" {
		t.Errorf("stored content = %q, want %q", got.Messages[0].Content, "hi")
	}
	got.Messages[0].Content = "mutated after get"

	again, _, _ := s.Get(ctx, key)
	if again.Messages[0].Content != "hi" {
		t.Errorf("stored content after read mutation = %q, want %q", again.Messages[0].Content, "hi")
	}
	if again.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx := context.Background()
	key := Key{UserID: "u", ContextID: "c"}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Put(ctx, key, State{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close = %v, want ErrClosed", err)
	}
}
