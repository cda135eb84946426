package pebblestore_test

import (
	"context"
	"testing"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/checkpointtest"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/pebblestore"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

func TestStore_Conformance(t *testing.T) {
	t.Parallel()
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		s, err := pebblestore.Open(t.TempDir())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	key := checkpoint.Key{UserID: "u", ContextID: "c"}

	s, err := pebblestore.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, key, checkpoint.State{Messages: []types.Message{{Role: types.RoleUser, Content: "persisted"}}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = pebblestore.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	got, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Messages[0].Content != "persisted" {
		t.Errorf("Content = %q", got.Messages[0].Content)
	}
}
