package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/checkpointtest"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

func TestConnect_EmptyURI(t *testing.T) {
	t.Parallel()
	if _, err := Connect(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for empty URI")
	}
}

func TestConnect_UnreachableFailsFast(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := Connect(context.Background(), Options{
		// Port 1 is reserved; nothing listens there.
		URI:            "mongodb://127.0.0.1:1/?directConnection=true",
		ConnectTimeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Connect took %v, want it bounded by the connect timeout", elapsed)
	}
}

func TestDocument_BSONShape(t *testing.T) {
	t.Parallel()

	doc := document{
		ID:           "u:c",
		CheckpointID: "u:c",
		UserID:       "u",
		ContextID:    "c",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Metadata:     map[string]any{"persona": "frinny"},
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, field := range []string{"_id", "checkpoint_id", "user_id", "context_id", "messages", "metadata", "updated_at"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field %q in %v", field, raw)
		}
	}

	var back document
	if err := bson.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal document: %v", err)
	}
	if back.Messages[0].Content != "hi" || back.Metadata["persona"] != "frinny" {
		t.Errorf("decoded = %+v", back)
	}
}

// TestIntegration runs the shared suite against a real server when
// FRINNY_TEST_MONGODB_URI is set. Each subtest gets its own collection.
func TestIntegration(t *testing.T) {
	uri := os.Getenv("FRINNY_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("FRINNY_TEST_MONGODB_URI not set")
	}
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		s, err := Connect(context.Background(), Options{
			URI:        uri,
			Database:   "frinny_test",
			Collection: "agent_state_" + uuid.NewString(),
		})
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		t.Cleanup(func() {
			_ = s.coll.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
