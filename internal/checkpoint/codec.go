package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// codecVersion is bumped when the encoded layout changes incompatibly.
const codecVersion = 1

type record struct {
	Version   int             `json:"v"`
	UserID    string          `json:"user_id"`
	ContextID string          `json:"context_id"`
	Messages  []types.Message `json:"messages"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Marshal encodes st for byte-oriented backends (sqlite, pebble, redis).
func Marshal(st State) ([]byte, error) {
	msgs := st.Messages
	if msgs == nil {
		msgs = []types.Message{}
	}
	data, err := json.Marshal(record{
		Version:   codecVersion,
		UserID:    st.Key.UserID,
		ContextID: st.Key.ContextID,
		Messages:  msgs,
		Metadata:  st.Metadata,
		UpdatedAt: st.UpdatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode %s: %w", st.Key, err)
	}
	return data, nil
}

// Unmarshal decodes bytes written by [Marshal]. Numeric metadata values
// come back as float64.
func Unmarshal(data []byte) (State, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return State{}, fmt.Errorf("checkpoint: decode: %w", err)
	}
	if rec.Version > codecVersion {
		return State{}, fmt.Errorf("checkpoint: decode: unsupported version %d", rec.Version)
	}
	return State{
		Key:       Key{UserID: rec.UserID, ContextID: rec.ContextID},
		Messages:  rec.Messages,
		Metadata:  rec.Metadata,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
