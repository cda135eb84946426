// Package agent turns one inbound chat event into one response envelope.
//
// The two primary abstractions are:
//
//   - [Invoker]: the per-request state machine. It resolves the conversation
//     key, loads the history, generates a reply, persists the turn, labels
//     the mood and builds the envelope. It is the single place where errors
//     become an error envelope.
//   - [Generator]: produces the final assistant text for a message history.
//     [ToolLoop] is the production implementation; it runs the model and
//     any tools it asks for until the model answers in plain text.
//
// This package lives under internal/ because it encapsulates application-private
// orchestration logic and is not intended to be imported by external code.
package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrMissingUser is returned for a request without a user id.
var ErrMissingUser = errors.New("agent: user id is required")

// ErrEmptyMessage is returned for an event that carries no player text
// and no payload beyond its routing fields.
var ErrEmptyMessage = errors.New("agent: message text is required")

// ErrEmptyReply is returned when the model finishes without any text.
var ErrEmptyReply = errors.New("agent: model returned an empty reply")

// Request is one inbound event after the transport has decoded it.
type Request struct {
	// EventType is the logical event ("query", "combat_turn", "level_up",
	// "character_creation", ...). It selects the response field.
	EventType string

	// UserID comes from the transport identity, never from the payload.
	UserID string

	// ContextID continues an existing conversation. Empty starts a new one
	// unless the payload carries "context_id".
	ContextID string

	// RequestID correlates the response with the request. Empty means the
	// payload's "request_id" or a generated one.
	RequestID string

	// Personality names the persona. Empty means the payload's
	// "personality" or the registry default.
	Personality string

	// Payload is the decoded event body.
	Payload map[string]any
}

// Response is the outbound envelope. Exactly one of the content or message
// fields is emitted on success, chosen by Field.
type Response struct {
	RequestID string
	Status    string
	Timestamp int64
	ContextID string
	Persona   string
	Mood      string

	// Field is "content" or "message"; Text is its value.
	Field string
	Text  string

	// Error and DebugInfo are set only when Status is StatusError. Error is
	// safe to show to the player; DebugInfo is internal detail.
	Error     string
	DebugInfo string
}

// Map returns the envelope as it goes on the wire.
func (r Response) Map() map[string]any {
	m := map[string]any{
		"request_id": r.RequestID,
		"status":     r.Status,
		"timestamp":  r.Timestamp,
		"context_id": r.ContextID,
	}
	if r.Mood != "" {
		m["mood"] = r.Mood
	}
	if r.Persona != "" {
		m["personality"] = r.Persona
	}
	if r.Field != "" {
		m[r.Field] = r.Text
	}
	if r.Status == StatusError {
		m["error"] = r.Error
		m["debug_info"] = r.DebugInfo
	}
	return m
}

// MarshalJSON implements [json.Marshaler].
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// Invoker handles one request to completion. Invoke never returns an error:
// every failure is folded into an envelope with Status [StatusError].
//
// Implementations must be safe for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Response
}

// Generator produces the final assistant reply for msgs.
//
// msgs is the full prompt: system message, stored history and the inbound
// message. Implementations must not modify it.
type Generator interface {
	Generate(ctx context.Context, msgs []types.Message) (string, error)
}

// GeneratorFunc adapts a function to [Generator].
type GeneratorFunc func(ctx context.Context, msgs []types.Message) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, msgs []types.Message) (string, error) {
	return f(ctx, msgs)
}
