// Package conversation turns stored checkpoints into the message sequence
// sent to the model and folds each finished turn back into the log.
//
// A conversation's system message is written exactly once, when the
// conversation is created, and always sits first. The persona chosen at
// creation is pinned in metadata; a different persona requested on a later
// turn is ignored.
package conversation

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/persona"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Metadata keys.
const (
	MetaPersona       = "persona"
	MetaLastEventType = "last_event_type"
	MetaTurns         = "turns"
	MetaCreatedAt     = "created_at"
)

// Session loads and saves conversations through a checkpoint store.
type Session struct {
	store    checkpoint.Store
	personas *persona.Registry
	now      func() time.Time
}

// Option configures a [Session].
type Option func(*Session)

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a Session.
func New(store checkpoint.Store, personas *persona.Registry, opts ...Option) *Session {
	s := &Session{store: store, personas: personas, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store returns the underlying checkpoint store.
func (s *Session) Store() checkpoint.Store { return s.store }

// Conversation is one loaded conversation. It is not safe for concurrent
// use; each request works on its own copy.
type Conversation struct {
	Key     checkpoint.Key
	Persona persona.Persona

	// New is true when nothing was stored under Key.
	New bool

	// Degraded is true when the load failed and the conversation started
	// from an empty history for this turn only.
	Degraded bool

	state checkpoint.State
}

// LoadOrCreate loads the conversation under key, or starts one with the
// persona named personaName (empty for the default).
//
// The returned conversation is always usable. When the store read fails
// the error is returned alongside a fresh conversation marked Degraded.
func (s *Session) LoadOrCreate(ctx context.Context, key checkpoint.Key, personaName string) (*Conversation, error) {
	st, found, err := s.store.Get(ctx, key)
	if err != nil {
		c := s.create(key, personaName)
		c.Degraded = true
		return c, err
	}
	if !found {
		return s.create(key, personaName), nil
	}

	st.Key = key
	if st.Metadata == nil {
		st.Metadata = map[string]any{}
	}
	c := &Conversation{Key: key, state: st}

	pinned, _ := st.Metadata[MetaPersona].(string)
	switch {
	case pinned == "":
		// Written before personas were pinned; adopt the request.
		c.Persona = s.personas.Resolve(personaName)
		st.Metadata[MetaPersona] = c.Persona.Name
	default:
		c.Persona = s.personas.Resolve(pinned)
		if personaName != "" && !strings.EqualFold(personaName, pinned) {
			slog.InfoContext(ctx, "persona override ignored for existing conversation",
				"key", key.String(), "pinned", pinned, "requested", personaName)
		}
	}
	c.ensureSystem()
	return c, nil
}

func (s *Session) create(key checkpoint.Key, personaName string) *Conversation {
	p := s.personas.Resolve(personaName)
	c := &Conversation{
		Key:     key,
		Persona: p,
		New:     true,
		state: checkpoint.State{
			Key: key,
			Metadata: map[string]any{
				MetaPersona:   p.Name,
				MetaCreatedAt: s.now().UTC().Format(time.RFC3339),
				MetaTurns:     0,
			},
		},
	}
	c.ensureSystem()
	return c
}

// ensureSystem prepends the persona prompt when the history has no system
// message. It never adds a second one.
func (c *Conversation) ensureSystem() {
	for _, m := range c.state.Messages {
		if m.Role == types.RoleSystem {
			return
		}
	}
	sys := types.Message{Role: types.RoleSystem, Content: c.Persona.Prompt()}
	c.state.Messages = append([]types.Message{sys}, c.state.Messages...)
}

// History returns a copy of the stored messages.
func (c *Conversation) History() []types.Message {
	return slices.Clone(c.state.Messages)
}

// Prompt returns the history followed by inbound: the sequence to send to
// the model for this turn.
func (c *Conversation) Prompt(inbound types.Message) []types.Message {
	out := make([]types.Message, 0, len(c.state.Messages)+1)
	out = append(out, c.state.Messages...)
	return append(out, inbound)
}

// Metadata returns a copy of the conversation metadata.
func (c *Conversation) Metadata() map[string]any {
	return c.state.Clone().Metadata
}

// Turns returns the number of committed turns.
func (c *Conversation) Turns() int {
	return toInt(c.state.Metadata[MetaTurns])
}

// Commit appends the inbound and final outbound messages of a finished
// turn and updates the metadata. Intermediate tool traffic is not part of
// the log.
func (c *Conversation) Commit(inbound, outbound types.Message, eventType string, at time.Time) {
	c.state.Messages = append(c.state.Messages, inbound, outbound)
	if c.state.Metadata == nil {
		c.state.Metadata = map[string]any{}
	}
	c.state.Metadata[MetaLastEventType] = eventType
	c.state.Metadata[MetaTurns] = c.Turns() + 1
	c.state.UpdatedAt = at.UTC()
}

// State returns a copy of the state to persist.
func (c *Conversation) State() checkpoint.State {
	return c.state.Clone()
}

// Save writes c to the store.
func (s *Session) Save(ctx context.Context, c *Conversation) error {
	return s.store.Put(ctx, c.Key, c.State())
}

// Verify re-reads the conversation and reports whether the store holds the
// same history as c. A failed Put may still have landed, for example when
// the acknowledgement timed out. A windowed store keeps only the system
// message and the newest messages, so a stored suffix of the history
// counts as a match when the turn counts agree.
func (s *Session) Verify(ctx context.Context, c *Conversation) (bool, error) {
	st, found, err := s.store.Get(ctx, c.Key)
	if err != nil || !found {
		return false, err
	}
	got, want := st.Messages, c.state.Messages
	if len(got) == 0 || len(got) > len(want) || toInt(st.Metadata[MetaTurns]) != c.Turns() {
		return false, nil
	}
	if want[0].Role == types.RoleSystem {
		if !sameMessage(got[0], want[0]) {
			return false, nil
		}
		got, want = got[1:], want[1:]
	}
	if len(got) == 0 && len(want) > 0 {
		return false, nil
	}
	want = want[len(want)-len(got):]
	for i := range got {
		if !sameMessage(got[i], want[i]) {
			return false, nil
		}
	}
	return true, nil
}

func sameMessage(a, b types.Message) bool {
	return a.Role == b.Role && a.Content == b.Content
}

// toInt reads a numeric metadata value that may have been decoded as any
// of several numeric types depending on the backend.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
