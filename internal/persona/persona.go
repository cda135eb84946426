// Package persona holds the named bundles of system prompt, error text and
// response-field rule that give the assistant its voice.
//
// Personas are immutable values. A [Registry] is built once at startup and
// only its default may change afterwards, through config hot reload.
package persona

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Built-in persona names.
const (
	Frinny     = "Frinny"
	GameMaster = "GameMaster"
)

// EventQuery is the only event type whose reply goes in the content field.
const EventQuery = "query"

// Response field names.
const (
	FieldContent = "content"
	FieldMessage = "message"
)

// BaseErrorMessage is shown when a persona has no error text of its own.
const BaseErrorMessage = "I'm sorry, I encountered a system error. Please try again."

// ErrUnknownPersona is returned when a name matches no registered persona.
var ErrUnknownPersona = errors.New("persona: unknown persona")

// Persona is one assistant character.
type Persona struct {
	Name         string
	SystemPrompt string
	ErrorMessage string
}

// Prompt returns the system message content: the persona prompt followed
// by the mood-block instruction.
func (p Persona) Prompt() string {
	return strings.TrimRight(p.SystemPrompt, "\n") + "\n\n" + MoodInstruction
}

// UserError returns the text shown to the player when a turn fails.
func (p Persona) UserError() string {
	if p.ErrorMessage == "" {
		return BaseErrorMessage
	}
	return p.ErrorMessage
}

// ResponseField returns the envelope field that carries the reply for
// eventType: "content" for queries, "message" for everything else.
func (p Persona) ResponseField(eventType string) string {
	if eventType == EventQuery {
		return FieldContent
	}
	return FieldMessage
}

// Registry maps names to personas. It is safe for concurrent use.
type Registry struct {
	personas map[string]Persona // keyed by lower-case name
	names    []string

	mu          sync.RWMutex
	defaultName string
}

// NewRegistry builds a registry. defaultName must name one of personas.
func NewRegistry(defaultName string, personas ...Persona) (*Registry, error) {
	r := &Registry{personas: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		if p.Name == "" {
			return nil, errors.New("persona: empty name")
		}
		k := strings.ToLower(p.Name)
		if _, dup := r.personas[k]; dup {
			return nil, fmt.Errorf("persona: duplicate name %q", p.Name)
		}
		r.personas[k] = p
		r.names = append(r.names, p.Name)
	}
	if err := r.SetDefault(defaultName); err != nil {
		return nil, err
	}
	return r, nil
}

// Builtin returns a registry with Frinny and GameMaster. An empty
// defaultName selects Frinny.
func Builtin(defaultName string) (*Registry, error) {
	if defaultName == "" {
		defaultName = Frinny
	}
	return NewRegistry(defaultName, FrinnyPersona(), GameMasterPersona())
}

// Get returns the persona called name. Matching ignores case; an empty name
// selects the default. For an unknown name the error suggests the closest
// registered name when there is one.
func (r *Registry) Get(name string) (Persona, error) {
	if strings.TrimSpace(name) == "" {
		return r.Default(), nil
	}
	if p, ok := r.personas[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	if guess, _, ok := matchName(name, r.names); ok {
		return Persona{}, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownPersona, name, guess)
	}
	return Persona{}, fmt.Errorf("%w %q", ErrUnknownPersona, name)
}

// Resolve is Get that never fails: an unknown name falls back to the
// default persona and logs a warning.
func (r *Registry) Resolve(name string) Persona {
	p, err := r.Get(name)
	if err != nil {
		def := r.Default()
		slog.Warn("unknown persona, using default", "requested", name, "default", def.Name, "err", err)
		return def
	}
	return p
}

// Default returns the current default persona.
func (r *Registry) Default() Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[strings.ToLower(r.defaultName)]
}

// SetDefault changes the default persona.
func (r *Registry) SetDefault(name string) error {
	p, ok := r.personas[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("%w %q: cannot set default", ErrUnknownPersona, name)
	}
	r.mu.Lock()
	r.defaultName = p.Name
	r.mu.Unlock()
	return nil
}

// Names lists registered persona names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}
