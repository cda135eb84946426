package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLLM] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory builds an LLM provider from its configuration block.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// Registry maps provider names to constructors. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]LLMFactory)}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLMChain builds the primary provider followed by every fallback, in
// configuration order. A fallback that fails to build is skipped and its
// error joined into the result; the primary failing is fatal.
func (r *Registry) CreateLLMChain(p ProvidersConfig) ([]NamedLLM, error) {
	primary, err := r.CreateLLM(p.LLM)
	if err != nil {
		return nil, fmt.Errorf("config: primary llm: %w", err)
	}
	chain := []NamedLLM{{Name: p.LLM.label(), Provider: primary}}
	var errs []error
	for i, fb := range p.Fallbacks {
		prov, err := r.CreateLLM(fb)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: fallback %d (%s): %w", i, fb.Name, err))
			continue
		}
		chain = append(chain, NamedLLM{Name: fb.label(), Provider: prov})
	}
	return chain, errors.Join(errs...)
}

// NamedLLM is a built provider labelled "name/model" for logs and breakers.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

func (e ProviderEntry) label() string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// LLMNames returns the registered LLM provider names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llm))
	for n := range r.llm {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
