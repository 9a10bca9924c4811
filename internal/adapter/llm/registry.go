package llm

import (
	"fmt"
	"slices"
	"sync"

	"flightdesk/internal/domain"
)

// Registry holds named LLM providers and implements domain.ProviderResolver.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider under its own name.
func (r *Registry) Register(provider domain.LLMProvider) error {
	return r.RegisterAs(provider.Name(), provider)
}

// RegisterAs adds a provider under name, which may differ from provider.Name()
// when a decorator wraps it.
func (r *Registry) RegisterAs(name string, provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Replace swaps the provider registered under name, typically for a
// decorated version of it.
func (r *Registry) Replace(name string, provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return domain.NewDomainError("Registry.Replace", domain.ErrProviderNotFound, name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var _ domain.ProviderResolver = (*Registry)(nil)
