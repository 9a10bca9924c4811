package tool

import (
	"log/slog"
	"sync"

	"flightdesk/internal/domain"
)

// Registry holds named tools in registration order and implements
// domain.ToolExecutor. Decorators configured through options are applied
// to every tool on Register.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	tools    map[string]domain.Tool
	logger   *slog.Logger
	validate bool
	limiter  *RateLimiter
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithValidation wraps each registered tool with JSON Schema validation of
// its arguments. Tools whose schema does not compile are registered as-is.
func WithValidation() RegistryOption {
	return func(r *Registry) { r.validate = true }
}

// WithRateLimit throttles executions across all tools of the registry.
func WithRateLimit(perSecond float64, burst int) RegistryOption {
	return func(r *Registry) { r.limiter = NewRateLimiter(perSecond, burst) }
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool. Names are unique within a registry.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewSubSystemError("tool", "Registry.Register", domain.ErrDuplicate, name)
	}

	if r.validate {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
		} else {
			t = wrapped
		}
	}
	if r.limiter != nil {
		t = WithRateLimiter(t, r.limiter)
	}

	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schemas returns all tool schemas for LLM function-calling, in
// registration order so that requests are stable across turns.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}
