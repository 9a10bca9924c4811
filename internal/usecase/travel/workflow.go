package travel

import (
	"context"
	"log/slog"

	"flightdesk/internal/adapter/mcp"
	"flightdesk/internal/adapter/tool"
	"flightdesk/internal/domain"
	"flightdesk/internal/infra/config"
	"flightdesk/internal/usecase"
	"flightdesk/internal/usecase/groupchat"
)

// ToolSession is an open connection to a tool provider.
type ToolSession interface {
	ToolSet() domain.ToolExecutor
	Close() error
}

// ToolConnector opens a tool session.
type ToolConnector func(ctx context.Context) (ToolSession, error)

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the workflow logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithEventBus publishes agent and conversation events on bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(w *Workflow) { w.bus = bus }
}

// WithToolConnector replaces the MCP connection, mainly for tests.
func WithToolConnector(c ToolConnector) Option {
	return func(w *Workflow) { w.connect = c }
}

// Workflow runs one flight booking conversation per Run call.
type Workflow struct {
	cfg      *config.Config
	llms     domain.ProviderResolver
	logger   *slog.Logger
	bus      domain.EventBus
	connect  ToolConnector
	newSpecs func(tools domain.ToolExecutor, backend domain.Backend) []domain.AgentSpec
}

// NewWorkflow creates a workflow resolving agent backends through llms.
func NewWorkflow(cfg *config.Config, llms domain.ProviderResolver, opts ...Option) *Workflow {
	w := &Workflow{
		cfg:      cfg,
		llms:     llms,
		logger:   slog.New(slog.DiscardHandler),
		newSpecs: Agents,
	}
	w.connect = w.connectMCP
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// connectMCP opens the configured MCP endpoint with the configured tool
// decorators.
func (w *Workflow) connectMCP(ctx context.Context) (ToolSession, error) {
	var regOpts []tool.RegistryOption
	if w.cfg.Tools.ValidateSchemas {
		regOpts = append(regOpts, tool.WithValidation())
	}
	if rl := w.cfg.Tools.RateLimit; rl.Enabled {
		regOpts = append(regOpts, tool.WithRateLimit(rl.PerSecond, rl.Burst))
	}
	p, err := mcp.Connect(ctx, w.cfg.MCP, w.logger, mcp.WithRegistryOptions(regOpts...))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Backend returns the backend every agent uses.
func (w *Workflow) Backend() domain.Backend {
	return w.resolveBackend(w.cfg.LLM.DefaultProvider)
}

// ManagerBackend returns the backend the speaker selector uses. Without an
// explicit agent model, the model comes from the manager provider's own
// settings.
func (w *Workflow) ManagerBackend() domain.Backend {
	return w.resolveBackend(w.cfg.ManagerProvider())
}

func (w *Workflow) resolveBackend(provider string) domain.Backend {
	b := domain.Backend{Provider: provider, Model: w.cfg.Agent.Model}
	if b.Model == "" {
		if pc, ok := w.cfg.Provider(provider); ok {
			b.Model = pc.Model
		}
	}
	if b.Model == "" {
		b.Model = DefaultModel
	}
	return b
}

// Run connects to the tool provider, builds the agents and runs the
// conversation from seed. An empty seed uses the configured seed message.
// The tool session is closed before Run returns.
func (w *Workflow) Run(ctx context.Context, seed string) (*domain.ConversationResult, error) {
	if seed == "" {
		seed = w.cfg.GroupChat.SeedMessage
	}

	session, err := w.connect(ctx)
	if err != nil {
		return nil, domain.WrapOp("Workflow.Run", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			w.logger.Warn("close tool session", "error", err)
		}
	}()

	backend := w.Backend()
	specs := w.newSpecs(session.ToolSet(), backend)

	participants := make([]groupchat.Participant, 0, len(specs))
	for _, spec := range specs {
		agent, err := w.buildAgent(spec)
		if err != nil {
			return nil, domain.WrapOp("Workflow.Run", err)
		}
		participants = append(participants, agent)
	}

	manager, err := w.buildManager(participants)
	if err != nil {
		return nil, domain.WrapOp("Workflow.Run", err)
	}

	initiator := w.cfg.GroupChat.Initiator
	if initiator == "" {
		initiator = TriageAgentName
	}
	return manager.Run(ctx, initiator, seed)
}

func (w *Workflow) buildAgent(spec domain.AgentSpec) (*usecase.Agent, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	llm, err := w.llms.Get(spec.Backend.Provider)
	if err != nil {
		return nil, err
	}
	cb := usecase.NewContextBuilder(spec.SystemPrompt, spec.Backend.Model, w.cfg.Agent.MaxHistory)
	cb.SetTemperature(w.cfg.Agent.Temperature)
	return usecase.NewAgent(usecase.AgentDeps{
		Spec:           spec,
		LLM:            llm,
		ContextBuilder: cb,
		Logger:         w.logger,
		MaxIterations:  w.cfg.Agent.MaxIterations,
		Bus:            w.bus,
	}), nil
}

func (w *Workflow) buildManager(participants []groupchat.Participant) (*groupchat.Manager, error) {
	backend := w.ManagerBackend()
	managerLLM, err := w.llms.Get(backend.Provider)
	if err != nil {
		return nil, err
	}
	keyword := w.cfg.GroupChat.TerminateKeyword
	selector := groupchat.NewLLMSelector(managerLLM, backend.Model,
		groupchat.WithSelectorLogger(w.logger),
		groupchat.WithTerminateKeyword(keyword),
	)
	return groupchat.New(groupchat.Config{
		MaxRounds:        w.cfg.GroupChat.MaxRounds,
		TerminateKeyword: keyword,
	}, participants, selector,
		groupchat.WithLogger(w.logger),
		groupchat.WithEventBus(w.bus),
	)
}
