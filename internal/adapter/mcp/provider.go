// Package mcp connects to the remote tool provider over WebSocket and exposes
// its tools as domain tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"flightdesk/internal/adapter/tool"
	"flightdesk/internal/domain"
	"flightdesk/internal/infra/config"
)

// mcpClient abstracts the MCP client for testability.
type mcpClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ToolProvider is an open session with the remote tool provider.
type ToolProvider struct {
	client    mcpClient
	tools     []domain.Tool
	set       *tool.Registry
	server    mcp.Implementation
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// Option configures Connect.
type Option func(*connectOptions)

type connectOptions struct {
	transportOpts []TransportOption
	registryOpts  []tool.RegistryOption
	newClient     func(cfg config.MCPConfig, opts []TransportOption) (mcpClient, func(context.Context) error)
}

// WithTransportOptions passes extra options to the WebSocket transport.
func WithTransportOptions(opts ...TransportOption) Option {
	return func(o *connectOptions) { o.transportOpts = append(o.transportOpts, opts...) }
}

// WithRegistryOptions decorates the session's tool set, e.g. with
// validation or rate limiting.
func WithRegistryOptions(opts ...tool.RegistryOption) Option {
	return func(o *connectOptions) { o.registryOpts = append(o.registryOpts, opts...) }
}

func newWebSocketClient(cfg config.MCPConfig, opts []TransportOption) (mcpClient, func(context.Context) error) {
	t := NewWebSocketTransport(cfg.URL, append([]TransportOption{WithReadLimit(cfg.ReadLimit)}, opts...)...)
	c := mcpclient.NewClient(t)
	return c, c.Start
}

// Connect dials cfg.URL, performs the MCP handshake and lists the provider's
// tools. Any failure closes the connection and wraps
// domain.ErrToolProviderUnavailable; an empty listing returns domain.ErrNoTools.
func Connect(ctx context.Context, cfg config.MCPConfig, logger *slog.Logger, opts ...Option) (*ToolProvider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := connectOptions{newClient: newWebSocketClient}
	for _, opt := range opts {
		opt(&o)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, start := o.newClient(cfg, append([]TransportOption{WithLogger(logger)}, o.transportOpts...))
	if err := start(connectCtx); err != nil {
		_ = client.Close()
		return nil, unavailable(cfg.URL, "connect", err)
	}

	p, err := handshake(connectCtx, client, cfg, logger, o.registryOpts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("tool provider connected",
		"url", cfg.URL,
		"server", p.server.Name,
		"tools", len(p.tools))
	return p, nil
}

func handshake(ctx context.Context, client mcpClient, cfg config.MCPConfig, logger *slog.Logger, regOpts []tool.RegistryOption) (*ToolProvider, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    orDefault(cfg.ClientName, "flightdesk"),
		Version: orDefault(cfg.ClientVersion, "1.0.0"),
	}
	initRes, err := client.Initialize(ctx, initReq)
	if err != nil {
		return nil, unavailable(cfg.URL, "initialize", err)
	}

	listed, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, unavailable(cfg.URL, "list tools", err)
	}
	if len(listed.Tools) == 0 {
		return nil, domain.NewSubSystemError("mcp", "Connect", domain.ErrNoTools, cfg.URL)
	}

	set := tool.NewRegistry(logger, regOpts...)
	tools := make([]domain.Tool, 0, len(listed.Tools))
	for _, def := range listed.Tools {
		rt := newRemoteTool(client, def, cfg.CallTimeout, logger)
		if err := set.Register(rt); err != nil {
			return nil, unavailable(cfg.URL, "register tools", err)
		}
		tools = append(tools, rt)
		logger.Debug("remote tool discovered", "tool", def.Name)
	}

	return &ToolProvider{
		client: client,
		tools:  tools,
		set:    set,
		server: initRes.ServerInfo,
		logger: logger,
	}, nil
}

func unavailable(url, step string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrToolProviderUnavailable, step, url, err)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Tools returns the provider's tools in listing order.
func (p *ToolProvider) Tools() []domain.Tool {
	out := make([]domain.Tool, len(p.tools))
	copy(out, p.tools)
	return out
}

// ToolSet returns the session's tool set. Every call returns the same instance.
func (p *ToolProvider) ToolSet() domain.ToolExecutor { return p.set }

// ServerInfo reports the name and version the provider announced.
func (p *ToolProvider) ServerInfo() mcp.Implementation { return p.server }

// Close ends the session. Tools obtained from this provider stop working.
func (p *ToolProvider) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.client.Close()
		p.logger.Info("tool provider disconnected", "server", p.server.Name)
	})
	return p.closeErr
}
