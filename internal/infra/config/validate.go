package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateMCP(cfg, ve)
	validateLLM(cfg, ve)
	validateAgent(cfg, ve)
	validateGroupChat(cfg, ve)
	validateTools(cfg, ve)
	validateToolServer(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateMCP(cfg *Config, ve *ValidationError) {
	u, err := url.Parse(cfg.MCP.URL)
	switch {
	case cfg.MCP.URL == "":
		ve.Add("mcp.url must not be empty")
	case err != nil:
		ve.Add("mcp.url %q is invalid: %v", cfg.MCP.URL, err)
	case u.Scheme != "ws" && u.Scheme != "wss":
		ve.Add("mcp.url %q must use ws:// or wss://", cfg.MCP.URL)
	case u.Host == "":
		ve.Add("mcp.url %q has no host", cfg.MCP.URL)
	}
	if cfg.MCP.ConnectTimeout <= 0 {
		ve.Add("mcp.connect_timeout must be > 0")
	}
	if cfg.MCP.CallTimeout <= 0 {
		ve.Add("mcp.call_timeout must be > 0")
	}
	if cfg.MCP.ReadLimit < 0 {
		ve.Add("mcp.read_limit must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai)", i, p.Type)
		}
		if p.APIKey == "" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via %sLLM_PROVIDER_%s_API_KEY)",
				i, p.Name, EnvPrefix, strings.ToUpper(p.Name))
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.ManagerProvider != "" && !seen[cfg.LLM.ManagerProvider] {
		ve.Add("llm.manager_provider %q does not match any configured provider", cfg.LLM.ManagerProvider)
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if !seen[fb] {
			ve.Add("llm.fallbacks[%d] %q does not match any configured provider", i, fb)
		}
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled && cb.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if cfg.Agent.MaxHistory < 0 {
		ve.Add("agent.max_history must be >= 0")
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		ve.Add("agent.temperature must be within [0, 2]")
	}
}

func validateGroupChat(cfg *Config, ve *ValidationError) {
	gc := cfg.GroupChat
	if gc.MaxRounds <= 0 {
		ve.Add("groupchat.max_rounds must be > 0")
	}
	if strings.TrimSpace(gc.SeedMessage) == "" {
		ve.Add("groupchat.seed_message must not be empty")
	}
	if strings.TrimSpace(gc.TerminateKeyword) == "" {
		ve.Add("groupchat.terminate_keyword must not be empty")
	}
	if gc.Initiator == "" {
		ve.Add("groupchat.initiator must not be empty")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	rl := cfg.Tools.RateLimit
	if !rl.Enabled {
		return
	}
	if rl.PerSecond <= 0 {
		ve.Add("tools.rate_limit.per_second must be > 0 when enabled")
	}
	if rl.Burst <= 0 {
		ve.Add("tools.rate_limit.burst must be > 0 when enabled")
	}
}

func validateToolServer(cfg *Config, ve *ValidationError) {
	if cfg.ToolServer.Addr == "" {
		ve.Add("tool_server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.ToolServer.Addr); err != nil {
		ve.Add("tool_server.addr %q is invalid: %v", cfg.ToolServer.Addr, err)
	}
	if cfg.ToolServer.ConnectionsPerMinute < 0 || cfg.ToolServer.ConnectionBurst < 0 {
		ve.Add("tool_server connection limits must be >= 0")
	}
	if cfg.ToolServer.Path != "" && !strings.HasPrefix(cfg.ToolServer.Path, "/") {
		ve.Add("tool_server.path %q must start with /", cfg.ToolServer.Path)
	}
}

var validLogFormats = map[string]bool{"": true, "text": true, "json": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}
