package config

import (
	"errors"
	"strings"
	"testing"
)

func validProviders() []ProviderConfig {
	return []ProviderConfig{{Name: "openai", Type: "openai", APIKey: "sk", Model: "gpt-4"}}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Validate(Defaults()): %v", err)
	}
}

func TestValidateConfiguredProvidersPass(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = validProviders()
	cfg.LLM.CircuitBreaker = CircuitBreakerConfig{Enabled: true, MaxFailures: 3}
	cfg.Tools.RateLimit.Enabled = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty mcp url", func(c *Config) { c.MCP.URL = "" }, "mcp.url must not be empty"},
		{"http mcp url", func(c *Config) { c.MCP.URL = "http://localhost:8090" }, "must use ws:// or wss://"},
		{"hostless mcp url", func(c *Config) { c.MCP.URL = "ws://" }, "has no host"},
		{"zero connect timeout", func(c *Config) { c.MCP.ConnectTimeout = 0 }, "mcp.connect_timeout"},
		{"zero call timeout", func(c *Config) { c.MCP.CallTimeout = 0 }, "mcp.call_timeout"},
		{"negative read limit", func(c *Config) { c.MCP.ReadLimit = -1 }, "mcp.read_limit"},
		{"empty default provider", func(c *Config) { c.LLM.DefaultProvider = "" }, "llm.default_provider must not be empty"},
		{"unknown provider type", func(c *Config) {
			c.LLM.Providers = validProviders()
			c.LLM.Providers[0].Type = "bedrock"
		}, `type "bedrock" is invalid`},
		{"duplicate provider", func(c *Config) {
			c.LLM.Providers = append(validProviders(), validProviders()...)
		}, "duplicate provider name"},
		{"missing api key", func(c *Config) {
			c.LLM.Providers = validProviders()
			c.LLM.Providers[0].APIKey = ""
		}, "FLIGHTDESK_LLM_PROVIDER_OPENAI_API_KEY"},
		{"default not configured", func(c *Config) {
			c.LLM.Providers = validProviders()
			c.LLM.DefaultProvider = "azure"
		}, `default_provider "azure" does not match`},
		{"manager not configured", func(c *Config) {
			c.LLM.Providers = validProviders()
			c.LLM.ManagerProvider = "cheap"
		}, `manager_provider "cheap" does not match`},
		{"unknown fallback", func(c *Config) {
			c.LLM.Providers = validProviders()
			c.LLM.Fallbacks = []string{"groq"}
		}, `fallbacks[0] "groq"`},
		{"breaker without failures", func(c *Config) {
			c.LLM.Providers = validProviders()
			c.LLM.CircuitBreaker.Enabled = true
		}, "max_failures"},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "agent.max_iterations"},
		{"negative history", func(c *Config) { c.Agent.MaxHistory = -1 }, "agent.max_history"},
		{"temperature too high", func(c *Config) { c.Agent.Temperature = 2.5 }, "agent.temperature"},
		{"zero rounds", func(c *Config) { c.GroupChat.MaxRounds = 0 }, "groupchat.max_rounds"},
		{"blank seed", func(c *Config) { c.GroupChat.SeedMessage = "   " }, "groupchat.seed_message"},
		{"blank keyword", func(c *Config) { c.GroupChat.TerminateKeyword = "" }, "groupchat.terminate_keyword"},
		{"no initiator", func(c *Config) { c.GroupChat.Initiator = "" }, "groupchat.initiator"},
		{"rate limit without rate", func(c *Config) {
			c.Tools.RateLimit = RateLimitConfig{Enabled: true, Burst: 1}
		}, "per_second"},
		{"rate limit without burst", func(c *Config) {
			c.Tools.RateLimit = RateLimitConfig{Enabled: true, PerSecond: 1}
		}, "burst"},
		{"empty server addr", func(c *Config) { c.ToolServer.Addr = "" }, "tool_server.addr must not be empty"},
		{"bad server addr", func(c *Config) { c.ToolServer.Addr = "8090" }, `tool_server.addr "8090" is invalid`},
		{"relative server path", func(c *Config) { c.ToolServer.Path = "mcp" }, "must start with /"},
		{"negative connection limit", func(c *Config) { c.ToolServer.ConnectionsPerMinute = -1 }, "connection limits must be >= 0"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateDisabledRateLimitSkipsChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.RateLimit = RateLimitConfig{Enabled: false}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.MCP.URL = ""
	cfg.GroupChat.MaxRounds = -1
	cfg.Agent.MaxIterations = 0

	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("empty ValidationError reports errors")
	}
	ve.Add("first %d", 1)
	ve.Add("second")
	want := "config validation failed:\n  - first 1\n  - second"
	if ve.Error() != want {
		t.Errorf("Error() = %q, want %q", ve.Error(), want)
	}
}
