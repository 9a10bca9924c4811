package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"flightdesk/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLIGHTDESK_"

// DefaultSeedMessage is the request the initiator opens the conversation with.
const DefaultSeedMessage = "I want to book a flight from New York to London on April 20, and I prefer an aisle seat."

// Config is the top-level application configuration.
type Config struct {
	Includes   []string         `yaml:"includes"`
	MCP        MCPConfig        `yaml:"mcp"`
	LLM        LLMConfig        `yaml:"llm"`
	Agent      AgentConfig      `yaml:"agent"`
	GroupChat  GroupChatConfig  `yaml:"groupchat"`
	Tools      ToolsConfig      `yaml:"tools"`
	ToolServer ToolServerConfig `yaml:"tool_server"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// MCPConfig configures the connection to the remote tool provider.
type MCPConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	ClientName     string        `yaml:"client_name"`
	ClientVersion  string        `yaml:"client_version"`
	ReadLimit      int64         `yaml:"read_limit"` // max bytes per WebSocket frame
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	ManagerProvider string               `yaml:"manager_provider"` // empty = default_provider
	Fallbacks       []string             `yaml:"fallbacks"`        // tried in order when a provider fails
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// AgentConfig holds settings shared by every conversational agent.
type AgentConfig struct {
	Model         string  `yaml:"model"` // empty = provider's model
	MaxIterations int     `yaml:"max_iterations"`
	MaxHistory    int     `yaml:"max_history"`
	Temperature   float64 `yaml:"temperature"`
}

// GroupChatConfig holds the conversation topology settings.
type GroupChatConfig struct {
	MaxRounds        int    `yaml:"max_rounds"`
	SeedMessage      string `yaml:"seed_message"`
	TerminateKeyword string `yaml:"terminate_keyword"`
	Initiator        string `yaml:"initiator"`
}

// ToolsConfig holds decorators applied to every remote tool.
type ToolsConfig struct {
	ValidateSchemas bool            `yaml:"validate_schemas"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles tool invocations per agent.
type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// ToolServerConfig configures the bundled demo tool provider.
type ToolServerConfig struct {
	Addr           string   `yaml:"addr"`
	Path           string   `yaml:"path"`
	OriginPatterns []string `yaml:"origin_patterns"`
	// Per client IP; 0 disables the limit.
	ConnectionsPerMinute int `yaml:"connections_per_minute"`
	ConnectionBurst      int `yaml:"connection_burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"`
	ServiceName string `yaml:"service_name"`
}

// DefaultOriginPatterns allows WebSocket upgrades from localhost only.
func DefaultOriginPatterns() []string {
	return []string{
		"localhost", "localhost:*",
		"127.0.0.1", "127.0.0.1:*",
		"[::1]", "[::1]:*",
	}
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		MCP: MCPConfig{
			URL:            "ws://localhost:8090",
			ConnectTimeout: 10 * time.Second,
			CallTimeout:    30 * time.Second,
			ClientName:     "flightdesk",
			ClientVersion:  "1.0.0",
			ReadLimit:      1 << 20,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			MaxHistory:    50,
		},
		GroupChat: GroupChatConfig{
			MaxRounds:        8,
			SeedMessage:      DefaultSeedMessage,
			TerminateKeyword: "TERMINATE",
			Initiator:        "TriageAgent",
		},
		Tools: ToolsConfig{
			ValidateSchemas: true,
			RateLimit: RateLimitConfig{
				Enabled:   false,
				PerSecond: 5,
				Burst:     5,
			},
		},
		ToolServer: ToolServerConfig{
			Addr:                 ":8090",
			Path:                 "/",
			OriginPatterns:       DefaultOriginPatterns(),
			ConnectionsPerMinute: 60,
			ConnectionBurst:      10,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			ServiceName: "flightdesk",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: read config: %w", domain.ErrConfigLoad, err)
		}
	} else {
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
		}
		if includes := cfg.Includes; len(includes) > 0 {
			cfg.Includes = nil
			if err := newIncludeWalker(path).apply(cfg, includes, filepath.Dir(path), 0); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
			}
			// The including file wins over anything it pulled in.
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
			}
			cfg.Includes = nil
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(EnvPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps FLIGHTDESK_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "MCP_URL"); v != "" {
		cfg.MCP.URL = v
	}
	if v := os.Getenv(EnvPrefix + "MCP_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MCP.ConnectTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "MCP_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MCP.CallTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv(EnvPrefix + "LLM_MANAGER_PROVIDER"); v != "" {
		cfg.LLM.ManagerProvider = v
	}
	if v := os.Getenv(EnvPrefix + "AGENT_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv(EnvPrefix + "AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv(EnvPrefix + "GROUPCHAT_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GroupChat.MaxRounds = n
		}
	}
	if v := os.Getenv(EnvPrefix + "GROUPCHAT_SEED_MESSAGE"); v != "" {
		cfg.GroupChat.SeedMessage = v
	}
	if v := os.Getenv(EnvPrefix + "TOOLS_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Tools.RateLimit.Enabled = v == "true"
	}
	if v := os.Getenv(EnvPrefix + "TOOL_SERVER_ADDR"); v != "" {
		cfg.ToolServer.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(EnvPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv(EnvPrefix + "TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Quick start: a bare OPENAI_API_KEY configures the default provider.
	if len(cfg.LLM.Providers) == 0 {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
				Name:    cfg.LLM.DefaultProvider,
				Type:    "openai",
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
				APIKey:  v,
				Model:   "gpt-4",
			})
		}
	}

	// Per-provider API key overrides: FLIGHTDESK_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("%sLLM_PROVIDER_%s_API_KEY", EnvPrefix,
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// ManagerProvider returns the provider name the speaker selector uses.
func (c *Config) ManagerProvider() string {
	if c.LLM.ManagerProvider != "" {
		return c.LLM.ManagerProvider
	}
	return c.LLM.DefaultProvider
}

// Provider returns the named provider's settings.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// decryptSecrets finds "enc:..." values in provider API keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if !strings.HasPrefix(key, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %w", domain.ErrDecryption, err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %w", domain.ErrDecryption, err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDecryption, err)
	}

	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat config: %w", domain.ErrConfigLoad, err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("%w: config file %s has insecure permissions %o (want 0600 or 0644)",
			domain.ErrConfigLoad, path, mode)
	}
	return nil
}
