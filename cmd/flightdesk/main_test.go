package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightdesk/internal/adapter/llm"
	"flightdesk/internal/infra/config"
	"flightdesk/internal/infra/logger"
)

// syncBuffer guards a bytes.Buffer written from a server goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "flightdesk.yaml")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "flightdesk dev\n", out.String())
}

func TestRunWithoutProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"run", "--config", missingConfig(t)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no llm providers configured")
}

func TestRunUnreachableToolProvider(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FLIGHTDESK_LOGGER_LEVEL", "error")
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--config", missingConfig(t), "--mcp-url", "ws://" + addr})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool provider unavailable")
	assert.Empty(t, out.String(), "nothing was built, nothing is printed")
}

func TestRunRejectsBadMCPURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"run", "--config", missingConfig(t), "--mcp-url", "http://localhost:8090"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must use ws:// or wss://")
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groupchat:\n  max_rounds: 5\n"), 0o600))
	t.Setenv("FLIGHTDESK_CONFIG", path)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.GroupChat.MaxRounds)
	assert.Equal(t, config.DefaultSeedMessage, cfg.GroupChat.SeedMessage)
}

func TestInitLLM(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Providers = []config.ProviderConfig{
		{Name: "openai", Type: "openai", APIKey: "k1"},
		{Name: "backup", APIKey: "k2"},
	}
	cfg.LLM.Fallbacks = []string{"backup"}
	cfg.LLM.CircuitBreaker = config.CircuitBreakerConfig{Enabled: true, MaxFailures: 3}

	reg, err := initLLM(cfg, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "openai"}, reg.List())

	def, err := reg.Get("openai")
	require.NoError(t, err)
	assert.IsType(t, &llm.FailoverProvider{}, def)

	backup, err := reg.Get("backup")
	require.NoError(t, err)
	assert.IsType(t, &llm.CircuitBreakerProvider{}, backup)
}

func TestInitLLMUnknownManager(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai", APIKey: "k"}}
	cfg.LLM.ManagerProvider = "router"

	_, err := initLLM(cfg, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager llm provider")
}

func TestCreateLLMProviderRejectsUnknownType(t *testing.T) {
	_, err := createLLMProvider(config.ProviderConfig{Name: "x", Type: "bedrock"}, logger.Discard())
	assert.ErrorContains(t, err, `unsupported provider type "bedrock"`)
}

func TestServeTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serveTools(ctx, config.ToolServerConfig{Addr: "127.0.0.1:0"}, logger.Discard(), out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "travel tools listening on ws://127.0.0.1:")
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serveTools did not stop")
	}
}

func TestServeToolsBadAddr(t *testing.T) {
	err := serveTools(context.Background(), config.ToolServerConfig{Addr: "256.0.0.1:99999"}, logger.Discard(), &syncBuffer{})
	assert.ErrorContains(t, err, "tool server listen")
}
