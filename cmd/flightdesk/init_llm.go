package main

import (
	"errors"
	"fmt"
	"log/slog"

	"flightdesk/internal/adapter/llm"
	"flightdesk/internal/domain"
	"flightdesk/internal/infra/config"
)

// initLLM registers every configured provider, decorated with the circuit
// breaker when enabled, and wraps the default provider with failover.
func initLLM(cfg *config.Config, log *slog.Logger) (*llm.Registry, error) {
	if len(cfg.LLM.Providers) == 0 {
		return nil, errors.New("no llm providers configured (set OPENAI_API_KEY or llm.providers)")
	}

	// 1. Create LLM registry
	registry := llm.NewRegistry()

	// 2. Register all configured providers
	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		// Wrap with circuit breaker if enabled (per-provider).
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
				MaxFailures: cbCfg.MaxFailures,
				Timeout:     cbCfg.Timeout,
				Interval:    cbCfg.Interval,
			}, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	// 3. Check the default and manager providers resolve
	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}
	if _, err := registry.Get(cfg.ManagerProvider()); err != nil {
		return nil, fmt.Errorf("manager llm provider: %w", err)
	}

	// 4. Wrap the default with failover
	if len(cfg.LLM.Fallbacks) > 0 {
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.LLM.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		failover := llm.NewFailoverProvider(defaultLLM, fallbacks, log)
		if err := registry.Replace(cfg.LLM.DefaultProvider, failover); err != nil {
			return nil, err
		}
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Fallbacks)
	}

	return registry, nil
}

func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "", "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", pc.Type)
	}
}
