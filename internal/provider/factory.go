package provider

import (
	"fmt"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"go.uber.org/zap"
)

// New builds a provider from its config entry.
func New(cfg config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	var p Provider
	switch cfg.Type {
	case "openai", "local", "":
		p = NewOpenAIProvider(cfg, logger)
	case "anthropic":
		p = NewAnthropicProvider(cfg, logger)
	case "gemini":
		p = NewGeminiProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
	return NewRateLimited(p, cfg.RateLimit, cfg.Burst), nil
}

// BuildRouter registers every configured provider and applies the planner
// and SQL role bindings. A non-empty apiKey fills in the key of the
// providers bound to those roles (the first provider when a role is
// unbound) when they have none. Fallback providers keep their own keys.
func BuildRouter(cfg *config.Config, apiKey string, logger *zap.Logger) (*Router, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("build router: %w", ErrNoProvider)
	}
	primaries := map[string]bool{cfg.Agent.Provider: true, cfg.SQL.Provider: true}
	if primaries[""] {
		primaries[cfg.Providers[0].ID] = true
	}

	router := NewRouter(logger)
	for _, pc := range cfg.Providers {
		if pc.APIKey == "" && apiKey != "" && primaries[pc.ID] {
			pc.APIKey = apiKey
		}
		p, err := New(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.ID, err)
		}
		router.Register(p)
	}

	bind := func(role, id string, fallbacks []string) error {
		if id != "" {
			if _, ok := router.GetProvider(id); !ok {
				return fmt.Errorf("%s provider %q is not configured", role, id)
			}
			router.Bind(role, id)
		}
		if len(fallbacks) > 0 {
			router.SetFallbacks(role, fallbacks)
		}
		return nil
	}
	if err := bind(RolePlanner, cfg.Agent.Provider, cfg.Agent.Fallbacks); err != nil {
		return nil, err
	}
	if err := bind(RoleSQL, cfg.SQL.Provider, cfg.SQL.Fallbacks); err != nil {
		return nil, err
	}
	return router, nil
}
