package llm

import (
	"fmt"
	"log/slog"
	"strings"
)

// Factory selects a configured provider per user preference, falling back to
// the service default.
type Factory struct {
	providers       map[string]Provider
	defaultProvider string
	logger          *slog.Logger
}

// FactoryConfig carries the credentials and model overrides for all backends.
type FactoryConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	DefaultProvider string
}

// NewFactory builds a factory over all known backends. Backends without
// credentials stay registered but refuse requests.
func NewFactory(cfg FactoryConfig, logger *slog.Logger) *Factory {
	defaultProvider := strings.ToLower(cfg.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = "anthropic"
	}

	providers := map[string]Provider{
		"anthropic": NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger),
		"openai":    NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger),
	}

	for name, p := range providers {
		logger.Info("Registered LLM provider", "provider", name, "configured", p.Configured())
	}

	return &Factory{
		providers:       providers,
		defaultProvider: defaultProvider,
		logger:          logger,
	}
}

// ForUser returns the provider matching the user's preference, or the default
// when the preference is empty or unknown. Unconfigured backends are an error.
func (f *Factory) ForUser(preference string) (Provider, error) {
	name := strings.ToLower(preference)
	if name == "" {
		name = f.defaultProvider
	}

	provider, ok := f.providers[name]
	if !ok {
		f.logger.Warn("Unknown LLM provider preference, using default", "preference", preference, "default", f.defaultProvider)
		provider, ok = f.providers[f.defaultProvider]
		if !ok {
			return nil, fmt.Errorf("default llm provider %q is not registered", f.defaultProvider)
		}
	}

	if !provider.Configured() {
		return nil, fmt.Errorf("llm provider %q is not configured", provider.Name())
	}
	return provider, nil
}

// Default returns the configured default provider.
func (f *Factory) Default() (Provider, error) {
	return f.ForUser("")
}
