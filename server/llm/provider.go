package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderAnthropic  Provider = "anthropic"
)

const (
	defaultOpenAIBase     = "https://api.openai.com/v1"
	defaultOpenRouterBase = "https://openrouter.ai/api/v1"
	defaultAnthropicBase  = "https://api.anthropic.com/v1"
	anthropicVersion      = "2023-06-01"
	defaultTimeout        = 45 * time.Second
)

// Config describes one remote model endpoint. Resolve fills the gaps.
type Config struct {
	Provider     Provider
	Model        string
	APIKey       string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	Organization string
	SiteURL      string
	Title        string
	Temperature  *float64
	Timeout      time.Duration
	ExtraHeaders map[string]string
}

// Resolve validates cfg and applies provider defaults.
func Resolve(cfg Config) (Config, error) {
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)

	provider := Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider))))
	if provider == "" {
		provider = DetectProvider(cfg.Model, cfg.BaseURL)
	}
	switch provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic:
	default:
		return Config{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	cfg.Provider = provider

	if cfg.Model == "" {
		return Config{}, errors.New("model missing")
	}
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("API key missing for %s model %s", cfg.Provider, cfg.Model)
	}

	if cfg.BaseURL == "" {
		switch cfg.Provider {
		case ProviderOpenRouter:
			cfg.BaseURL = defaultOpenRouterBase
		case ProviderAnthropic:
			cfg.BaseURL = defaultAnthropicBase
		default:
			cfg.BaseURL = defaultOpenAIBase
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.HeaderName == "" {
		if cfg.Provider == ProviderAnthropic {
			cfg.HeaderName = "x-api-key"
		} else {
			cfg.HeaderName = "Authorization"
		}
	}
	if cfg.HeaderName == "Authorization" && strings.TrimSpace(cfg.HeaderPrefix) == "" {
		cfg.HeaderPrefix = "Bearer "
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	extra := make(map[string]string, len(cfg.ExtraHeaders)+3)
	for k, v := range cfg.ExtraHeaders {
		extra[k] = v
	}
	if cfg.Provider == ProviderOpenRouter {
		site := coalesce(cfg.SiteURL, "https://github.com/rps-thunderdome")
		extra["HTTP-Referer"] = site
		extra["Referer"] = site
		extra["X-Title"] = coalesce(cfg.Title, "RPS Thunderdome")
	}
	if cfg.Provider == ProviderAnthropic {
		extra["anthropic-version"] = anthropicVersion
	}
	cfg.ExtraHeaders = extra
	return cfg, nil
}

// DetectProvider guesses the provider from the model name and base URL.
func DetectProvider(model, base string) Provider {
	m := strings.ToLower(model)
	b := strings.ToLower(base)
	switch {
	case strings.Contains(b, "openrouter") || strings.HasPrefix(m, "openrouter/"):
		return ProviderOpenRouter
	case strings.Contains(b, "anthropic") || strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	default:
		return ProviderOpenAI
	}
}

// Label returns a vendor label for reporting.
func (c Config) Label() string {
	switch c.Provider {
	case ProviderOpenRouter:
		return "OpenRouter"
	case ProviderAnthropic:
		return "Anthropic"
	}
	base := strings.ToLower(c.BaseURL)
	switch {
	case base == "" || strings.Contains(base, "openai"):
		return "OpenAI"
	case strings.Contains(base, "together"):
		return "Together"
	case strings.Contains(base, "groq"):
		return "Groq"
	case strings.Contains(base, "azure"):
		return "Azure OpenAI"
	case strings.Contains(base, "mistral"):
		return "Mistral"
	default:
		return "LLM"
	}
}

func coalesce(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
