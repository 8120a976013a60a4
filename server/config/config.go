// Package config reads runtime settings from the environment into one
// explicit struct. Nothing else in the module reads env after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"rps-thunderdome/server/agent"
	"rps-thunderdome/server/llm"
)

// Player is one side of a match.
type Player struct {
	Name     string `env:"NAME"`
	Provider string `env:"PROVIDER"`
	Model    string `env:"MODEL"`
	APIKey   string `env:"API_KEY"`
	BaseURL  string `env:"BASE_URL"`
}

type Protocol struct {
	Variant         string        `env:"VARIANT" envDefault:"structured"`
	Revise          bool          `env:"REVISE" envDefault:"true"`
	ChatProbability float64       `env:"CHAT_PROBABILITY" envDefault:"0.5"`
	CallTimeout     time.Duration `env:"CALL_TIMEOUT" envDefault:"40s"`
	MoveTokens      int           `env:"MOVE_TOKENS" envDefault:"10"`
	ReasoningTokens int           `env:"REASONING_TOKENS" envDefault:"300"`
	ChatTokens      int           `env:"CHAT_TOKENS" envDefault:"100"`
	DecisionTokens  int           `env:"DECISION_TOKENS" envDefault:"400"`
}

type Config struct {
	Rounds   int      `env:"ROUNDS" envDefault:"10"`
	Seed     int64    `env:"SEED"`
	Protocol Protocol `envPrefix:"PROTOCOL_"`

	PlayerA Player `envPrefix:"PLAYER_A_"`
	PlayerB Player `envPrefix:"PLAYER_B_"`

	// Series mode: every pair of models plays one match.
	Models            []string `env:"MODELS" envSeparator:","`
	SeriesParallelism int      `env:"SERIES_PARALLELISM" envDefault:"2"`

	OpenAIKey     string        `env:"OPENAI_API_KEY"`
	AnthropicKey  string        `env:"ANTHROPIC_API_KEY"`
	OpenRouterKey string        `env:"OPENROUTER_API_KEY"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"45s"`

	LogDir      string `env:"LOG_DIR" envDefault:"log"`
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE"`
	Port        string `env:"PORT" envDefault:"8080"`

	EloStart float64 `env:"ELO_START" envDefault:"1500"`
	EloK     float64 `env:"ELO_K" envDefault:"24"`

	Debug    bool   `env:"DEBUG"`
	NoColor  string `env:"NO_COLOR"`
	UseColor string `env:"USE_COLOR"`
}

var (
	defaultA = Player{Name: "GPT-4o", Provider: "openai", Model: "gpt-4o-2024-08-06"}
	defaultB = Player{Name: "Claude Sonnet 3.5", Provider: "anthropic", Model: "claude-3-5-sonnet-20240620"}
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and fills player defaults. Callers apply
// their own overrides and then call Validate.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.PlayerA = withPlayerDefaults(cfg.PlayerA, defaultA)
	cfg.PlayerB = withPlayerDefaults(cfg.PlayerB, defaultB)
	cfg.Models = compact(cfg.Models)
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Rounds <= 0 {
		return fmt.Errorf("ROUNDS must be > 0, got %d", c.Rounds)
	}
	switch agent.Variant(c.Protocol.Variant) {
	case agent.VariantStructured, agent.VariantLegacy:
	default:
		return fmt.Errorf("PROTOCOL_VARIANT must be structured or legacy, got %q", c.Protocol.Variant)
	}
	if c.Protocol.ChatProbability < 0 || c.Protocol.ChatProbability > 1 {
		return fmt.Errorf("PROTOCOL_CHAT_PROBABILITY must be in [0,1], got %v", c.Protocol.ChatProbability)
	}
	if strings.EqualFold(c.PlayerA.Name, c.PlayerB.Name) {
		return errors.New("PLAYER_A_NAME and PLAYER_B_NAME must differ")
	}
	if c.SeriesParallelism <= 0 {
		return fmt.Errorf("SERIES_PARALLELISM must be > 0, got %d", c.SeriesParallelism)
	}
	return nil
}

// ColorEnabled honors NO_COLOR (any value) and USE_COLOR=0.
func (c Config) ColorEnabled() bool {
	return c.NoColor == "" && strings.TrimSpace(c.UseColor) != "0"
}

func (c Config) AgentProtocol() agent.Protocol {
	return agent.Protocol{
		Variant:         agent.Variant(c.Protocol.Variant),
		Revise:          c.Protocol.Revise,
		ChatProbability: c.Protocol.ChatProbability,
		NoChat:          c.Protocol.ChatProbability == 0,
		CallTimeout:     c.Protocol.CallTimeout,
		MoveTokens:      c.Protocol.MoveTokens,
		ReasoningTokens: c.Protocol.ReasoningTokens,
		ChatTokens:      c.Protocol.ChatTokens,
		DecisionTokens:  c.Protocol.DecisionTokens,
	}
}

// LLM builds the resolved endpoint config for p. A player without its own
// key borrows the shared key of its provider.
func (c Config) LLM(p Player) (llm.Config, error) {
	provider := llm.Provider(strings.ToLower(strings.TrimSpace(p.Provider)))
	if provider == "" {
		provider = llm.DetectProvider(p.Model, p.BaseURL)
	}
	key := p.APIKey
	if strings.TrimSpace(key) == "" {
		switch provider {
		case llm.ProviderAnthropic:
			key = c.AnthropicKey
		case llm.ProviderOpenRouter:
			key = c.OpenRouterKey
		default:
			key = c.OpenAIKey
		}
	}
	return llm.Resolve(llm.Config{
		Provider: provider,
		Model:    p.Model,
		APIKey:   key,
		BaseURL:  p.BaseURL,
		Timeout:  c.LLMTimeout,
	})
}

// SeriesPlayers turns MODELS into players named after their model.
func (c Config) SeriesPlayers() []Player {
	out := make([]Player, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, Player{Name: m, Model: m})
	}
	return out
}

func withPlayerDefaults(p, def Player) Player {
	if strings.TrimSpace(p.Model) == "" {
		p.Model = def.Model
		if p.Provider == "" {
			p.Provider = def.Provider
		}
	}
	if strings.TrimSpace(p.Name) == "" {
		if p.Model == def.Model {
			p.Name = def.Name
		} else {
			p.Name = p.Model
		}
	}
	return p
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadAPIKeysFromSecrets fills unset *_API_KEY variables from *_API_KEY_FILE
// or the usual secret mount paths.
func LoadAPIKeysFromSecrets() {
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		loadAPIKeyFromSecret(name)
	}
}

func loadAPIKeyFromSecret(name string) {
	if os.Getenv(name) != "" {
		return
	}
	file := strings.ToLower(name)
	var candidates []string
	if p := os.Getenv(name + "_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/"+file+".txt",
		"./server/"+file+".txt",
		"./"+file+".txt",
		"/run/secrets/"+file,
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			key := strings.TrimSpace(string(b))
			if key != "" {
				os.Setenv(name, key)
				return
			}
		}
	}
}
