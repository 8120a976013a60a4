package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rps-thunderdome/server/engine"
)

// Oracle answers a prompt with free text. Implementations may fail or be slow.
type Oracle interface {
	Respond(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Rand is the random source used for fallback moves and chat rolls.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type Variant string

const (
	// VariantStructured asks for one JSON reply carrying rationale, chat and move.
	VariantStructured Variant = "structured"
	// VariantLegacy asks for reasoning, chat and move in three separate calls.
	VariantLegacy Variant = "legacy"
)

// ErrOracleTimeout is returned when a single oracle call exceeds CallTimeout.
var ErrOracleTimeout = errors.New("oracle call timed out")

// Decision is one agent's output for one round.
type Decision struct {
	Round       int         `json:"round"`
	Rationale   string      `json:"rationale"`
	Chat        string      `json:"chat,omitempty"`
	Move        engine.Move `json:"move"`
	Fallback    bool        `json:"fallback,omitempty"`
	RevisedFrom engine.Move `json:"revised_from,omitempty"`
}

// Protocol controls how decisions are requested from the oracle.
type Protocol struct {
	Variant Variant
	Revise  bool
	// ChatProbability is the legacy variant's chance of sending a chat
	// message; zero means the default. NoChat turns chat off.
	ChatProbability float64
	NoChat          bool
	CallTimeout     time.Duration

	MoveTokens      int
	ReasoningTokens int
	ChatTokens      int
	DecisionTokens  int
}

func DefaultProtocol() Protocol {
	return Protocol{
		Variant:         VariantStructured,
		Revise:          true,
		ChatProbability: 0.5,
		CallTimeout:     40 * time.Second,
		MoveTokens:      10,
		ReasoningTokens: 300,
		ChatTokens:      100,
		DecisionTokens:  400,
	}
}

func (p Protocol) withDefaults() Protocol {
	d := DefaultProtocol()
	if p.Variant == "" {
		p.Variant = d.Variant
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = d.CallTimeout
	}
	if p.MoveTokens <= 0 {
		p.MoveTokens = d.MoveTokens
	}
	if p.ReasoningTokens <= 0 {
		p.ReasoningTokens = d.ReasoningTokens
	}
	if p.ChatTokens <= 0 {
		p.ChatTokens = d.ChatTokens
	}
	if p.DecisionTokens <= 0 {
		p.DecisionTokens = d.DecisionTokens
	}
	switch {
	case p.NoChat:
		p.ChatProbability = 0
	case p.ChatProbability <= 0:
		p.ChatProbability = d.ChatProbability
	case p.ChatProbability > 1:
		p.ChatProbability = 1
	}
	return p
}

// State is the read-only view of an agent handed to the protocol.
type State struct {
	Name          string
	Round         int
	Decisions     []Decision
	OpponentMoves []engine.Move
	LastResult    string
	Scoreboard    engine.Standings
}

// ObtainDecision produces a valid decision for st. Only oracle failures are
// returned as errors; unusable replies resolve to a random fallback move.
func (p Protocol) ObtainDecision(ctx context.Context, oracle Oracle, rng Rand, st State, chat []engine.ChatLine, log *slog.Logger) (Decision, error) {
	p = p.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if p.Variant == VariantLegacy {
		return p.obtainLegacy(ctx, oracle, rng, st, log)
	}

	text, err := p.ask(ctx, oracle, renderDecisionPrompt(st, chat), p.DecisionTokens)
	if err != nil {
		return Decision{}, err
	}
	d, err := ParseDecision(text)
	if err != nil {
		log.Warn("unusable decision, using random move",
			"agent", st.Name, "round", st.Round, "err", err, "raw", truncate(text, 200))
		d = fallbackDecision(rng)
	}
	d.Round = st.Round
	return d, nil
}

func (p Protocol) obtainLegacy(ctx context.Context, oracle Oracle, rng Rand, st State, log *slog.Logger) (Decision, error) {
	thought, err := p.ask(ctx, oracle, renderThinkPrompt(st), p.ReasoningTokens)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Round: st.Round, Rationale: strings.TrimSpace(thought)}

	if rng.Float64() < p.ChatProbability {
		msg, err := p.ask(ctx, oracle, chatPrompt, p.ChatTokens)
		if err != nil {
			return Decision{}, err
		}
		d.Chat = strings.TrimSpace(msg)
	}

	raw, err := p.ask(ctx, oracle, renderGuessPrompt(d.Rationale), p.MoveTokens)
	if err != nil {
		return Decision{}, err
	}
	if m, ok := engine.ParseMove(raw); ok {
		d.Move = m
	} else {
		log.Warn("invalid move, using random move", "agent", st.Name, "round", st.Round, "raw", truncate(raw, 200))
		d.Move = randomMove(rng)
		d.Fallback = true
	}
	return d, nil
}

// ReviseMove offers the chance to change initial after reading the
// opponent's message. Anything other than a legal move keeps initial.
func (p Protocol) ReviseMove(ctx context.Context, oracle Oracle, initial engine.Move, opponentChat string) (engine.Move, error) {
	p = p.withDefaults()
	raw, err := p.ask(ctx, oracle, renderRevisePrompt(initial, opponentChat), p.MoveTokens)
	if err != nil {
		return initial, err
	}
	if m, ok := engine.ParseMove(raw); ok {
		return m, nil
	}
	return initial, nil
}

// ask bounds a single oracle call by CallTimeout, even if the oracle ignores
// its context.
func (p Protocol) ask(ctx context.Context, oracle Oracle, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("oracle panicked: %v", r)}
			}
		}()
		text, err := oracle.Respond(ctx, prompt, maxTokens)
		done <- reply{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrOracleTimeout, r.err)
			}
			return "", fmt.Errorf("oracle: %w", r.err)
		}
		return r.text, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrOracleTimeout, p.CallTimeout)
		}
		return "", ctx.Err()
	}
}

// ParseDecision decodes a structured reply with rationale, chat and move keys.
func ParseDecision(text string) (Decision, error) {
	raw := stripCodeFences(text)
	if raw == "" {
		return Decision{}, errors.New("empty response")
	}

	var fields map[string]any
	jsonErr := errors.New("no JSON object found")
	if obj := extractJSONObject(raw); obj != "" {
		jsonErr = json.Unmarshal([]byte(obj), &fields)
	}
	if jsonErr != nil {
		fields = nil
		if yerr := yaml.Unmarshal([]byte(raw), &fields); yerr != nil || fields == nil {
			return Decision{}, fmt.Errorf("bad structured reply: %w", jsonErr)
		}
	}

	// Exact lowercase keys win over case variants like "Move".
	norm := make(map[string]any, len(fields))
	for k, v := range fields {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, taken := norm[lk]; taken && k != lk {
			continue
		}
		norm[lk] = v
	}
	for _, key := range []string{"rationale", "chat", "move"} {
		if _, ok := norm[key]; !ok {
			return Decision{}, fmt.Errorf("missing field %q", key)
		}
	}

	rationale, ok := optString(norm["rationale"])
	if !ok {
		return Decision{}, errors.New("rationale is not text")
	}
	chat, ok := optString(norm["chat"])
	if !ok {
		return Decision{}, errors.New("chat is not text")
	}
	mv, _ := norm["move"].(string)
	move, ok := engine.ParseMove(mv)
	if !ok {
		return Decision{}, fmt.Errorf("illegal move %v", norm["move"])
	}
	return Decision{
		Rationale: strings.TrimSpace(rationale),
		Chat:      strings.TrimSpace(chat),
		Move:      move,
	}, nil
}

func optString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	default:
		return "", false
	}
}

func fallbackDecision(rng Rand) Decision {
	return Decision{Move: randomMove(rng), Fallback: true}
}

func randomMove(rng Rand) engine.Move {
	return engine.Moves[rng.Intn(len(engine.Moves))]
}

// stripCodeFences removes a leading ```lang line and a trailing ```.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first '{' through the last '}' of s.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
