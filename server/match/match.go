package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"rps-thunderdome/server/agent"
	"rps-thunderdome/server/engine"
	"rps-thunderdome/server/rating"
)

type State int

const (
	NotStarted State = iota
	RoundInProgress
	RoundComplete
	MatchComplete
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case RoundInProgress:
		return "round_in_progress"
	case RoundComplete:
		return "round_complete"
	case MatchComplete:
		return "match_complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Rand picks the first-round order.
type Rand interface {
	Intn(n int) int
}

type Config struct {
	Rounds   int
	EloStart float64
	EloK     float64
}

// Info describes a match as it starts.
type Info struct {
	ID        string
	Players   [2]string
	Rounds    int
	StartedAt time.Time
	EloStart  float64
	EloK      float64
}

// Play is one player's finalized decision in a round.
type Play struct {
	Player   string         `json:"player"`
	Decision agent.Decision `json:"decision"`
}

type RoundResult struct {
	MatchID   string            `json:"match_id"`
	Round     int               `json:"round"`
	Plays     [2]Play           `json:"plays"` // first mover, second mover
	Winner    string            `json:"winner"`
	Standings engine.Standings  `json:"standings"`
	Chat      []engine.ChatLine `json:"chat"`
	// Elo holds both ratings after this round, in Info.Players order.
	Elo [2]float64 `json:"elo"`
}

// Move returns the move played by name in this round.
func (r RoundResult) Move(name string) engine.Move {
	for _, p := range r.Plays {
		if p.Player == name {
			return p.Decision.Move
		}
	}
	return ""
}

// Summary renders the round-result block appended to the chat log.
func (r RoundResult) Summary() string {
	winner := r.Winner
	if winner == "" {
		winner = "Tie"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d Results:\n", r.Round)
	for _, p := range r.Plays {
		fmt.Fprintf(&b, "%s chose: %s\n", p.Player, p.Decision.Move)
	}
	fmt.Fprintf(&b, "Winner: %s\n%s", winner, r.Standings)
	return b.String()
}

type RoundFailure struct {
	Round int    `json:"round"`
	Err   string `json:"error"`
}

// Match runs two agents against each other for a fixed number of rounds.
// A Match is single use and not safe for concurrent use.
type Match struct {
	id         string
	cfg        Config
	players    [2]*agent.Agent
	order      [2]*agent.Agent
	scoreboard *engine.Scoreboard
	chat       engine.ChatLog
	rng        Rand
	log        *slog.Logger
	recorders  []Recorder
	elo        rating.Elo

	state     State
	startedAt time.Time
	results   []RoundResult
	failures  []RoundFailure
}

type Option func(*Match)

func WithRand(r Rand) Option { return func(m *Match) { m.rng = r } }

func WithLogger(l *slog.Logger) Option { return func(m *Match) { m.log = l } }

func WithRecorders(rs ...Recorder) Option {
	return func(m *Match) { m.recorders = append(m.recorders, rs...) }
}

func WithID(id string) Option { return func(m *Match) { m.id = id } }

func New(cfg Config, a, b *agent.Agent, opts ...Option) (*Match, error) {
	if a == nil || b == nil {
		return nil, errors.New("match needs two agents")
	}
	if a.Name() == "" || a.Name() == b.Name() {
		return nil, fmt.Errorf("agents need distinct names, got %q and %q", a.Name(), b.Name())
	}
	if cfg.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be > 0, got %d", cfg.Rounds)
	}
	if cfg.EloStart == 0 {
		cfg.EloStart = 1500
	}
	if cfg.EloK == 0 {
		cfg.EloK = 24
	}
	m := &Match{
		cfg:        cfg,
		players:    [2]*agent.Agent{a, b},
		order:      [2]*agent.Agent{a, b},
		scoreboard: engine.NewScoreboard(a.Name(), b.Name()),
		elo:        rating.NewElo(cfg.EloStart, cfg.EloK),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.id == "" {
		m.id = uuid.NewString()
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("match", m.id)
	a.SetChat(m)
	b.SetChat(m)
	return m, nil
}

func (m *Match) ID() string { return m.id }

func (m *Match) State() State { return m.state }

// Order returns the names of the current first and second movers.
func (m *Match) Order() [2]string {
	return [2]string{m.order[0].Name(), m.order[1].Name()}
}

// PostChat implements agent.ChatPoster.
func (m *Match) PostChat(round int, speaker, text string) {
	m.chat.Append(engine.ChatLine{Round: round, Speaker: speaker, Text: text, Kind: engine.KindChat})
}

// Run plays every round. A failed round is abandoned and the match moves on;
// the only error returned is the caller's context error.
func (m *Match) Run(ctx context.Context) (Report, error) {
	if m.state != NotStarted {
		return Report{}, errors.New("match already run")
	}
	m.startedAt = time.Now()
	info := Info{
		ID:        m.id,
		Players:   [2]string{m.players[0].Name(), m.players[1].Name()},
		Rounds:    m.cfg.Rounds,
		StartedAt: m.startedAt,
		EloStart:  m.cfg.EloStart,
		EloK:      m.cfg.EloK,
	}
	m.startRecorders(ctx, info)

	if m.rng.Intn(2) == 1 {
		m.order[0], m.order[1] = m.order[1], m.order[0]
	}
	m.log.Info("match started", "players", info.Players, "rounds", m.cfg.Rounds, "first", m.order[0].Name())

	var runErr error
	for n := 1; n <= m.cfg.Rounds; n++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		m.state = RoundInProgress
		res, err := m.playRound(ctx, n)
		if err != nil {
			m.failures = append(m.failures, RoundFailure{Round: n, Err: err.Error()})
			m.log.Error("round abandoned", "round", n, "err", err)
			m.recordFailure(ctx, n, err)
			m.state = RoundComplete
			continue
		}
		m.results = append(m.results, res)
		m.log.Info("round complete", "round", n, "winner", winnerLabel(res.Winner), "scoreboard", res.Standings.String())
		m.recordRound(ctx, res)
		m.state = RoundComplete
	}

	m.state = MatchComplete
	rep := m.Report()
	m.log.Info("match complete", "scoreboard", rep.Standings.String(), "failed_rounds", len(rep.Failures))
	m.finishRecorders(ctx, rep)
	return rep, runErr
}

func (m *Match) playRound(ctx context.Context, n int) (res RoundResult, err error) {
	cps := [2]agent.Checkpoint{m.players[0].Checkpoint(), m.players[1].Checkpoint()}
	chatMark := m.chat.Len()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("round %d panicked: %v", n, r)
		}
		if err != nil {
			m.players[0].Restore(cps[0])
			m.players[1].Restore(cps[1])
			m.chat.Truncate(chatMark)
		}
	}()

	first, second := m.order[0], m.order[1]

	m1, err := first.ProduceMove(ctx, n, m.inbox(first.Name(), n))
	if err != nil {
		return RoundResult{}, fmt.Errorf("%s move: %w", first.Name(), err)
	}
	m2, err := second.ProduceMove(ctx, n, m.inbox(second.Name(), n))
	if err != nil {
		return RoundResult{}, fmt.Errorf("%s move: %w", second.Name(), err)
	}
	if first.CanRevise() {
		if said := m.lastChat(second.Name(), n); said != "" {
			m1, err = first.Revise(ctx, said)
			if err != nil {
				return RoundResult{}, fmt.Errorf("%s revision: %w", first.Name(), err)
			}
		}
	}

	var winner string
	switch engine.Decide(m1, m2) {
	case engine.SideA:
		winner = first.Name()
	case engine.SideB:
		winner = second.Name()
	}
	return m.commit(n, first, second, winner)
}

// commit applies a decided round. Nothing here talks to an oracle.
func (m *Match) commit(n int, first, second *agent.Agent, winner string) (RoundResult, error) {
	if err := m.scoreboard.Record(winner); err != nil {
		return RoundResult{}, err
	}
	st := m.scoreboard.Snapshot()
	first.ObserveRoundResult(winner, st)
	second.ObserveRoundResult(winner, st)

	m.elo.UpdateRound(rating.ScoreFromResult(winner == m.players[0].Name(), winner == ""))

	d1, _ := first.LastDecision()
	d2, _ := second.LastDecision()
	res := RoundResult{
		MatchID:   m.id,
		Round:     n,
		Plays:     [2]Play{{Player: first.Name(), Decision: d1}, {Player: second.Name(), Decision: d2}},
		Winner:    winner,
		Standings: st,
		Chat:      m.chat.Round(n),
		Elo:       [2]float64{m.elo.A, m.elo.B},
	}
	m.chat.Append(engine.ChatLine{Round: n, Text: res.Summary(), Kind: engine.KindResult})

	if winner != "" && winner == second.Name() {
		m.order[0], m.order[1] = second, first
	}
	return res, nil
}

// inbox returns the opponent's chat from the previous and current round.
func (m *Match) inbox(self string, n int) []engine.ChatLine {
	var out []engine.ChatLine
	for _, r := range []int{n - 1, n} {
		for _, l := range m.chat.Round(r) {
			if l.Kind == engine.KindChat && l.Speaker != self {
				out = append(out, l)
			}
		}
	}
	return out
}

// lastChat returns speaker's message if it is the latest chat line of round n.
func (m *Match) lastChat(speaker string, n int) string {
	lines := m.chat.Round(n)
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Kind != engine.KindChat {
			continue
		}
		if lines[i].Speaker == speaker {
			return lines[i].Text
		}
		return ""
	}
	return ""
}

func winnerLabel(w string) string {
	if w == "" {
		return "Tie"
	}
	return w
}
