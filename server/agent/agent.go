package agent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"rps-thunderdome/server/engine"
)

// ChatPoster appends a chat line to the match transcript.
type ChatPoster interface {
	PostChat(round int, speaker, text string)
}

type Options struct {
	Protocol Protocol
	Rand     Rand
	Logger   *slog.Logger
	Chat     ChatPoster
}

// Agent owns one player's state for the length of a match.
type Agent struct {
	name   string
	oracle Oracle
	proto  Protocol
	rng    Rand
	log    *slog.Logger
	chat   ChatPoster

	decisions      []Decision
	opponentMoves  []engine.Move
	lastResult     string
	lastScoreboard engine.Standings
}

func New(name string, oracle Oracle, opts Options) *Agent {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		name:   name,
		oracle: oracle,
		proto:  opts.Protocol.withDefaults(),
		rng:    opts.Rand,
		log:    opts.Logger.With("agent", name),
		chat:   opts.Chat,
	}
}

func (a *Agent) Name() string { return a.name }

// SetChat connects the agent to a match transcript.
func (a *Agent) SetChat(c ChatPoster) { a.chat = c }

// ProduceMove asks the protocol for this round's decision, records it and
// publishes its chat message if there is one.
func (a *Agent) ProduceMove(ctx context.Context, round int, chat []engine.ChatLine) (engine.Move, error) {
	st := State{
		Name:          a.name,
		Round:         round,
		Decisions:     a.Decisions(),
		OpponentMoves: a.InferredOpponentMoves(),
		LastResult:    a.lastResult,
		Scoreboard:    a.lastScoreboard,
	}
	d, err := a.proto.ObtainDecision(ctx, a.oracle, a.rng, st, chat, a.log)
	if err != nil {
		return "", err
	}
	a.decisions = append(a.decisions, d)
	a.log.Info("decision", "round", round, "move", d.Move, "fallback", d.Fallback, "chat", d.Chat != "")
	a.log.Debug("rationale", "round", round, "text", d.Rationale)
	a.PublishChat(round, d.Chat)
	return d.Move, nil
}

// CanRevise reports whether the protocol allows a revision pass.
func (a *Agent) CanRevise() bool { return a.proto.Revise }

// Revise lets the agent reconsider this round's move after reading the
// opponent's message. The recorded decision is replaced when the move changes.
func (a *Agent) Revise(ctx context.Context, opponentChat string) (engine.Move, error) {
	if len(a.decisions) == 0 {
		return "", errors.New("revise before any move")
	}
	last := a.decisions[len(a.decisions)-1]
	if !a.proto.Revise || strings.TrimSpace(opponentChat) == "" {
		return last.Move, nil
	}
	m, err := a.proto.ReviseMove(ctx, a.oracle, last.Move, opponentChat)
	if err != nil {
		return "", err
	}
	if m != last.Move {
		revised := last
		revised.RevisedFrom = last.Move
		revised.Move = m
		a.decisions[len(a.decisions)-1] = revised
		a.log.Info("revised move", "round", last.Round, "from", last.Move, "to", m)
	}
	return m, nil
}

// ObserveRoundResult records the outcome. winner is empty on a tie. The
// opponent's move is not observed; it is derived from the winner and this
// agent's own cached move.
func (a *Agent) ObserveRoundResult(winner string, st engine.Standings) {
	a.lastScoreboard = st
	if winner == "" {
		a.lastResult = "Tie"
		return
	}
	a.lastResult = winner
	if len(a.decisions) == 0 {
		a.log.Warn("result observed without a recorded move")
		return
	}
	mine := a.decisions[len(a.decisions)-1].Move
	if !mine.Valid() {
		a.log.Warn("cannot infer opponent move", "own_move", mine)
		return
	}
	if winner == a.name {
		a.opponentMoves = append(a.opponentMoves, mine.Defeats())
	} else {
		a.opponentMoves = append(a.opponentMoves, mine.DefeatedBy())
	}
}

// PublishChat forwards a non-empty message to the transcript.
func (a *Agent) PublishChat(round int, text string) {
	text = strings.TrimSpace(text)
	if text == "" || a.chat == nil {
		return
	}
	a.chat.PostChat(round, a.name, text)
}

func (a *Agent) Decisions() []Decision { return append([]Decision(nil), a.decisions...) }

func (a *Agent) InferredOpponentMoves() []engine.Move {
	return append([]engine.Move(nil), a.opponentMoves...)
}

func (a *Agent) LastResult() string { return a.lastResult }

func (a *Agent) LastScoreboard() engine.Standings { return a.lastScoreboard }

// LastDecision returns the most recent decision, if any.
func (a *Agent) LastDecision() (Decision, bool) {
	if len(a.decisions) == 0 {
		return Decision{}, false
	}
	return a.decisions[len(a.decisions)-1], true
}

// Checkpoint captures the state needed to undo an abandoned round.
type Checkpoint struct {
	decisions      int
	opponentMoves  int
	lastResult     string
	lastScoreboard engine.Standings
}

func (a *Agent) Checkpoint() Checkpoint {
	return Checkpoint{
		decisions:      len(a.decisions),
		opponentMoves:  len(a.opponentMoves),
		lastResult:     a.lastResult,
		lastScoreboard: a.lastScoreboard,
	}
}

func (a *Agent) Restore(cp Checkpoint) {
	if cp.decisions < len(a.decisions) {
		a.decisions = a.decisions[:cp.decisions]
	}
	if cp.opponentMoves < len(a.opponentMoves) {
		a.opponentMoves = a.opponentMoves[:cp.opponentMoves]
	}
	a.lastResult = cp.lastResult
	a.lastScoreboard = cp.lastScoreboard
}
