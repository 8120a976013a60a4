package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"rps-thunderdome/server/agent"
	"rps-thunderdome/server/engine"
	"rps-thunderdome/server/llm/llmtest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixedRand int

func (f fixedRand) Intn(int) int { return int(f) }

func decisionJSON(move, chat string) string {
	return fmt.Sprintf(`{"rationale":"because","chat":%q,"move":%q}`, chat, move)
}

func newAgent(name string, oracle agent.Oracle) *agent.Agent {
	return agent.New(name, oracle, agent.Options{
		Protocol: agent.DefaultProtocol(),
		Rand:     rand.New(rand.NewSource(1)),
		Logger:   quiet,
	})
}

func newMatch(t *testing.T, rounds int, a, b *agent.Agent, opts ...Option) *Match {
	t.Helper()
	opts = append([]Option{WithLogger(quiet)}, opts...)
	m, err := New(Config{Rounds: rounds}, a, b, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestRockBeatsScissorsEveryRound(t *testing.T) {
	a := newAgent("A", llmtest.Always(decisionJSON("rock", "")))
	b := newAgent("B", llmtest.Always(decisionJSON("scissors", "")))
	rep, err := newMatch(t, 3, a, b).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Standings.Wins("A") != 3 || rep.Standings.Wins("B") != 0 || rep.Standings.Ties != 0 {
		t.Fatalf("unexpected standings %s", rep.Standings)
	}
	if got := a.InferredOpponentMoves(); len(got) != 3 || got[0] != engine.Scissors {
		t.Fatalf("A should infer scissors, got %v", got)
	}
	if got := b.InferredOpponentMoves(); len(got) != 3 || got[0] != engine.Rock {
		t.Fatalf("B should infer rock, got %v", got)
	}
	if len(rep.Decisions["A"]) != 3 || len(rep.Decisions["B"]) != 3 {
		t.Fatalf("expected 3 decisions each: %+v", rep.Decisions)
	}
}

func TestPaperMirrorIsAllTies(t *testing.T) {
	a := newAgent("A", llmtest.Always(decisionJSON("paper", "")))
	b := newAgent("B", llmtest.Always(decisionJSON("paper", "")))
	rep, err := newMatch(t, 4, a, b).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Standings.Wins("A") != 0 || rep.Standings.Wins("B") != 0 || rep.Standings.Ties != 4 {
		t.Fatalf("unexpected standings %s", rep.Standings)
	}
	if len(a.InferredOpponentMoves()) != 0 {
		t.Fatalf("ties must not produce inferences")
	}
}

func TestFailedRoundIsIsolated(t *testing.T) {
	failing := &llmtest.Scripted{Func: func(_ context.Context, _ int, prompt string, _ int) (string, error) {
		if strings.Contains(prompt, "This is round 3.") {
			return "", errors.New("503 service unavailable")
		}
		return decisionJSON("rock", ""), nil
	}}
	a := newAgent("A", failing)
	b := newAgent("B", llmtest.Always(decisionJSON("scissors", "gg")))
	rec := &memRecorder{}
	m := newMatch(t, 5, a, b, WithRecorders(rec))

	rep, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Standings.Rounds() != 4 || rep.Standings.Wins("A") != 4 {
		t.Fatalf("expected 4 scored rounds, got %s", rep.Standings)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Round != 3 {
		t.Fatalf("expected round 3 failure, got %+v", rep.Failures)
	}
	for _, name := range []string{"A", "B"} {
		ds := rep.Decisions[name]
		if len(ds) != 4 {
			t.Fatalf("%s: expected 4 decisions, got %d", name, len(ds))
		}
		for _, d := range ds {
			if d.Round == 3 {
				t.Fatalf("%s: round 3 decision survived rollback", name)
			}
		}
	}
	for _, l := range rep.Chat {
		if l.Round == 3 {
			t.Fatalf("round 3 chat survived rollback: %+v", l)
		}
	}
	if len(rec.rounds) != 4 || len(rec.failures) != 1 || rec.failures[0] != 3 {
		t.Fatalf("recorder saw rounds=%d failures=%v", len(rec.rounds), rec.failures)
	}
	if !rec.started || !rec.finished {
		t.Fatalf("recorder lifecycle not called: %+v", rec)
	}
}

func TestPanickingOracleAbandonsRound(t *testing.T) {
	oracle := &llmtest.Scripted{Func: func(_ context.Context, _ int, prompt string, _ int) (string, error) {
		if strings.Contains(prompt, "This is round 2.") {
			panic("boom")
		}
		return decisionJSON("paper", ""), nil
	}}
	a := newAgent("A", oracle)
	b := newAgent("B", llmtest.Always(decisionJSON("rock", "")))
	rep, err := newMatch(t, 3, a, b).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Standings.Wins("A") != 2 || len(rep.Failures) != 1 || rep.Failures[0].Round != 2 {
		t.Fatalf("unexpected report %s %+v", rep.Standings, rep.Failures)
	}
}

func TestFirstRoundOrderIsRandom(t *testing.T) {
	seen := map[string]bool{}
	for seed := int64(0); seed < 32; seed++ {
		a := newAgent("A", llmtest.Always(decisionJSON("rock", "")))
		b := newAgent("B", llmtest.Always(decisionJSON("rock", "")))
		rep, err := newMatch(t, 1, a, b, WithRand(rand.New(rand.NewSource(seed)))).Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		first := rep.Rounds[0].Plays[0].Player
		if first != "A" && first != "B" {
			t.Fatalf("unexpected first mover %q", first)
		}
		seen[first] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Fatalf("expected both orderings across seeds, saw %v", seen)
	}
}

func TestWinnerLeadsNextRound(t *testing.T) {
	cycle := []string{"scissors", "paper", "rock", "scissors", "paper", "paper"}
	b := newAgent("B", &llmtest.Scripted{Func: func(_ context.Context, call int, _ string, _ int) (string, error) {
		return decisionJSON(cycle[call%len(cycle)], ""), nil
	}})
	a := newAgent("A", llmtest.Always(decisionJSON("rock", "")))
	rep, err := newMatch(t, len(cycle), a, b, WithRand(fixedRand(1))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rep.Rounds[0].Plays[0].Player; got != "B" {
		t.Fatalf("fixed rand should put B first, got %s", got)
	}
	for k := 0; k+1 < len(rep.Rounds); k++ {
		cur, next := rep.Rounds[k], rep.Rounds[k+1]
		want := cur.Winner
		if want == "" {
			want = cur.Plays[0].Player
		}
		if got := next.Plays[0].Player; got != want {
			t.Fatalf("round %d: first mover %s, want %s (prev winner %q)", next.Round, got, want, cur.Winner)
		}
	}
}

func TestFirstMoverRevisesAfterOpponentChat(t *testing.T) {
	a := newAgent("A", llmtest.NewScripted(
		llmtest.Reply{Text: decisionJSON("rock", "")},
		llmtest.Reply{Text: "scissors"},
	))
	b := newAgent("B", llmtest.Always(decisionJSON("paper", "I am playing paper")))
	rep, err := newMatch(t, 1, a, b, WithRand(fixedRand(0))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := rep.Rounds[0]
	if r.Plays[0].Player != "A" {
		t.Fatalf("A should move first")
	}
	if d := r.Plays[0].Decision; d.Move != engine.Scissors || d.RevisedFrom != engine.Rock {
		t.Fatalf("expected revision rock->scissors, got %+v", d)
	}
	if r.Winner != "A" {
		t.Fatalf("scissors beats paper, got winner %q", r.Winner)
	}
	if len(r.Chat) != 1 || r.Chat[0].Speaker != "B" {
		t.Fatalf("unexpected round chat %+v", r.Chat)
	}
}

func TestSecondMoverSeesFirstMoverChat(t *testing.T) {
	a := newAgent("A", llmtest.Always(decisionJSON("rock", "rock is solid")))
	bOracle := llmtest.Always(decisionJSON("paper", ""))
	b := newAgent("B", bOracle)
	if _, err := newMatch(t, 1, a, b, WithRand(fixedRand(0))).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := bOracle.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Prompt, "rock is solid") {
		t.Fatalf("second mover prompt should include first mover chat: %+v", calls)
	}
}

func TestChatLogCarriesRoundSummary(t *testing.T) {
	a := newAgent("A", llmtest.Always(decisionJSON("rock", "hello")))
	b := newAgent("B", llmtest.Always(decisionJSON("scissors", "")))
	rep, err := newMatch(t, 1, a, b, WithRand(fixedRand(0))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Chat) != 2 {
		t.Fatalf("expected chat + summary, got %+v", rep.Chat)
	}
	sum := rep.Chat[1]
	if sum.Kind != engine.KindResult {
		t.Fatalf("expected result line, got %+v", sum)
	}
	for _, want := range []string{"Round 1 Results:", "A chose: rock", "B chose: scissors", "Winner: A", "Scoreboard: {A: 1, B: 0, Ties: 0}"} {
		if !strings.Contains(sum.Text, want) {
			t.Fatalf("summary missing %q:\n%s", want, sum.Text)
		}
	}
}

func TestStateMachine(t *testing.T) {
	a := newAgent("A", llmtest.Always(decisionJSON("rock", "")))
	b := newAgent("B", llmtest.Always(decisionJSON("rock", "")))
	m := newMatch(t, 2, a, b)
	if m.State() != NotStarted {
		t.Fatalf("expected NotStarted, got %s", m.State())
	}
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.State() != MatchComplete {
		t.Fatalf("expected MatchComplete, got %s", m.State())
	}
	if _, err := m.Run(context.Background()); err == nil {
		t.Fatalf("second Run should fail")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	a := newAgent("A", llmtest.Always(decisionJSON("rock", "")))
	b := newAgent("B", llmtest.Always(decisionJSON("rock", "")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := newMatch(t, 3, a, b).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep.Standings.Rounds() != 0 {
		t.Fatalf("no rounds should be played: %s", rep.Standings)
	}
}

func TestNewValidates(t *testing.T) {
	a := newAgent("A", llmtest.Always(""))
	if _, err := New(Config{Rounds: 1}, a, newAgent("A", llmtest.Always(""))); err == nil {
		t.Fatalf("duplicate names should be rejected")
	}
	if _, err := New(Config{Rounds: 0}, a, newAgent("B", llmtest.Always(""))); err == nil {
		t.Fatalf("zero rounds should be rejected")
	}
}

func TestRunSeriesKeepsOrder(t *testing.T) {
	var ms []*Match
	for i := 0; i < 4; i++ {
		a := newAgent("A", llmtest.Always(decisionJSON("rock", "")))
		b := newAgent("B", llmtest.Always(decisionJSON("scissors", "")))
		ms = append(ms, newMatch(t, i+1, a, b, WithID(fmt.Sprintf("m%d", i))))
	}
	reps, err := RunSeries(context.Background(), ms, 2)
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}
	for i, rep := range reps {
		if rep.ID != fmt.Sprintf("m%d", i) || rep.Standings.Wins("A") != i+1 {
			t.Fatalf("report %d out of order: %s %s", i, rep.ID, rep.Standings)
		}
	}
}

type memRecorder struct {
	started  bool
	finished bool
	rounds   []RoundResult
	failures []int
}

func (r *memRecorder) StartMatch(context.Context, Info) error { r.started = true; return nil }

func (r *memRecorder) FinishMatch(context.Context, Report) error { r.finished = true; return nil }

func (r *memRecorder) RecordRound(_ context.Context, res RoundResult) error {
	r.rounds = append(r.rounds, res)
	return nil
}

func (r *memRecorder) RecordFailure(_ context.Context, round int, _ error) error {
	r.failures = append(r.failures, round)
	return nil
}
