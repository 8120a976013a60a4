package match

import (
	"time"

	"rps-thunderdome/server/agent"
	"rps-thunderdome/server/engine"
	"rps-thunderdome/server/rating"
)

// Report is everything a finished match exposes for reporting.
type Report struct {
	ID        string                      `json:"id"`
	Players   [2]string                   `json:"players"`
	StartedAt time.Time                   `json:"started_at"`
	Standings engine.Standings            `json:"standings"`
	Chat      []engine.ChatLine           `json:"chat"`
	Decisions map[string][]agent.Decision `json:"decisions"`
	Rounds    []RoundResult               `json:"rounds"`
	Failures  []RoundFailure              `json:"failures"`
	Ratings   rating.Summary              `json:"ratings"`
}

// Report snapshots the current match state. It is complete once Run returns.
func (m *Match) Report() Report {
	a, b := m.players[0], m.players[1]
	st := m.scoreboard.Snapshot()
	return Report{
		ID:        m.id,
		Players:   [2]string{a.Name(), b.Name()},
		StartedAt: m.startedAt,
		Standings: st,
		Chat:      m.chat.Lines(),
		Decisions: map[string][]agent.Decision{
			a.Name(): a.Decisions(),
			b.Name(): b.Decisions(),
		},
		Rounds:   append([]RoundResult(nil), m.results...),
		Failures: append([]RoundFailure(nil), m.failures...),
		Ratings:  rating.Summarize(m.elo, st.Wins(a.Name()), st.Ties, st.Rounds()),
	}
}
