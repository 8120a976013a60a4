package engine

import (
	"fmt"
	"strings"
)

// Scoreboard counts round wins per player plus ties. Counts only grow.
type Scoreboard struct {
	names [2]string
	wins  map[string]int
	ties  int
}

func NewScoreboard(a, b string) *Scoreboard {
	return &Scoreboard{
		names: [2]string{a, b},
		wins:  map[string]int{a: 0, b: 0},
	}
}

// Record adds one round. An empty winner is a tie.
func (s *Scoreboard) Record(winner string) error {
	if winner == "" {
		s.ties++
		return nil
	}
	if _, ok := s.wins[winner]; !ok {
		return fmt.Errorf("unknown player %q", winner)
	}
	s.wins[winner]++
	return nil
}

func (s *Scoreboard) Snapshot() Standings {
	return Standings{
		Players: []Standing{
			{Name: s.names[0], Wins: s.wins[s.names[0]]},
			{Name: s.names[1], Wins: s.wins[s.names[1]]},
		},
		Ties: s.ties,
	}
}

type Standing struct {
	Name string `json:"name"`
	Wins int    `json:"wins"`
}

// Standings is an immutable copy of a scoreboard.
type Standings struct {
	Players []Standing `json:"players"`
	Ties    int        `json:"ties"`
}

func (st Standings) Wins(name string) int {
	for _, p := range st.Players {
		if p.Name == name {
			return p.Wins
		}
	}
	return 0
}

// Rounds is the number of completed rounds.
func (st Standings) Rounds() int {
	n := st.Ties
	for _, p := range st.Players {
		n += p.Wins
	}
	return n
}

func (st Standings) String() string {
	parts := make([]string, 0, len(st.Players)+1)
	for _, p := range st.Players {
		parts = append(parts, fmt.Sprintf("%s: %d", p.Name, p.Wins))
	}
	parts = append(parts, fmt.Sprintf("Ties: %d", st.Ties))
	return "Scoreboard: {" + strings.Join(parts, ", ") + "}"
}
