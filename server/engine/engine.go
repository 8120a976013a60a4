package engine

import "strings"

// beats maps each move to the move it defeats.
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// ParseMove normalizes free text into a legal move.
func ParseMove(s string) (Move, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`.!*_ ")
	m := Move(s)
	if _, ok := beats[m]; !ok {
		return "", false
	}
	return m, true
}

func (m Move) Valid() bool {
	_, ok := beats[m]
	return ok
}

func (m Move) Beats(o Move) bool { return m.Valid() && beats[m] == o }

// Defeats returns the move that m beats.
func (m Move) Defeats() Move { return beats[m] }

// DefeatedBy returns the move that beats m.
func (m Move) DefeatedBy() Move {
	for k, v := range beats {
		if v == m {
			return k
		}
	}
	return ""
}

func (m Move) String() string { return string(m) }

// Decide returns the winning side for a pair of moves.
func Decide(a, b Move) Side {
	switch {
	case a == b:
		return Tie
	case a.Beats(b):
		return SideA
	default:
		return SideB
	}
}
