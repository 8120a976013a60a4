package rating

import "math"

// Elo holds ratings for players A and B across one match.
type Elo struct {
	A, B  float64 // ratings
	K     float64 // base K
	Games int     // rounds applied
}

func NewElo(start, k float64) Elo { return Elo{A: start, B: start, K: k} }

func (e Elo) expect() (ea, eb float64) {
	ea = 1.0 / (1.0 + math.Pow(10, (e.B-e.A)/400.0))
	return ea, 1.0 - ea
}

// UpdateRound applies one round result. sa is A's score: 1 win, 0.5 tie, 0 loss.
// Returns the applied deltas.
func (e *Elo) UpdateRound(sa float64) (dA, dB float64) {
	ea, eb := e.expect()
	sa = clamp(sa, 0, 1)
	k := e.K * decay(e.Games)
	dA = k * (sa - ea)
	dB = k * ((1 - sa) - eb)
	e.A += dA
	e.B += dB
	e.Games++
	return dA, dB
}

// ScoreFromResult maps a winner to A's round score.
func ScoreFromResult(aWon, tie bool) float64 {
	switch {
	case tie:
		return 0.5
	case aWon:
		return 1
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func decay(games int) float64 {
	return 1.0 / (1.0 + 0.01*float64(games)) // slow anneal over rounds
}
