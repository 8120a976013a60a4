package rating

import "math"

// WilsonCI95 for a win rate where ties count as half a win.
func WilsonCI95(wins, ties, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := (float64(wins) + 0.5*float64(ties)) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return (center - half) / den, (center + half) / den
}

// Summary is the end-of-match rating view.
type Summary struct {
	EloA      float64 `json:"elo_a"`
	EloB      float64 `json:"elo_b"`
	Rounds    int     `json:"rounds"`
	WinRateLo float64 `json:"win_rate_a_lo"`
	WinRateHi float64 `json:"win_rate_a_hi"`
}

func Summarize(e Elo, winsA, ties, total int) Summary {
	lo, hi := WilsonCI95(winsA, ties, total)
	return Summary{EloA: e.A, EloB: e.B, Rounds: e.Games, WinRateLo: lo, WinRateHi: hi}
}
