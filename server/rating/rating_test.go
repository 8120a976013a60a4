package rating

import (
	"math"
	"testing"
)

func TestUpdateRoundZeroSum(t *testing.T) {
	e := NewElo(1500, 24)
	dA, dB := e.UpdateRound(1)
	if dA <= 0 || dB >= 0 {
		t.Fatalf("winner should gain: dA=%f dB=%f", dA, dB)
	}
	if math.Abs(dA+dB) > 1e-9 {
		t.Fatalf("deltas should cancel: %f %f", dA, dB)
	}
	if e.Games != 1 {
		t.Fatalf("expected 1 game, got %d", e.Games)
	}
}

func TestUpdateRoundTieBetweenEqualsIsNoop(t *testing.T) {
	e := NewElo(1500, 24)
	dA, dB := e.UpdateRound(ScoreFromResult(false, true))
	if dA != 0 || dB != 0 {
		t.Fatalf("tie between equal ratings should not move: %f %f", dA, dB)
	}
}

func TestWilsonCI95(t *testing.T) {
	lo, hi := WilsonCI95(0, 0, 0)
	if lo != 0 || hi != 1 {
		t.Fatalf("empty sample should span [0,1], got [%f,%f]", lo, hi)
	}
	lo, hi = WilsonCI95(5, 0, 10)
	if !(lo < 0.5 && hi > 0.5) {
		t.Fatalf("interval should contain 0.5: [%f,%f]", lo, hi)
	}
	if math.Abs((lo+hi)/2-0.5) > 1e-9 {
		t.Fatalf("symmetric sample should centre on 0.5: [%f,%f]", lo, hi)
	}
}

func TestGlickoWinnerGainsAndRDShrinks(t *testing.T) {
	a, b := NewGlicko(), NewGlicko()
	s := MatchScore(7, 1, 10)
	na := UpdateGlicko(a, b, s, DefaultTau)
	nb := UpdateGlicko(b, a, 1-s, DefaultTau)
	if na.Rating <= a.Rating || nb.Rating >= b.Rating {
		t.Fatalf("winner should gain: a=%f b=%f", na.Rating, nb.Rating)
	}
	if na.RD >= a.RD || nb.RD >= b.RD {
		t.Fatalf("RD should shrink after a match: %f %f", na.RD, nb.RD)
	}
	if math.Abs((na.Rating-1500)+(nb.Rating-1500)) > 1e-6 {
		t.Fatalf("symmetric players should move symmetrically: %f %f", na.Rating, nb.Rating)
	}
	if na.Volatility <= 0 || math.IsNaN(na.Volatility) {
		t.Fatalf("bad volatility %f", na.Volatility)
	}
}

func TestGlickoDrawBetweenEqualsKeepsRating(t *testing.T) {
	a := NewGlicko()
	na := UpdateGlicko(a, a, MatchScore(3, 4, 10), DefaultTau)
	if math.Abs(na.Rating-1500) > 1e-9 {
		t.Fatalf("even match should not move rating: %f", na.Rating)
	}
}

func TestMatchScore(t *testing.T) {
	if MatchScore(0, 0, 0) != 0.5 {
		t.Fatalf("empty match should score 0.5")
	}
	if got := MatchScore(2, 2, 4); got != 0.75 {
		t.Fatalf("MatchScore = %f", got)
	}
}

// Worked example from Glickman's Glicko-2 paper.
func TestGlickoPaperExample(t *testing.T) {
	p := Glicko{Rating: 1500, RD: 200, Volatility: 0.06}
	got := UpdatePeriod(p, []Outcome{
		{Opp: Glicko{Rating: 1400, RD: 30, Volatility: 0.06}, Score: 1},
		{Opp: Glicko{Rating: 1550, RD: 100, Volatility: 0.06}, Score: 0},
		{Opp: Glicko{Rating: 1700, RD: 300, Volatility: 0.06}, Score: 0},
	}, DefaultTau)
	if math.Abs(got.Rating-1464.06) > 0.05 || math.Abs(got.RD-151.52) > 0.05 {
		t.Fatalf("got rating=%.3f rd=%.3f, want 1464.06/151.52", got.Rating, got.RD)
	}
	if math.Abs(got.Volatility-0.05999) > 1e-4 {
		t.Fatalf("got volatility=%.6f, want 0.05999", got.Volatility)
	}
}

func TestGlickoSweepMovesFreshPlayer(t *testing.T) {
	got := UpdateGlicko(NewGlicko(), NewGlicko(), MatchScore(10, 0, 10), DefaultTau)
	if got.Rating < 1600 || got.RD > 300 {
		t.Fatalf("a clean sweep between fresh players should move a lot: rating=%.2f rd=%.2f", got.Rating, got.RD)
	}
}

func TestGlickoIdleGrowsRD(t *testing.T) {
	p := Glicko{Rating: 1600, RD: 50, Volatility: 0.06}
	got := UpdatePeriod(p, nil, DefaultTau)
	if got.Rating != 1600 || got.RD <= 50 {
		t.Fatalf("idle period: %+v", got)
	}
}
