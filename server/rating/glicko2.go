package rating

import "math"

const (
	glickoScale = 173.7178
	// DefaultTau constrains volatility change between matches.
	DefaultTau = 0.5
)

// Glicko is a career rating on the 1500 scale. One match is one rating period.
type Glicko struct {
	Rating     float64 `json:"rating"`
	RD         float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
}

func NewGlicko() Glicko { return Glicko{Rating: 1500, RD: 350, Volatility: 0.06} }

func (p Glicko) muPhi() (mu, phi float64) { return (p.Rating - 1500) / glickoScale, p.RD / glickoScale }

// Outcome is one opponent (as rated at the start of the period) and the score against it.
type Outcome struct {
	Opp   Glicko
	Score float64
}

func gPhi(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// MatchScore folds a match into one score in [0,1]: ties are half a win.
func MatchScore(wins, ties, rounds int) float64 {
	if rounds <= 0 {
		return 0.5
	}
	return (float64(wins) + 0.5*float64(ties)) / float64(rounds)
}

// UpdateGlicko rates a against opponent b (b as of the start of the match)
// given a's match score s.
func UpdateGlicko(a, b Glicko, s, tau float64) Glicko {
	return UpdatePeriod(a, []Outcome{{Opp: b, Score: s}}, tau)
}

// UpdatePeriod applies one Glicko-2 rating period. With no outcomes only
// the RD grows.
func UpdatePeriod(a Glicko, outcomes []Outcome, tau float64) Glicko {
	mu, phi := a.muPhi()
	if len(outcomes) == 0 {
		phiStar := math.Sqrt(phi*phi + a.Volatility*a.Volatility)
		return Glicko{Rating: a.Rating, RD: phiStar * glickoScale, Volatility: a.Volatility}
	}

	var invV, sum float64
	for _, o := range outcomes {
		muJ, phiJ := o.Opp.muPhi()
		g := gPhi(phiJ)
		e := 1 / (1 + math.Exp(-g*(mu-muJ)))
		invV += g * g * e * (1 - e)
		sum += g * (o.Score - e)
	}
	v := 1 / invV
	delta := v * sum

	sigma := a.Volatility
	if math.Abs(delta) >= 1e-12 {
		sigma = solveVolatility(phi, v, delta, a.Volatility, tau)
	}
	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*sum
	return Glicko{Rating: muNew*glickoScale + 1500, RD: phiNew * glickoScale, Volatility: sigma}
}

// solveVolatility finds sigma' with the Illinois iteration.
func solveVolatility(phi, v, delta, sigma, tau float64) float64 {
	a := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi*phi + v + ex
		return ex*(delta*delta-phi*phi-v-ex)/(2*d*d) - (x-a)/(tau*tau)
	}
	lo := a
	var hi float64
	if delta*delta > phi*phi+v {
		hi = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*tau) < 0 && k < 1e6 {
			k++
		}
		hi = a - k*tau
	}
	fLo, fHi := f(lo), f(hi)
	for i := 0; i < 100 && math.Abs(hi-lo) > 1e-6; i++ {
		mid := lo + (lo-hi)*fLo/(fHi-fLo)
		fMid := f(mid)
		if math.IsNaN(fMid) || math.IsInf(fMid, 0) {
			break
		}
		if fMid*fHi <= 0 {
			lo, fLo = hi, fHi
		} else {
			fLo /= 2
		}
		hi, fHi = mid, fMid
	}
	return math.Exp(lo / 2)
}
