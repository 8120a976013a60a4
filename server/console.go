package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"rps-thunderdome/server/engine"
	"rps-thunderdome/server/match"
)

//
// ===== pretty printing =====
//

var useColor bool

const (
	colReset  = "\033[0m"
	colBold   = "\033[1m"
	colDim    = "\033[2m"
	colGreen  = "\033[32m"
	colRed    = "\033[31m"
	colYellow = "\033[33m"
	colBlue   = "\033[34m"
	colMag    = "\033[35m"
	colCyan   = "\033[36m"
)

func c(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colReset
}
func bold(s string) string { return c(colBold, s) }
func dim(s string) string  { return c(colDim, s) }
func good(s string) string { return c(colGreen, s) }
func warn(s string) string { return c(colYellow, s) }
func bad(s string) string  { return c(colRed, s) }
func cyan(s string) string { return c(colCyan, s) }
func mag(s string) string  { return c(colMag, s) }
func blue(s string) string { return c(colBlue, s) }

func moveTag(m engine.Move) string {
	switch m {
	case engine.Rock:
		return bold(blue("rock"))
	case engine.Paper:
		return bold(mag("paper"))
	case engine.Scissors:
		return bold(cyan("scissors"))
	}
	return bad("?")
}

// console prints a live view of one match. Series runs share one console,
// so writes are serialized and every line carries the match tag.
type console struct {
	mu  *sync.Mutex
	w   io.Writer
	tag string
}

func newConsole(w io.Writer, mu *sync.Mutex, tag string) *console {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &console{mu: mu, w: w, tag: tag}
}

func (k *console) Name() string { return "console" }

func (k *console) printf(format string, args ...any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tag != "" {
		fmt.Fprint(k.w, dim("["+k.tag+"] "))
	}
	fmt.Fprintf(k.w, format, args...)
}

func (k *console) StartMatch(_ context.Context, info match.Info) error {
	k.printf("\n%s %s %s %s %s\n", dim("──"), bold(info.Players[0]), dim("vs"), bold(info.Players[1]), dim(fmt.Sprintf("── %d rounds · %s", info.Rounds, info.ID)))
	return nil
}

func (k *console) RecordRound(_ context.Context, r match.RoundResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", dim("▶"), bold(fmt.Sprintf("Round %d", r.Round)))
	for _, l := range r.Chat {
		if l.Kind == engine.KindChat {
			fmt.Fprintf(&b, "  %s %s\n", cyan(l.Speaker+":"), l.Text)
		}
	}
	for _, p := range r.Plays {
		note := ""
		if p.Decision.Fallback {
			note = " " + warn("(fallback)")
		}
		if p.Decision.RevisedFrom != "" {
			note += " " + warn(fmt.Sprintf("(revised from %s)", p.Decision.RevisedFrom))
		}
		fmt.Fprintf(&b, "  %s chose %s%s\n", bold(p.Player), moveTag(p.Decision.Move), note)
	}
	if r.Winner == "" {
		fmt.Fprintf(&b, "  %s %s\n", dim("Result →"), bold("Tie."))
	} else {
		fmt.Fprintf(&b, "  %s %s\n", good("Winner →"), bold(r.Winner))
	}
	fmt.Fprintf(&b, "  %s\n", dim(r.Standings.String()))
	k.printf("%s", b.String())
	return nil
}

func (k *console) RecordFailure(_ context.Context, round int, cause error) error {
	k.printf("%s %s %v\n", bad(fmt.Sprintf("Round %d abandoned:", round)), dim("scoreboard unchanged ·"), cause)
	return nil
}

func (k *console) FinishMatch(_ context.Context, rep match.Report) error {
	k.printf("%s", renderReport(rep))
	return nil
}

func renderReport(rep match.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s %s %s\n", dim("──"), bold("Final Results"), dim("──"))
	players := append([]engine.Standing(nil), rep.Standings.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Wins > players[j].Wins })
	for _, p := range players {
		fmt.Fprintf(&b, "  %s %d\n", bold(p.Name+":"), p.Wins)
	}
	fmt.Fprintf(&b, "  %s %d\n", bold("Ties:"), rep.Standings.Ties)
	if len(rep.Failures) > 0 {
		fmt.Fprintf(&b, "  %s %d\n", warn("Abandoned rounds:"), len(rep.Failures))
	}
	fmt.Fprintf(&b, "  %s %s:%.1f  %s:%.1f  %s\n",
		dim("Elo →"), rep.Players[0], rep.Ratings.EloA, rep.Players[1], rep.Ratings.EloB,
		dim(fmt.Sprintf("%s win rate 95%% CI [%.2f, %.2f]", rep.Players[0], rep.Ratings.WinRateLo, rep.Ratings.WinRateHi)))
	for _, name := range rep.Players {
		fb := 0
		for _, d := range rep.Decisions[name] {
			if d.Fallback {
				fb++
			}
		}
		if fb > 0 {
			fmt.Fprintf(&b, "  %s %s used %d random fallback move(s)\n", warn("!"), name, fb)
		}
	}
	return b.String()
}
