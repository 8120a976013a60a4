// Package transcript writes human-readable match logs: one thought log per
// agent and a shared chat log with round results.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rps-thunderdome/server/engine"
	"rps-thunderdome/server/match"
)

const chatFile = "chat.log"

// Writer appends match transcripts under Root/<YYYY-MM-DD_HH-MM>_<id>/.
type Writer struct {
	Root string
	Now  func() time.Time

	mu  sync.Mutex
	dir string
}

func New(root string) *Writer {
	return &Writer{Root: root, Now: time.Now}
}

func (w *Writer) Name() string { return "transcript" }

// Dir is the directory of the current match, empty before StartMatch.
func (w *Writer) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

func (w *Writer) StartMatch(_ context.Context, info match.Info) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	name := now().Format("2006-01-02_15-04")
	if id := shortID(info.ID); id != "" {
		name += "_" + id
	}
	dir := filepath.Join(w.Root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	w.mu.Lock()
	w.dir = dir
	w.mu.Unlock()
	return nil
}

func (w *Writer) RecordRound(_ context.Context, r match.RoundResult) error {
	dir, err := w.requireDir()
	if err != nil {
		return err
	}
	for _, p := range r.Plays {
		var b strings.Builder
		fmt.Fprintf(&b, "========= Round %d:\n%s\n", r.Round, p.Decision.Rationale)
		if p.Decision.Fallback {
			b.WriteString("(no usable answer; random move)\n")
		}
		if p.Decision.RevisedFrom != "" {
			fmt.Fprintf(&b, "(revised %s -> %s after reading the opponent)\n", p.Decision.RevisedFrom, p.Decision.Move)
		}
		b.WriteString("\n")
		if err := appendFile(filepath.Join(dir, ThoughtFile(p.Player)), b.String()); err != nil {
			return err
		}
	}

	var b strings.Builder
	for _, l := range r.Chat {
		if l.Kind == engine.KindChat {
			fmt.Fprintf(&b, "========= Round %d: %s: %s\n", l.Round, l.Speaker, l.Text)
		}
	}
	fmt.Fprintf(&b, "\n%s\n\n", r.Summary())
	return appendFile(filepath.Join(dir, chatFile), b.String())
}

func (w *Writer) RecordFailure(_ context.Context, round int, cause error) error {
	dir, err := w.requireDir()
	if err != nil {
		return err
	}
	return appendFile(filepath.Join(dir, chatFile), fmt.Sprintf("========= Round %d: error: %v\n", round, cause))
}

func (w *Writer) FinishMatch(_ context.Context, rep match.Report) error {
	dir, err := w.requireDir()
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Final Results:\n%s\n", rep.Standings)
	if n := len(rep.Failures); n > 0 {
		fmt.Fprintf(&b, "Abandoned rounds: %d\n", n)
	}
	return appendFile(filepath.Join(dir, chatFile), b.String())
}

func (w *Writer) requireDir() (string, error) {
	dir := w.Dir()
	if dir == "" {
		return "", fmt.Errorf("transcript: match not started")
	}
	return dir, nil
}

// ThoughtFile is the per-agent log file name, e.g. "claude-sonnet-3.5-thought.log".
func ThoughtFile(agent string) string {
	slug := strings.ToLower(strings.TrimSpace(agent))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, slug)
	return slug + "-thought.log"
}

func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
