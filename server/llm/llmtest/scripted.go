// Package llmtest provides deterministic oracles for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
)

// Call is one recorded Respond invocation.
type Call struct {
	Prompt    string
	MaxTokens int
}

// Reply configures one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays replies in order. When Func is set it is used instead of
// the queue.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
	Func    func(ctx context.Context, call int, prompt string, maxTokens int) (string, error)
}

func NewScripted(replies ...Reply) *Scripted {
	cloned := make([]Reply, len(replies))
	copy(cloned, replies)
	return &Scripted{replies: cloned}
}

// Always returns an oracle that answers text to every prompt.
func Always(text string) *Scripted {
	return &Scripted{Func: func(context.Context, int, string, int) (string, error) { return text, nil }}
}

func (s *Scripted) Respond(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, Call{Prompt: prompt, MaxTokens: maxTokens})
	fn := s.Func
	var next Reply
	exhausted := false
	if fn == nil {
		if idx >= len(s.replies) {
			exhausted = true
		} else {
			next = s.replies[idx]
		}
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, idx, prompt, maxTokens)
	}
	if exhausted {
		return "", fmt.Errorf("script exhausted at call %d", idx+1)
	}
	return next.Text, next.Err
}

// Calls returns the recorded invocations.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
