package match

import "context"

// Recorder receives committed rounds and abandoned-round notices.
// Errors are logged and never stop a match.
type Recorder interface {
	RecordRound(ctx context.Context, r RoundResult) error
	RecordFailure(ctx context.Context, round int, err error) error
}

// Starter is implemented by recorders that need the match header first.
type Starter interface {
	StartMatch(ctx context.Context, info Info) error
}

// Finisher is implemented by recorders that consume the final report.
type Finisher interface {
	FinishMatch(ctx context.Context, rep Report) error
}

func (m *Match) startRecorders(ctx context.Context, info Info) {
	for _, r := range m.recorders {
		if s, ok := r.(Starter); ok {
			if err := s.StartMatch(ctx, info); err != nil {
				m.log.Warn("recorder start failed", "recorder", recorderName(r), "err", err)
			}
		}
	}
}

func (m *Match) recordRound(ctx context.Context, res RoundResult) {
	for _, r := range m.recorders {
		if err := r.RecordRound(ctx, res); err != nil {
			m.log.Warn("recorder failed", "recorder", recorderName(r), "round", res.Round, "err", err)
		}
	}
}

func (m *Match) recordFailure(ctx context.Context, round int, cause error) {
	for _, r := range m.recorders {
		if err := r.RecordFailure(ctx, round, cause); err != nil {
			m.log.Warn("recorder failed", "recorder", recorderName(r), "round", round, "err", err)
		}
	}
}

func (m *Match) finishRecorders(ctx context.Context, rep Report) {
	for _, r := range m.recorders {
		if f, ok := r.(Finisher); ok {
			if err := f.FinishMatch(ctx, rep); err != nil {
				m.log.Warn("recorder finish failed", "recorder", recorderName(r), "err", err)
			}
		}
	}
}

func recorderName(r Recorder) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "recorder"
}
