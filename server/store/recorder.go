package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rps-thunderdome/server/match"
	"rps-thunderdome/server/rating"
)

// PlayerMeta is what the store knows about a player besides its name.
type PlayerMeta struct {
	Provider string
	Model    string
}

// Recorder persists one match. The first DB error disables it for the rest
// of the run; the match itself carries on.
type Recorder struct {
	db   *DB
	log  *slog.Logger
	meta map[string]PlayerMeta

	mu       sync.Mutex
	disabled bool
	matchID  string
	players  map[string]int64
	startElo map[string]float64
	startG   map[string]rating.Glicko
}

func NewRecorder(db *DB, log *slog.Logger, meta map[string]PlayerMeta) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{db: db, log: log, meta: meta}
}

func (r *Recorder) Name() string { return "postgres" }

func (r *Recorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

var errDisabled = errors.New("store disabled for this run")

func (r *Recorder) fail(err error) error {
	if err == nil {
		return nil
	}
	r.mu.Lock()
	first := !r.disabled
	r.disabled = true
	r.mu.Unlock()
	if first {
		r.log.Warn("store write failed; DB disabled for this run", "err", err)
	}
	return err
}

func (r *Recorder) active() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return "", errDisabled
	}
	if r.matchID == "" {
		return "", errors.New("store: match not started")
	}
	return r.matchID, nil
}

func (r *Recorder) StartMatch(ctx context.Context, info match.Info) error {
	if r.Disabled() {
		return errDisabled
	}
	ids := map[string]int64{}
	elos := map[string]float64{}
	glickos := map[string]rating.Glicko{}
	for _, name := range info.Players {
		m := r.meta[name]
		id, err := r.db.UpsertPlayer(ctx, name, m.Provider, m.Model)
		if err != nil {
			return r.fail(fmt.Errorf("upsert player %s: %w", name, err))
		}
		g, err := r.db.PlayerGlicko(ctx, id)
		if err != nil {
			return r.fail(fmt.Errorf("read rating %s: %w", name, err))
		}
		ids[name] = id
		elos[name] = info.EloStart
		glickos[name] = g
	}
	if err := r.db.CreateMatch(ctx, info, ids[info.Players[0]], ids[info.Players[1]]); err != nil {
		return r.fail(fmt.Errorf("create match: %w", err))
	}
	r.mu.Lock()
	r.matchID = info.ID
	r.players = ids
	r.startElo = elos
	r.startG = glickos
	r.mu.Unlock()
	return nil
}

func (r *Recorder) RecordRound(ctx context.Context, res match.RoundResult) error {
	if _, err := r.active(); err != nil {
		return err
	}
	return r.fail(r.db.InsertRound(ctx, res))
}

func (r *Recorder) RecordFailure(ctx context.Context, round int, cause error) error {
	id, err := r.active()
	if err != nil {
		return err
	}
	return r.fail(r.db.InsertFailure(ctx, id, round, cause.Error()))
}

// FinishMatch closes the match row and folds the result into career ratings.
func (r *Recorder) FinishMatch(ctx context.Context, rep match.Report) error {
	if _, err := r.active(); err != nil {
		return err
	}
	if err := r.db.CompleteMatch(ctx, rep); err != nil {
		return r.fail(fmt.Errorf("complete match: %w", err))
	}
	rounds := rep.Standings.Rounds()
	if rounds == 0 {
		return nil
	}
	r.mu.Lock()
	ids := [2]int64{r.players[rep.Players[0]], r.players[rep.Players[1]]}
	startElo := [2]float64{r.startElo[rep.Players[0]], r.startElo[rep.Players[1]]}
	startG := [2]rating.Glicko{r.startG[rep.Players[0]], r.startG[rep.Players[1]]}
	r.mu.Unlock()

	final := [2]float64{rep.Ratings.EloA, rep.Ratings.EloB}
	for i, name := range rep.Players {
		wins := rep.Standings.Wins(name)
		_, err := r.db.UpdatePlayerRating(ctx, ids[i], RatingUpdate{
			EloDelta: final[i] - startElo[i],
			Opponent: startG[1-i],
			Score:    rating.MatchScore(wins, rep.Standings.Ties, rounds),
			Rounds:   rounds,
			Wins:     wins,
			Ties:     rep.Standings.Ties,
		})
		if err != nil {
			return r.fail(fmt.Errorf("update rating %s: %w", name, err))
		}
	}
	return nil
}
