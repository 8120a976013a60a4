package store

import (
	"context"
	"embed"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rps-thunderdome/server/engine"
	"rps-thunderdome/server/match"
	"rps-thunderdome/server/rating"
)

//go:embed schema.sql
var schema embed.FS

// ErrNotFound is returned by the read side when a match does not exist.
var ErrNotFound = errors.New("not found")

type DB struct{ *pgxpool.Pool }

func Open(ctx context.Context, dsn string) (*DB, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Write helpers
------------------------------*/

// UpsertPlayer returns the player id and makes sure a ratings row exists.
func (db *DB) UpsertPlayer(ctx context.Context, name, provider, model string) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
        INSERT INTO players(name, provider, model)
        VALUES ($1,$2,$3)
        ON CONFLICT (name) DO UPDATE
          SET provider = COALESCE(NULLIF(EXCLUDED.provider, ''), players.provider),
              model = COALESCE(NULLIF(EXCLUDED.model, ''), players.model)
        RETURNING id
    `, strings.TrimSpace(name), provider, model).Scan(&id)
	if err != nil {
		return 0, err
	}
	_, err = db.Exec(ctx, `INSERT INTO player_ratings(player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`, id)
	return id, err
}

// PlayerGlicko reads the career Glicko-2 rating, defaulting for unknown players.
func (db *DB) PlayerGlicko(ctx context.Context, playerID int64) (rating.Glicko, error) {
	var g rating.Glicko
	err := db.QueryRow(ctx, `
		SELECT g_rating, g_rd, g_sigma FROM player_ratings WHERE player_id = $1
	`, playerID).Scan(&g.Rating, &g.RD, &g.Volatility)
	if errors.Is(err, pgx.ErrNoRows) {
		return rating.NewGlicko(), nil
	}
	return g, err
}

func (db *DB) CreateMatch(ctx context.Context, info match.Info, playerA, playerB int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO matches(id, player_a, player_b, rounds_planned, elo_start, elo_k, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, info.ID, playerA, playerB, info.Rounds, info.EloStart, info.EloK, info.StartedAt)
	return err
}

// InsertRound stores the round row, both decisions and the round's chat atomically.
func (db *DB) InsertRound(ctx context.Context, r match.RoundResult) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	if _, err := tx.Exec(ctx, `
		INSERT INTO rounds(match_id, round, first_mover, winner, elo_a, elo_b)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, r.MatchID, r.Round, r.Plays[0].Player, r.Winner, r.Elo[0], r.Elo[1]); err != nil {
		return err
	}
	for _, p := range r.Plays {
		d := p.Decision
		if _, err := tx.Exec(ctx, `
            INSERT INTO decisions(match_id, round, player, move, rationale, chat, fallback, revised_from)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        `, r.MatchID, r.Round, p.Player, string(d.Move), d.Rationale, d.Chat, d.Fallback, string(d.RevisedFrom)); err != nil {
			return err
		}
	}
	for _, l := range r.Chat {
		if err := insertChat(ctx, tx, r.MatchID, l); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (db *DB) InsertChat(ctx context.Context, matchID string, l engine.ChatLine) error {
	return insertChat(ctx, db, matchID, l)
}

func insertChat(ctx context.Context, q execer, matchID string, l engine.ChatLine) error {
	_, err := q.Exec(ctx, `
		INSERT INTO chat_lines(match_id, round, speaker, text, kind)
		VALUES ($1,$2,$3,$4,$5)
	`, matchID, l.Round, l.Speaker, l.Text, string(l.Kind))
	return err
}

func (db *DB) InsertFailure(ctx context.Context, matchID string, round int, cause string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO round_failures(match_id, round, error)
		VALUES ($1,$2,$3)
		ON CONFLICT (match_id, round) DO UPDATE SET error = EXCLUDED.error
	`, matchID, round, cause)
	return err
}

// CompleteMatch stamps the final tallies and ratings.
func (db *DB) CompleteMatch(ctx context.Context, rep match.Report) error {
	a, b := rep.Players[0], rep.Players[1]
	_, err := db.Exec(ctx, `
		UPDATE matches
		   SET wins_a = $2,
		       wins_b = $3,
		       ties = $4,
		       failed_rounds = $5,
		       elo_a = $6,
		       elo_b = $7,
		       ended_at = now()
		 WHERE id = $1
	`, rep.ID, rep.Standings.Wins(a), rep.Standings.Wins(b), rep.Standings.Ties,
		len(rep.Failures), rep.Ratings.EloA, rep.Ratings.EloB)
	return err
}

// RatingUpdate is one match's contribution to a player's career.
type RatingUpdate struct {
	EloDelta float64
	Opponent rating.Glicko // as of the start of the match
	Score    float64
	Rounds   int
	Wins     int
	Ties     int
}

// UpdatePlayerRating locks the player's ratings row, applies one Glicko-2
// period against u.Opponent on top of the current rating, adds the Elo delta
// and increments career counters. Concurrent matches of the same player
// serialize on the row lock.
func (db *DB) UpdatePlayerRating(ctx context.Context, playerID int64, u RatingUpdate) (rating.Glicko, error) {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return rating.Glicko{}, err
	}
	defer tx.Rollback(ctx) // safe if already committed

	var cur rating.Glicko
	if err := tx.QueryRow(ctx, `
		SELECT g_rating, g_rd, g_sigma
		  FROM player_ratings
		 WHERE player_id = $1
		   FOR UPDATE
	`, playerID).Scan(&cur.Rating, &cur.RD, &cur.Volatility); err != nil {
		return rating.Glicko{}, err
	}
	next := rating.UpdateGlicko(cur, u.Opponent, u.Score, rating.DefaultTau)

	if _, err := tx.Exec(ctx, `
		UPDATE player_ratings
		   SET elo = elo + $2,
		       g_rating = $3,
		       g_rd = $4,
		       g_sigma = $5,
		       matches = matches + 1,
		       rounds = rounds + $6,
		       wins = wins + $7,
		       ties = ties + $8,
		       updated_at = now()
		 WHERE player_id = $1
	`, playerID, u.EloDelta, next.Rating, next.RD, next.Volatility, u.Rounds, u.Wins, u.Ties); err != nil {
		return rating.Glicko{}, err
	}
	return next, tx.Commit(ctx)
}
