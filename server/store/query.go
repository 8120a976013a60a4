package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type MatchRow struct {
	ID            string     `json:"id"`
	PlayerA       string     `json:"player_a"`
	PlayerB       string     `json:"player_b"`
	RoundsPlanned int        `json:"rounds_planned"`
	WinsA         int        `json:"wins_a"`
	WinsB         int        `json:"wins_b"`
	Ties          int        `json:"ties"`
	FailedRounds  int        `json:"failed_rounds"`
	EloStart      float64    `json:"elo_start"`
	EloK          float64    `json:"elo_k"`
	EloA          *float64   `json:"elo_a"`
	EloB          *float64   `json:"elo_b"`
	CreatedAt     time.Time  `json:"created_at"`
	EndedAt       *time.Time `json:"ended_at"`
}

type DecisionRow struct {
	Player      string `json:"player"`
	Move        string `json:"move"`
	Rationale   string `json:"rationale"`
	Chat        string `json:"chat"`
	Fallback    bool   `json:"fallback"`
	RevisedFrom string `json:"revised_from,omitempty"`
}

type RoundRow struct {
	Round      int           `json:"round"`
	FirstMover string        `json:"first_mover"`
	Winner     string        `json:"winner"`
	EloA       float64       `json:"elo_a"`
	EloB       float64       `json:"elo_b"`
	Decisions  []DecisionRow `json:"decisions"`
}

type ChatRow struct {
	Round   int       `json:"round"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"created_at"`
}

type FailureRow struct {
	Round int    `json:"round"`
	Error string `json:"error"`
}

// Bundle is one match with everything recorded for it.
type Bundle struct {
	Match    MatchRow     `json:"match"`
	Rounds   []RoundRow   `json:"rounds"`
	Chat     []ChatRow    `json:"chat"`
	Failures []FailureRow `json:"failures"`
}

type LeaderRow struct {
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Elo        float64   `json:"elo"`
	GRating    float64   `json:"g_rating"`
	GRD        float64   `json:"g_rd"`
	Matches    int       `json:"matches"`
	Rounds     int       `json:"rounds"`
	Wins       int       `json:"wins"`
	Ties       int       `json:"ties"`
	WinRatePct int       `json:"win_rate_pct"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const matchColumns = `
       m.id, pa.name, pb.name, m.rounds_planned,
       m.wins_a, m.wins_b, m.ties, m.failed_rounds,
       m.elo_start, m.elo_k, m.elo_a, m.elo_b,
       m.created_at, m.ended_at
  FROM matches m
  JOIN players pa ON pa.id = m.player_a
  JOIN players pb ON pb.id = m.player_b`

func scanMatch(row pgx.Row) (MatchRow, error) {
	var m MatchRow
	err := row.Scan(&m.ID, &m.PlayerA, &m.PlayerB, &m.RoundsPlanned,
		&m.WinsA, &m.WinsB, &m.Ties, &m.FailedRounds,
		&m.EloStart, &m.EloK, &m.EloA, &m.EloB,
		&m.CreatedAt, &m.EndedAt)
	return m, err
}

func (db *DB) LastMatchID(ctx context.Context) (string, error) {
	var id string
	err := db.QueryRow(ctx, `SELECT id FROM matches ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (db *DB) RecentMatches(ctx context.Context, limit int) ([]MatchRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := db.Query(ctx, `SELECT`+matchColumns+` ORDER BY m.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MatchRow{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) MatchBundle(ctx context.Context, id string) (Bundle, error) {
	m, err := scanMatch(db.QueryRow(ctx, `SELECT`+matchColumns+` WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Bundle{}, ErrNotFound
	}
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{Match: m, Rounds: []RoundRow{}, Chat: []ChatRow{}, Failures: []FailureRow{}}

	// rounds
	rows, err := db.Query(ctx, `
		SELECT round, first_mover, winner, elo_a, elo_b
		  FROM rounds
		 WHERE match_id = $1
		 ORDER BY round
	`, id)
	if err != nil {
		return Bundle{}, err
	}
	idx := map[int]int{}
	for rows.Next() {
		var r RoundRow
		if err := rows.Scan(&r.Round, &r.FirstMover, &r.Winner, &r.EloA, &r.EloB); err != nil {
			rows.Close()
			return Bundle{}, err
		}
		idx[r.Round] = len(b.Rounds)
		b.Rounds = append(b.Rounds, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Bundle{}, err
	}

	// decisions, attached to their round
	rows, err = db.Query(ctx, `
		SELECT d.round, d.player, d.move, d.rationale, d.chat, d.fallback, d.revised_from
		  FROM decisions d
		  JOIN rounds r ON r.match_id = d.match_id AND r.round = d.round
		 WHERE d.match_id = $1
		 ORDER BY d.round, (d.player = r.first_mover) DESC
	`, id)
	if err != nil {
		return Bundle{}, err
	}
	for rows.Next() {
		var n int
		var d DecisionRow
		if err := rows.Scan(&n, &d.Player, &d.Move, &d.Rationale, &d.Chat, &d.Fallback, &d.RevisedFrom); err != nil {
			rows.Close()
			return Bundle{}, err
		}
		if i, ok := idx[n]; ok {
			b.Rounds[i].Decisions = append(b.Rounds[i].Decisions, d)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Bundle{}, err
	}

	// chat
	rows, err = db.Query(ctx, `
		SELECT round, speaker, text, kind, created_at
		  FROM chat_lines
		 WHERE match_id = $1
		 ORDER BY id
	`, id)
	if err != nil {
		return Bundle{}, err
	}
	for rows.Next() {
		var c ChatRow
		if err := rows.Scan(&c.Round, &c.Speaker, &c.Text, &c.Kind, &c.At); err != nil {
			rows.Close()
			return Bundle{}, err
		}
		b.Chat = append(b.Chat, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Bundle{}, err
	}

	// failures
	rows, err = db.Query(ctx, `SELECT round, error FROM round_failures WHERE match_id = $1 ORDER BY round`, id)
	if err != nil {
		return Bundle{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var f FailureRow
		if err := rows.Scan(&f.Round, &f.Error); err != nil {
			return Bundle{}, err
		}
		b.Failures = append(b.Failures, f)
	}
	return b, rows.Err()
}

// Leaderboard lists career ratings, best first.
func (db *DB) Leaderboard(ctx context.Context) ([]LeaderRow, error) {
	rows, err := db.Query(ctx, `
        SELECT p.name, p.provider, p.model,
               COALESCE(r.elo, 1500),
               COALESCE(r.g_rating, 1500),
               COALESCE(r.g_rd, 350),
               COALESCE(r.matches, 0),
               COALESCE(r.rounds, 0),
               COALESCE(r.wins, 0),
               COALESCE(r.ties, 0),
               ROUND(100.0 * COALESCE(r.wins::float / NULLIF(r.rounds, 0), 0))::int,
               COALESCE(r.updated_at, p.created_at)
          FROM players p
          LEFT JOIN player_ratings r ON r.player_id = p.id
         ORDER BY COALESCE(r.elo, 1500) DESC, r.matches DESC, p.name
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LeaderRow{}
	for rows.Next() {
		var x LeaderRow
		if err := rows.Scan(&x.Name, &x.Provider, &x.Model, &x.Elo, &x.GRating, &x.GRD, &x.Matches, &x.Rounds, &x.Wins, &x.Ties, &x.WinRatePct, &x.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}
