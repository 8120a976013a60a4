package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"rps-thunderdome/server/store"
)

type fakeStore struct {
	pingErr error
	bundles map[string]store.Bundle
	last    string
	board   []store.LeaderRow
	limit   int
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) LastMatchID(context.Context) (string, error) {
	if f.last == "" {
		return "", store.ErrNotFound
	}
	return f.last, nil
}

func (f *fakeStore) MatchBundle(_ context.Context, id string) (store.Bundle, error) {
	b, ok := f.bundles[id]
	if !ok {
		return store.Bundle{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) RecentMatches(_ context.Context, limit int) ([]store.MatchRow, error) {
	f.limit = limit
	var out []store.MatchRow
	for _, b := range f.bundles {
		out = append(out, b.Match)
	}
	return out, nil
}

func (f *fakeStore) Leaderboard(context.Context) ([]store.LeaderRow, error) { return f.board, nil }

func newTestServer(t *testing.T, fs *fakeStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Router(fs, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestRouterMatches(t *testing.T) {
	fs := &fakeStore{
		last: "m1",
		bundles: map[string]store.Bundle{
			"m1": {Match: store.MatchRow{ID: "m1", PlayerA: "GPT-4o", PlayerB: "Claude", WinsA: 2}},
		},
		board: []store.LeaderRow{{Name: "GPT-4o", Elo: 1520}},
	}
	srv := newTestServer(t, fs)

	var b store.Bundle
	if code := getJSON(t, srv.URL+"/api/last-match", &b); code != http.StatusOK || b.Match.ID != "m1" {
		t.Fatalf("last-match: %d %+v", code, b.Match)
	}
	if code := getJSON(t, srv.URL+"/api/matches/m1", &b); code != http.StatusOK || b.Match.WinsA != 2 {
		t.Fatalf("matches/m1: %d %+v", code, b.Match)
	}
	if code := getJSON(t, srv.URL+"/api/matches/nope", nil); code != http.StatusNotFound {
		t.Fatalf("unknown match should 404, got %d", code)
	}

	var list struct {
		Rows []store.MatchRow `json:"rows"`
	}
	if code := getJSON(t, srv.URL+"/api/matches?limit=5", &list); code != http.StatusOK || len(list.Rows) != 1 || fs.limit != 5 {
		t.Fatalf("matches: %d %+v limit=%d", code, list.Rows, fs.limit)
	}

	var board struct {
		Rows []store.LeaderRow `json:"rows"`
	}
	if code := getJSON(t, srv.URL+"/api/leaderboard", &board); code != http.StatusOK || len(board.Rows) != 1 || board.Rows[0].Elo != 1520 {
		t.Fatalf("leaderboard: %d %+v", code, board.Rows)
	}
}

func TestRouterEmptyAndHealth(t *testing.T) {
	fs := &fakeStore{}
	srv := newTestServer(t, fs)
	if code := getJSON(t, srv.URL+"/api/last-match", nil); code != http.StatusNotFound {
		t.Fatalf("empty store should 404, got %d", code)
	}
	if code := getJSON(t, srv.URL+"/api/health", nil); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	fs.pingErr = errors.New("db down")
	if code := getJSON(t, srv.URL+"/api/health", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("health with db down: %d", code)
	}
}
