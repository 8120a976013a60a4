package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rps-thunderdome/server/store"
)

// ReportStore is the read side the HTTP API needs.
type ReportStore interface {
	Ping(ctx context.Context) error
	LastMatchID(ctx context.Context) (string, error)
	MatchBundle(ctx context.Context, id string) (store.Bundle, error)
	RecentMatches(ctx context.Context, limit int) ([]store.MatchRow, error)
	Leaderboard(ctx context.Context) ([]store.LeaderRow, error)
}

func Router(db ReportStore, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Health
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	// Latest match bundle
	r.Get("/api/last-match", func(w http.ResponseWriter, r *http.Request) {
		id, err := db.LastMatchID(r.Context())
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no matches yet", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeBundle(w, r, db, id)
	})

	// Recent matches for history page
	r.Get("/api/matches", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := db.RecentMatches(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"rows": rows})
	})

	r.Get("/api/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeBundle(w, r, db, chi.URLParam(r, "id"))
	})

	// Leaderboard: career Elo
	r.Get("/api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Leaderboard(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"rows": rows})
	})

	return r
}

func writeBundle(w http.ResponseWriter, r *http.Request, db ReportStore, id string) {
	b, err := db.MatchBundle(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, b)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"dur", time.Since(start), "req", middleware.GetReqID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
