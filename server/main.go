package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rps-thunderdome/server/agent"
	"rps-thunderdome/server/config"
	"rps-thunderdome/server/llm"
	"rps-thunderdome/server/match"
	"rps-thunderdome/server/store"
	"rps-thunderdome/server/transcript"
)

type app struct {
	cfg config.Config
	log *slog.Logger
}

func main() {
	_ = godotenv.Load()
	// Load API keys from secret files if present (before config parsing)
	config.LoadAPIKeysFromSecrets()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		rounds  int
		variant string
		seed    int64
	)
	root := &cobra.Command{
		Use:           "thunderdome",
		Short:         "Rock-paper-scissors between language models",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("rounds") {
				cfg.Rounds = rounds
			}
			if flags.Changed("variant") {
				cfg.Protocol.Variant = variant
			}
			if flags.Changed("seed") {
				cfg.Seed = seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			useColor = cfg.ColorEnabled()
			a.cfg = cfg
			a.log = newLogger(os.Stderr, cfg.Debug, useColor)
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.IntVarP(&rounds, "rounds", "n", 10, "rounds per match (overrides ROUNDS)")
	pf.StringVar(&variant, "variant", "structured", "decision protocol: structured or legacy")
	pf.Int64Var(&seed, "seed", 0, "random seed; 0 picks one from the clock")

	root.AddCommand(
		&cobra.Command{
			Use:   "play",
			Short: "Play one match between PLAYER_A and PLAYER_B",
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.runPlay(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "series",
			Short: "Play every pair of MODELS once, with bounded parallelism",
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.runSeries(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the reporting API over stored matches",
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.runServe(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.runMigrate(cmd.Context()) },
		},
	)
	return root
}

func (a *app) runPlay(ctx context.Context) error {
	db := a.openStore(ctx)
	if db != nil {
		defer db.Close()
	}
	fmt.Println(dim("Ctrl+C → stop now; the report covers completed rounds."))

	m, err := a.newMatch(a.cfg.PlayerA, a.cfg.PlayerB, 0, db, newConsole(os.Stdout, nil, ""))
	if err != nil {
		return err
	}
	rep, err := m.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println(warn("Match stopped early by user."))
	}
	a.log.Info("match finished", "match", rep.ID, "scoreboard", rep.Standings.String())
	return nil
}

func (a *app) runSeries(ctx context.Context) error {
	players := a.cfg.SeriesPlayers()
	if len(players) < 2 {
		return errors.New("need at least two comma-separated models in MODELS for series")
	}
	db := a.openStore(ctx)
	if db != nil {
		defer db.Close()
	}

	var mu sync.Mutex
	var matches []*match.Match
	n := 0
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			pa, pb := players[i], players[j]
			tag := fmt.Sprintf("%s vs %s", pa.Name, pb.Name)
			m, err := a.newMatch(pa, pb, n, db, newConsole(os.Stdout, &mu, tag))
			if err != nil {
				return fmt.Errorf("%s: %w", tag, err)
			}
			matches = append(matches, m)
			n++
		}
	}
	a.log.Info("series starting", "matches", len(matches), "parallelism", a.cfg.SeriesParallelism)

	reports, err := match.RunSeries(ctx, matches, a.cfg.SeriesParallelism)
	fmt.Printf("\n%s %s %s\n", dim("──"), bold("Series"), dim("──"))
	for _, rep := range reports {
		if rep.ID == "" {
			continue
		}
		fmt.Printf("  %s %s %s  %s\n", bold(rep.Players[0]), dim("vs"), bold(rep.Players[1]), rep.Standings.String())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) runServe(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for serve")
	}
	db, err := store.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if a.cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           Router(db, a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.log.Info("listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) runMigrate(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	db, err := store.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println(good("Migration applied."))
	return nil
}

// openStore returns nil when persistence is off or unavailable; matches run
// either way.
func (a *app) openStore(ctx context.Context) *store.DB {
	if a.cfg.DatabaseURL == "" {
		return nil
	}
	db, err := store.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		a.log.Warn("DB disabled (open failed)", "err", err)
		return nil
	}
	if a.cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			a.log.Warn("migrate failed (continuing without DB)", "err", err)
			db.Close()
			return nil
		}
	}
	return db
}

// newMatch wires two players into a match with every recorder enabled for
// this run. idx keeps seeded series runs distinct.
func (a *app) newMatch(pa, pb config.Player, idx int, db *store.DB, con *console) (*match.Match, error) {
	seed := a.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	seed += int64(idx) * 1000

	meta := map[string]store.PlayerMeta{}
	var agents [2]*agent.Agent
	for i, p := range []config.Player{pa, pb} {
		lc, err := a.cfg.LLM(p)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", p.Name, err)
		}
		client, err := llm.New(lc, nil)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", p.Name, err)
		}
		meta[p.Name] = store.PlayerMeta{Provider: string(lc.Provider), Model: lc.Model}
		agents[i] = agent.New(p.Name, client, agent.Options{
			Protocol: a.cfg.AgentProtocol(),
			Rand:     rand.New(rand.NewSource(seed + int64(i) + 1)),
			Logger:   a.log.With("agent", p.Name),
		})
		a.log.Debug("player ready", "name", p.Name, "provider", lc.Label(), "model", lc.Model)
	}

	recs := []match.Recorder{con, transcript.New(a.cfg.LogDir)}
	if db != nil {
		recs = append(recs, store.NewRecorder(db, a.log, meta))
	}
	return match.New(
		match.Config{Rounds: a.cfg.Rounds, EloStart: a.cfg.EloStart, EloK: a.cfg.EloK},
		agents[0], agents[1],
		match.WithRand(rand.New(rand.NewSource(seed))),
		match.WithLogger(a.log),
		match.WithRecorders(recs...),
	)
}
