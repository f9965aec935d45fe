package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/ledger-engine/internal/api"
	"github.com/atmx/ledger-engine/internal/config"
	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/pricing"
	"github.com/atmx/ledger-engine/internal/scheduler"
	"github.com/atmx/ledger-engine/internal/session"
	"github.com/atmx/ledger-engine/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ledger-engine failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("ledger-engine stopped")
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, cleanup, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer cleanup()

	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}

	// --- WebSocket hub ---
	hub := api.NewHub()

	// --- Ledger and market ---
	led := ledger.New(st, ledger.WithPolicy(cfg.Policy()), ledger.WithObserver(hub.PublishEntry))
	engine, err := pricing.NewEngine(cat, st, pricing.Config{
		Seed:          cfg.Market.Seed,
		TicksPerRound: cfg.Market.TicksPerRound,
		FinalRound:    cfg.Game.FinalRound,
	}, hub.PublishMarket)
	if err != nil {
		return err
	}
	if err := engine.EnsureMarket(ctx); err != nil {
		return fmt.Errorf("seed market: %w", err)
	}

	accounts, err := led.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(accounts) == 0 {
		if err := led.Reset(ctx, cfg.Game.Teams, cfg.Game.StarterCash); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
	}

	sched := scheduler.New(ctx, engine, cfg.Market.TicksPerRound, cfg.Market.AutoEndRound)
	if err := sched.Register(cfg.Market.TickCron); err != nil {
		return err
	}

	svc := api.NewService(led, engine, session.NewLocks(), api.Game{
		Teams:       cfg.Game.Teams,
		StarterCash: cfg.Game.StarterCash,
		Currency:    cfg.Game.Currency,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS for the facilitator dashboard.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ledger-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived; kept outside the request timeout.
		r.Get("/ws", hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		slog.Info("ledger-engine listening", "port", cfg.Server.Port, "policy", cfg.Policy(), "stocks", cat.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down ledger-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
