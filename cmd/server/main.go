package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/palstack/assesshub/internal/api"
	"github.com/palstack/assesshub/internal/config"
	"github.com/palstack/assesshub/internal/db"
	"github.com/palstack/assesshub/internal/middleware"
	"github.com/palstack/assesshub/internal/retention"
	"github.com/palstack/assesshub/internal/seed"
	"github.com/palstack/assesshub/internal/services"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		logger.Warn("ASSESSHUB_JWT_SECRET not set, using dev secret")
	}

	store, err := db.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedFile != "" {
		n, err := seed.Load(ctx, store, cfg.SeedFile)
		if err != nil {
			logger.Fatal("seed assessments", zap.Error(err))
		}
		logger.Info("seeded assessments", zap.Int("count", n), zap.String("file", cfg.SeedFile))
	}

	var provider services.CoachingProvider
	if cfg.CoachingEnabled {
		// No real provider ships yet; the flag only surfaces the placeholder
		// path for integration work.
		logger.Warn("coaching enabled without a provider, requests stay disabled")
	}

	router := api.NewRouter(api.Options{
		Store:            store,
		Signer:           middleware.SignToken,
		TokenTTL:         cfg.TokenTTL,
		DefaultLab:       cfg.DefaultLab,
		CoachingProvider: provider,
		Logger:           logger,
	})
	router.Runs().RegisterScorer("likert_sum", services.LikertSumScorer)

	mux := http.NewServeMux()
	router.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "AssessHub API",
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})

	sweeper, err := retention.New(store, cfg.RetentionWindow, cfg.RetentionSpec, logger)
	if err != nil {
		logger.Fatal("parse retention schedule", zap.Error(err))
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	handler := middleware.CORS(middleware.SecureHeaders(middleware.NoStore(middleware.WithAuth(mux))))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
