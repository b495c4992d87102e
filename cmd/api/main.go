package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/config"
	"github.com/battlelab/matchup/internal/handlers"
	"github.com/battlelab/matchup/internal/logic"
	"github.com/battlelab/matchup/internal/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chart := battle.MustDefaultTypeChart()
	damage := battle.NewDamageModel(chart)

	srcCfg := model.SourceConfig{
		Local:  model.NewLocalArtifacts(cfg.ArtifactDir),
		Chart:  chart,
		Logger: logger,
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			sugar.Fatalw("Invalid REDIS_URL", "error", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		srcCfg.Registry = model.NewRedisRegistry(model.NewRedisKV(rdb))
	} else {
		sugar.Warnw("REDIS_URL not set, serving from local artifacts only", "dir", cfg.ArtifactDir)
	}
	source := model.NewSource(srcCfg)

	// Refuse to serve without a model.
	bundle, err := source.Resolve(ctx, cfg.ModelName, cfg.ModelStage)
	if err != nil {
		sugar.Fatalw("Failed to resolve model bundle", "model", cfg.ModelName, "stage", cfg.ModelStage, "error", err)
	}
	sugar.Infow("Serving model",
		"model", bundle.Name,
		"version", bundle.Version,
		"stage", bundle.Stage,
		"source", bundle.Source,
		"schema", bundle.SchemaVersion,
	)

	prediction := logic.NewPredictionService(
		source,
		battle.NewMoveSelector(damage),
		logic.PredictionConfig{ModelName: cfg.ModelName, ModelStage: cfg.ModelStage},
		logger,
	)

	h := handlers.New(handlers.Config{
		Prediction:     prediction,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sugar.Infow("HTTP server listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("HTTP server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("Graceful shutdown failed", "error", err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
