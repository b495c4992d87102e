package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/config"
	"github.com/battlelab/matchup/internal/store"
	"github.com/battlelab/matchup/internal/worker"
)

func main() {
	cfg, err := config.LoadLabelGen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	newLogger := zap.NewDevelopment
	if cfg.Env == "production" {
		newLogger = zap.NewProduction
	}
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("Failed to connect to Postgres", "error", err)
	}
	defer pg.Close()

	roster, err := store.NewRosterStore(pg).LoadRoster(ctx)
	if err != nil {
		sugar.Fatalw("Failed to load roster", "error", err)
	}
	sugar.Infow("Roster loaded", "combatants", len(roster))

	runID := uuid.NewString()
	var sink worker.Sink
	switch cfg.Sink {
	case config.SinkClickHouse:
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			sugar.Fatalw("Invalid CLICKHOUSE_URL", "error", err)
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			sugar.Fatalw("Failed to open ClickHouse", "error", err)
		}
		defer conn.Close()
		if err := conn.Ping(ctx); err != nil {
			sugar.Fatalw("ClickHouse unreachable", "error", err)
		}
		chSink := worker.NewClickHouseSink(conn, cfg.Table)
		if err := chSink.EnsureTable(ctx); err != nil {
			sugar.Fatalw("Failed to create examples table", "table", cfg.Table, "error", err)
		}
		sink = chSink
	case config.SinkCSV:
		csvSink, err := worker.NewCSVSink(cfg.OutputDir, runID)
		if err != nil {
			sugar.Fatalw("Failed to prepare output directory", "dir", cfg.OutputDir, "error", err)
		}
		sink = csvSink
	}

	chart := battle.MustDefaultTypeChart()
	damage := battle.NewDamageModel(chart)
	gen := worker.NewGenerator(worker.GeneratorConfig{
		RunID:       runID,
		WorkerCount: cfg.WorkerCount,
		BatchSize:   cfg.BatchSize,
		Seed:        cfg.Seed,
		Simulator:   battle.NewSimulator(damage, cfg.MaxTurns),
		Selector:    battle.NewMoveSelector(damage),
		Chart:       chart,
		Logger:      logger,
	})

	summary, genErr := gen.Generate(ctx, roster, sink)
	if err := sink.Close(); err != nil {
		sugar.Errorw("Failed to close sink", "error", err)
	}
	if genErr != nil {
		sugar.Fatalw("Label generation failed", "runID", runID, "examples", summary.Examples, "error", genErr)
	}

	sugar.Infow("Run complete",
		"runID", summary.RunID,
		"sink", cfg.Sink,
		"pairs", summary.Pairs,
		"examples", summary.Examples,
		"skipped", summary.Skipped,
		"duration", summary.Duration,
	)
}
