// Package worker generates labeled training examples in parallel.
// Every ordered roster pair is simulated exactly once per run:
// - Workers own disjoint shards (roster rows i with i % workers == shard)
// - Each pair draws from its own PCG stream seeded by (seed, pair index)
// - Rows are batched per worker and flushed to a Sink by size
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/features"
	"github.com/battlelab/matchup/internal/models"
)

// Prometheus metrics
var (
	examplesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchup_labelgen_examples_total",
		Help: "Total number of labeled examples generated",
	})

	pairsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchup_labelgen_pairs_skipped_total",
		Help: "Pairs skipped because a side has no offensive move",
	})

	batchFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchup_labelgen_batch_flush_duration_seconds",
		Help:    "Duration of batch writes to the example sink",
		Buckets: prometheus.DefBuckets,
	})

	batchFlushFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchup_labelgen_batch_flush_failed_total",
		Help: "Total number of batch writes that failed",
	})
)

// Sink receives flushed batches. Write is called concurrently for different
// shards but never concurrently for the same shard. The batch slice is reused
// after Write returns.
type Sink interface {
	Write(ctx context.Context, shard int, batch []models.Example) error
	Close() error
}

// GeneratorConfig configures label generation
type GeneratorConfig struct {
	// RunID stamps every example; a fresh UUID is used when empty.
	RunID       string
	WorkerCount int
	BatchSize   int
	Seed        uint64
	Simulator   *battle.Simulator
	Selector    *battle.MoveSelector
	Chart       features.Effectiveness
	Logger      *zap.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Pairs    uint64
	Examples uint64
	Skipped  uint64
	Duration time.Duration
}

// Generator turns a roster into labeled examples.
type Generator struct {
	config GeneratorConfig
	logger *zap.SugaredLogger
}

// NewGenerator creates a generator, defaulting unset sizing.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Chart == nil {
		cfg.Chart = battle.MustDefaultTypeChart()
	}
	if cfg.Simulator == nil || cfg.Selector == nil {
		dm := battle.NewDamageModel(battle.MustDefaultTypeChart())
		if cfg.Simulator == nil {
			cfg.Simulator = battle.NewSimulator(dm, battle.DefaultMaxTurns)
		}
		if cfg.Selector == nil {
			cfg.Selector = battle.NewMoveSelector(dm)
		}
	}
	return &Generator{config: cfg, logger: cfg.Logger.Sugar()}
}

// PairIndex is the stable index of the ordered pair (i, j) in a roster of n.
// It seeds the pair's RNG stream, so a pair's outcome does not depend on
// worker count or scheduling.
func PairIndex(i, j, n int) uint64 {
	return uint64(i)*uint64(n) + uint64(j)
}

// Generate simulates every ordered pair (i != j) and writes the examples to
// sink. The sink is not closed.
func (g *Generator) Generate(ctx context.Context, roster []models.Combatant, sink Sink) (Summary, error) {
	start := time.Now()
	runID := g.config.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := Summary{RunID: runID}

	for i, c := range roster {
		if err := c.Validate(fmt.Sprintf("roster[%d].", i)); err != nil {
			return summary, err
		}
	}

	workers := g.config.WorkerCount
	if workers > len(roster) {
		workers = len(roster)
	}

	g.logger.Infow("Label generation started",
		"runID", summary.RunID,
		"roster", len(roster),
		"workers", workers,
		"batchSize", g.config.BatchSize,
		"seed", g.config.Seed,
	)

	var pairs, examples, skipped atomic.Uint64
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		shard := w
		eg.Go(func() error {
			st, err := g.runShard(ctx, summary.RunID, shard, workers, roster, sink)
			pairs.Add(st.pairs)
			examples.Add(st.examples)
			skipped.Add(st.skipped)
			return err
		})
	}
	err := eg.Wait()

	summary.Pairs = pairs.Load()
	summary.Examples = examples.Load()
	summary.Skipped = skipped.Load()
	summary.Duration = time.Since(start)

	if err != nil {
		g.logger.Errorw("Label generation failed", "runID", summary.RunID, "examples", summary.Examples, "error", err)
		return summary, err
	}
	g.logger.Infow("Label generation finished",
		"runID", summary.RunID,
		"pairs", summary.Pairs,
		"examples", summary.Examples,
		"skipped", summary.Skipped,
		"duration", summary.Duration,
	)
	return summary, nil
}

type shardStats struct {
	pairs, examples, skipped uint64
}

func (g *Generator) runShard(ctx context.Context, runID string, shard, workers int, roster []models.Combatant, sink Sink) (shardStats, error) {
	var st shardStats
	batch := make([]models.Example, 0, g.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		err := sink.Write(ctx, shard, batch)
		batchFlushDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			batchFlushFailed.Inc()
			return fmt.Errorf("shard %d: failed to write batch of %d: %w", shard, len(batch), err)
		}
		st.examples += uint64(len(batch))
		examplesGenerated.Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	n := len(roster)
	for i := shard; i < n; i += workers {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if err := ctx.Err(); err != nil {
				return st, err
			}
			st.pairs++

			ex, err := g.label(runID, shard, roster[i], roster[j], PairIndex(i, j, n))
			if errors.Is(err, battle.ErrNoOffensiveMove) {
				st.skipped++
				pairsSkipped.Inc()
				continue
			}
			if err != nil {
				return st, err
			}

			batch = append(batch, ex)
			if len(batch) >= g.config.BatchSize {
				if err := flush(); err != nil {
					return st, err
				}
			}
		}
	}
	return st, flush()
}

// label plays both sides' locally best move and simulates with the pair's
// seeded stream.
func (g *Generator) label(runID string, shard int, a, b models.Combatant, pairIndex uint64) (models.Example, error) {
	moveA, err := g.config.Selector.BestOffensiveMove(a, b)
	if err != nil {
		return models.Example{}, err
	}
	moveB, err := g.config.Selector.BestOffensiveMove(b, a)
	if err != nil {
		return models.Example{}, err
	}

	m := models.Matchup{A: a, B: b, MoveA: moveA, MoveB: moveB}
	rng := rand.New(rand.NewPCG(g.config.Seed, pairIndex))
	outcome, err := g.config.Simulator.Simulate(m, rng)
	if err != nil {
		return models.Example{}, fmt.Errorf("pair %s/%s: %w", a.ID, b.ID, err)
	}
	vec, err := features.Raw(m, g.config.Chart)
	if err != nil {
		return models.Example{}, fmt.Errorf("pair %s/%s: %w", a.ID, b.ID, err)
	}

	return models.Example{
		RunID:      runID,
		Shard:      shard,
		PairIndex:  pairIndex,
		CombatantA: a.ID,
		CombatantB: b.ID,
		MoveA:      moveA.ID,
		MoveB:      moveB.ID,
		Features:   vec,
		Winner:     outcome.Winner,
		Turns:      outcome.Turns,
		TurnCap:    outcome.TurnCap,
	}, nil
}

// Stream runs Generate in the background and delivers examples on the
// returned channel, which is closed when the run ends. The error channel
// yields at most one value.
func (g *Generator) Stream(ctx context.Context, roster []models.Combatant) (<-chan models.Example, <-chan error) {
	out := make(chan models.Example, g.config.BatchSize)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		if _, err := g.Generate(ctx, roster, NewChannelSink(out)); err != nil {
			errc <- err
		}
	}()
	return out, errc
}
