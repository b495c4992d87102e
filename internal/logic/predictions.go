package logic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/model"
	"github.com/battlelab/matchup/internal/models"
)

var ErrNoCandidates = errors.New("at least one candidate move is required")

var (
	predictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchup_prediction_duration_seconds",
		Help:    "Duration of best-move predictions",
		Buckets: prometheus.DefBuckets,
	})

	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchup_predictions_total",
		Help: "Predictions served by outcome",
	}, []string{"outcome"})

	candidatesScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchup_candidates_scored_total",
		Help: "Candidate moves encoded and scored",
	})
)

// PredictionConfig names the bundle the engine serves.
type PredictionConfig struct {
	ModelName  string
	ModelStage string
}

type predictionService struct {
	source   BundleResolver
	selector *battle.MoveSelector
	cfg      PredictionConfig
	logger   *zap.SugaredLogger
}

// NewPredictionService builds the serving engine. All state beyond the
// source's bundle cache lives in the request.
func NewPredictionService(source BundleResolver, selector *battle.MoveSelector, cfg PredictionConfig, logger *zap.Logger) PredictionService {
	return &predictionService{
		source:   source,
		selector: selector,
		cfg:      cfg,
		logger:   logger.Sugar(),
	}
}

// PredictBest scores every candidate move for a against b and returns them
// ranked by win probability. Equal probabilities keep input order.
func (s *predictionService) PredictBest(ctx context.Context, a, b models.Combatant, candidates []models.Move, opponentMove *models.Move) (*models.PredictionResult, error) {
	start := time.Now()
	defer func() { predictionDuration.Observe(time.Since(start).Seconds()) }()

	res, err := s.predictBest(ctx, a, b, candidates, opponentMove)
	if err != nil {
		var vErr *models.ValidationError
		switch {
		case errors.As(err, &vErr), errors.Is(err, ErrNoCandidates), errors.Is(err, battle.ErrNoOffensiveMove):
			predictionsTotal.WithLabelValues("invalid").Inc()
		default:
			predictionsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	predictionsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *predictionService) predictBest(ctx context.Context, a, b models.Combatant, candidates []models.Move, opponentMove *models.Move) (*models.PredictionResult, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if len(candidates) > models.MaxCandidateMoves {
		return nil, &models.ValidationError{Field: "candidates", Value: len(candidates), Reason: fmt.Sprintf("at most %d candidates", models.MaxCandidateMoves)}
	}
	if err := a.Validate("attacker."); err != nil {
		return nil, err
	}
	if err := b.Validate("defender."); err != nil {
		return nil, err
	}
	for i, mv := range candidates {
		if err := mv.Validate(fmt.Sprintf("candidates[%d].", i)); err != nil {
			return nil, err
		}
	}

	var answer models.Move
	if opponentMove != nil {
		if err := opponentMove.Validate("opponent_move."); err != nil {
			return nil, err
		}
		answer = *opponentMove
	} else {
		mv, err := s.selector.BestOffensiveMove(b, a)
		if err != nil {
			return nil, fmt.Errorf("failed to pick opponent move: %w", err)
		}
		answer = mv
	}

	bundle, err := s.source.Resolve(ctx, s.cfg.ModelName, s.cfg.ModelStage)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model: %w", err)
	}

	ranked := make([]models.MoveScore, 0, len(candidates))
	for i, mv := range candidates {
		vec, err := bundle.Encoder.Encode(models.Matchup{A: a, B: b, MoveA: mv, MoveB: answer})
		if err != nil {
			return nil, fmt.Errorf("failed to encode candidate %d: %w", i, err)
		}
		p, err := bundle.Scorer.Score(vec)
		if err != nil {
			return nil, fmt.Errorf("failed to score candidate %d: %w", i, err)
		}
		ranked = append(ranked, models.MoveScore{Move: mv, Probability: p})
	}
	candidatesScored.Add(float64(len(ranked)))

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})

	s.logger.Debugw("Prediction computed",
		"attacker", a.ID,
		"defender", b.ID,
		"candidates", len(ranked),
		"best", ranked[0].Move.ID,
		"probability", ranked[0].Probability,
		"modelVersion", bundle.Version,
	)

	return &models.PredictionResult{
		Recommended:  ranked[0].Move,
		Probability:  ranked[0].Probability,
		Ranked:       ranked,
		OpponentMove: answer,
		ModelName:    bundle.Name,
		ModelVersion: bundle.Version,
		GeneratedAt:  time.Now(),
	}, nil
}

// ReloadModel is the administrative swap to a newly promoted bundle.
func (s *predictionService) ReloadModel(ctx context.Context) (*model.Bundle, error) {
	b, err := s.source.Reload(ctx, s.cfg.ModelName, s.cfg.ModelStage)
	if err != nil {
		s.logger.Errorw("Model reload failed", "model", s.cfg.ModelName, "stage", s.cfg.ModelStage, "error", err)
		return nil, err
	}
	s.logger.Infow("Model reloaded", "model", b.Name, "version", b.Version, "source", b.Source)
	return b, nil
}

// Ready reports whether a bundle is resolved and requests can be served.
func (s *predictionService) Ready() bool {
	_, ok := s.source.Current(s.cfg.ModelName, s.cfg.ModelStage)
	return ok
}
