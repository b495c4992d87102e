package logic

import (
	"context"

	"github.com/battlelab/matchup/internal/model"
	"github.com/battlelab/matchup/internal/models"
)

// BundleResolver provides the cached scoring bundle.
type BundleResolver interface {
	Resolve(ctx context.Context, name, stage string) (*model.Bundle, error)
	Reload(ctx context.Context, name, stage string) (*model.Bundle, error)
	Current(name, stage string) (*model.Bundle, bool)
}

// PredictionService is the serving surface consumed by the request layer.
type PredictionService interface {
	PredictBest(ctx context.Context, a, b models.Combatant, candidates []models.Move, opponentMove *models.Move) (*models.PredictionResult, error)
	ReloadModel(ctx context.Context) (*model.Bundle, error)
	Ready() bool
}
