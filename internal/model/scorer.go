package model

import (
	"fmt"
	"math"
)

// Scorer maps an encoded feature vector to the probability that side A wins.
type Scorer interface {
	Score(vec []float64) (float64, error)
}

// ScorerKindLogistic is the linear-logistic scorer shipped in bundles.
const ScorerKindLogistic = "logistic"

// Logistic is sigmoid(bias + w·x).
type Logistic struct {
	Weights []float64
	Bias    float64
}

func (l *Logistic) Score(vec []float64) (float64, error) {
	if len(vec) != len(l.Weights) {
		return 0, fmt.Errorf("scorer expects %d features, got %d", len(l.Weights), len(vec))
	}
	z := l.Bias
	for i, x := range vec {
		z += l.Weights[i] * x
	}
	if math.IsNaN(z) {
		return 0, fmt.Errorf("scorer produced NaN")
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(vec []float64) (float64, error)

func (f ScorerFunc) Score(vec []float64) (float64, error) {
	return f(vec)
}
