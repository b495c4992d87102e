package features

import (
	"errors"
	"fmt"

	"github.com/battlelab/matchup/internal/models"
)

var (
	ErrUnknownType     = models.ErrUnknownType
	ErrUnknownCategory = models.ErrUnknownCategory
	ErrColumnMismatch  = errors.New("feature columns do not match schema")
	ErrNonFinite       = errors.New("non-finite feature value")
)

// Effectiveness is the type chart lookup the encoder needs.
type Effectiveness interface {
	Multiplier(attack models.Type, defense []models.Type) (float64, error)
}

// Raw encodes m into the canonical, unscaled column order. This is the form
// written to the training set.
func Raw(m models.Matchup, chart Effectiveness) ([]float64, error) {
	if err := checkCategorical(m); err != nil {
		return nil, err
	}

	v := make([]float64, Width())
	v[offATypes1+int(m.A.Primary())] = 1
	v[offATypes2+int(m.A.Secondary())] = 1
	v[offBTypes1+int(m.B.Primary())] = 1
	v[offBTypes2+int(m.B.Secondary())] = 1
	v[offAMoveType+int(m.MoveA.Type)] = 1
	v[offBMoveType+int(m.MoveB.Type)] = 1
	v[offACat+int(m.MoveA.Category)] = 1
	v[offBCat+int(m.MoveB.Category)] = 1

	effA, err := chart.Multiplier(m.MoveA.Type, m.B.Types)
	if err != nil {
		return nil, fmt.Errorf("a effectiveness: %w", err)
	}
	effB, err := chart.Multiplier(m.MoveB.Type, m.A.Types)
	if err != nil {
		return nil, fmt.Errorf("b effectiveness: %w", err)
	}

	stabA, stabB := 0.0, 0.0
	bonusA, bonusB := 1.0, 1.0
	if m.A.HasType(m.MoveA.Type) {
		stabA, bonusA = 1, models.StabBonus
	}
	if m.B.HasType(m.MoveB.Type) {
		stabB, bonusB = 1, models.StabBonus
	}
	powA, powB := float64(m.MoveA.BasePower()), float64(m.MoveB.BasePower())
	effPowA := powA * bonusA * effA
	effPowB := powB * bonusB * effB

	numeric := map[string]float64{
		ColAHP:               float64(m.A.Stats.HP),
		ColAAttack:           float64(m.A.Stats.Attack),
		ColADefense:          float64(m.A.Stats.Defense),
		ColASpAttack:         float64(m.A.Stats.SpAttack),
		ColASpDefense:        float64(m.A.Stats.SpDefense),
		ColASpeed:            float64(m.A.Stats.Speed),
		ColBHP:               float64(m.B.Stats.HP),
		ColBAttack:           float64(m.B.Stats.Attack),
		ColBDefense:          float64(m.B.Stats.Defense),
		ColBSpAttack:         float64(m.B.Stats.SpAttack),
		ColBSpDefense:        float64(m.B.Stats.SpDefense),
		ColBSpeed:            float64(m.B.Stats.Speed),
		ColAMovePower:        powA,
		ColBMovePower:        powB,
		ColAMoveAccuracy:     float64(m.MoveA.Accuracy),
		ColBMoveAccuracy:     float64(m.MoveB.Accuracy),
		ColAMovePriority:     float64(m.MoveA.Priority),
		ColBMovePriority:     float64(m.MoveB.Priority),
		ColStatSumRatio:      statSumRatio(m.A.Stats, m.B.Stats),
		ColAStab:             stabA,
		ColBStab:             stabB,
		ColAEffectiveness:    effA,
		ColBEffectiveness:    effB,
		ColAEffectivePower:   effPowA,
		ColBEffectivePower:   effPowB,
		ColEffectivePowerDif: effPowA - effPowB,
		ColPriorityAdvantage: float64(m.MoveA.Priority - m.MoveB.Priority),
	}
	for i, c := range numericColumns {
		v[offNumeric+i] = numeric[c.name]
	}
	return v, nil
}

func statSumRatio(a, b models.Stats) float64 {
	sb := b.Sum()
	if sb <= 0 {
		return 0
	}
	return float64(a.Sum()) / float64(sb)
}

// checkCategorical rejects any categorical value outside the closed sets.
// A silently zeroed one-hot block would look like a valid input.
func checkCategorical(m models.Matchup) error {
	sides := []struct {
		name string
		c    models.Combatant
		mv   models.Move
	}{{"a", m.A, m.MoveA}, {"b", m.B, m.MoveB}}

	for _, s := range sides {
		if n := len(s.c.Types); n < 1 || n > 2 {
			return fmt.Errorf("%w: %s has %d types", ErrUnknownType, s.name, n)
		}
		for i, t := range s.c.Types {
			if !t.Valid() {
				return fmt.Errorf("%w: %s.types[%d]=%d", ErrUnknownType, s.name, i, uint8(t))
			}
		}
		if !s.mv.Type.Valid() {
			return fmt.Errorf("%w: %s.move.type=%d", ErrUnknownType, s.name, uint8(s.mv.Type))
		}
		if !s.mv.Category.Valid() {
			return fmt.Errorf("%w: %s.move.category=%d", ErrUnknownCategory, s.name, uint8(s.mv.Category))
		}
	}
	return nil
}

// Encoder applies a bundle's scaler and column order on top of Raw.
type Encoder struct {
	chart   Effectiveness
	columns []string
	order   []int
	mean    []float64
	std     []float64
	scaled  []bool
}

// NewEncoder binds the canonical schema to a bundle. order must be a
// permutation of Columns() and the scaler must cover exactly the continuous
// columns.
func NewEncoder(order []string, scaler *Scaler, chart Effectiveness) (*Encoder, error) {
	if len(order) != Width() {
		return nil, fmt.Errorf("%w: %d columns, schema %s has %d", ErrColumnMismatch, len(order), SchemaVersion, Width())
	}
	if scaler == nil {
		return nil, fmt.Errorf("%w: nil scaler", ErrInvalidScaler)
	}
	if err := scaler.Validate(); err != nil {
		return nil, err
	}

	e := &Encoder{
		chart:   chart,
		columns: append([]string(nil), order...),
		order:   make([]int, len(order)),
		mean:    make([]float64, Width()),
		std:     make([]float64, Width()),
		scaled:  make([]bool, Width()),
	}
	seen := make([]bool, Width())
	for i, name := range order {
		j, ok := schemaIndex[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrColumnMismatch, name)
		}
		if seen[j] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrColumnMismatch, name)
		}
		seen[j] = true
		e.order[i] = j
	}

	continuous := ContinuousColumns()
	if len(scaler.Columns) != len(continuous) {
		return nil, fmt.Errorf("%w: scaler covers %d columns, schema has %d continuous", ErrInvalidScaler, len(scaler.Columns), len(continuous))
	}
	for _, name := range continuous {
		mean, std, err := scaler.Stats(name)
		if err != nil {
			return nil, err
		}
		j := schemaIndex[name]
		e.mean[j], e.std[j], e.scaled[j] = mean, std, true
	}
	return e, nil
}

// Columns is the output column order.
func (e *Encoder) Columns() []string {
	return append([]string(nil), e.columns...)
}

// Width is the output vector length.
func (e *Encoder) Width() int {
	return len(e.order)
}

// Encode returns the scaled vector in bundle column order.
func (e *Encoder) Encode(m models.Matchup) ([]float64, error) {
	raw, err := Raw(m, e.chart)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(e.order))
	for i, j := range e.order {
		v := raw[j]
		if e.scaled[j] {
			v = (v - e.mean[j]) / e.std[j]
		}
		if !finite(v) {
			return nil, fmt.Errorf("%w: %s=%v", ErrNonFinite, e.columns[i], v)
		}
		out[i] = v
	}
	return out, nil
}
