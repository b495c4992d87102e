// Package battle holds the deterministic battle model: type effectiveness,
// damage, turn resolution and offensive move selection. Everything here is
// pure in-memory computation over caller-owned values.
package battle

import (
	"errors"
	"fmt"

	"github.com/battlelab/matchup/internal/models"
)

var (
	ErrIncompleteTypeChart = errors.New("incomplete type chart")
	ErrUnknownType         = models.ErrUnknownType
)

// Single-type multipliers allowed in a chart cell.
var cellValues = map[float64]bool{0: true, 0.5: true, 1: true, 2: true}

// TypeChart is a dense attack x defense multiplier table over the closed type set.
type TypeChart struct {
	cells [models.NumTypes][models.NumTypes]float64
}

// NewTypeChart builds a chart from rows indexed by attacking type, each holding
// one multiplier per defending type. Any missing row, short row or value
// outside {0, 0.5, 1, 2} is rejected.
func NewTypeChart(rows [][]float64) (*TypeChart, error) {
	if len(rows) != models.NumTypes {
		return nil, fmt.Errorf("%w: %d attacking rows, want %d", ErrIncompleteTypeChart, len(rows), models.NumTypes)
	}
	tc := &TypeChart{}
	for atk, row := range rows {
		if len(row) != models.NumTypes {
			return nil, fmt.Errorf("%w: row %s has %d entries, want %d",
				ErrIncompleteTypeChart, models.Type(atk), len(row), models.NumTypes)
		}
		for def, v := range row {
			if !cellValues[v] {
				return nil, fmt.Errorf("%w: %s vs %s = %v", ErrIncompleteTypeChart, models.Type(atk), models.Type(def), v)
			}
			tc.cells[atk][def] = v
		}
	}
	return tc, nil
}

// Multiplier returns the effectiveness of an attack against one or two
// defending types; dual types multiply.
func (tc *TypeChart) Multiplier(attack models.Type, defense []models.Type) (float64, error) {
	if !attack.Valid() {
		return 0, fmt.Errorf("%w: attacking %s", ErrUnknownType, attack)
	}
	if len(defense) == 0 || len(defense) > 2 {
		return 0, fmt.Errorf("defender needs one or two types, got %d", len(defense))
	}
	m := 1.0
	for _, d := range defense {
		if !d.Valid() {
			return 0, fmt.Errorf("%w: defending %s", ErrUnknownType, d)
		}
		m *= tc.cells[attack][d]
	}
	return m, nil
}

// DefaultTypeChart returns the current-generation chart.
func DefaultTypeChart() (*TypeChart, error) {
	return NewTypeChart(defaultRows())
}

// MustDefaultTypeChart panics if the built-in chart is malformed. Intended for
// process startup.
func MustDefaultTypeChart() *TypeChart {
	tc, err := DefaultTypeChart()
	if err != nil {
		panic(err)
	}
	return tc
}

const h = 0.5

// defaultRows is indexed [attacker][defender] in models.Type order:
// NOR FIR WAT ELE GRA ICE FIG POI GRO FLY PSY BUG ROC GHO DRA DAR STE FAI
func defaultRows() [][]float64 {
	return [][]float64{
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, h, 0, 1, 1, h, 1}, // normal
		{1, h, h, 1, 2, 2, 1, 1, 1, 1, 1, 2, h, 1, h, 1, 2, 1}, // fire
		{1, 2, h, 1, h, 1, 1, 1, 2, 1, 1, 1, 2, 1, h, 1, 1, 1}, // water
		{1, 1, 2, h, h, 1, 1, 1, 0, 2, 1, 1, 1, 1, h, 1, 1, 1}, // electric
		{1, h, 2, 1, h, 1, 1, h, 2, h, 1, h, 2, 1, h, 1, h, 1}, // grass
		{1, h, h, 1, 2, h, 1, 1, 2, 2, 1, 1, 1, 1, 2, 1, h, 1}, // ice
		{2, 1, 1, 1, 1, 2, 1, h, 1, h, h, h, 2, 0, 1, 2, 2, h}, // fighting
		{1, 1, 1, 1, 2, 1, 1, h, h, 1, 1, 1, h, h, 1, 1, 0, 2}, // poison
		{1, 2, 1, 2, h, 1, 1, 2, 1, 0, 1, h, 2, 1, 1, 1, 2, 1}, // ground
		{1, 1, 1, h, 2, 1, 2, 1, 1, 1, 1, 2, h, 1, 1, 1, h, 1}, // flying
		{1, 1, 1, 1, 1, 1, 2, 2, 1, 1, h, 1, 1, 1, 1, 0, h, 1}, // psychic
		{1, h, 1, 1, 2, 1, h, h, 1, h, 2, 1, 1, h, 1, 2, h, h}, // bug
		{1, 2, 1, 1, 1, 2, h, 1, h, 2, 1, 2, 1, 1, 1, 1, h, 1}, // rock
		{0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 1, 1, 2, 1, h, 1, 1}, // ghost
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 1, h, 0}, // dragon
		{1, 1, 1, 1, 1, 1, h, 1, 1, 1, 2, 1, 1, 2, 1, h, 1, h}, // dark
		{1, h, h, h, 1, 2, 1, 1, 1, 1, 1, 1, 2, 1, 1, 1, h, 2}, // steel
		{1, h, 1, 1, 1, 1, 2, h, 1, 1, 1, 1, 1, 1, 2, 2, h, 1}, // fairy
	}
}
