// Package features turns a matchup into the fixed-length numeric vector the
// scorer consumes. Column names and order are a contract with the training
// set: changing either requires a new SchemaVersion and a re-encode.
package features

import (
	"fmt"

	"github.com/battlelab/matchup/internal/models"
)

// SchemaVersion tags every bundle trained on this column layout.
const SchemaVersion = "matchup-v1"

type columnKind uint8

const (
	kindOneHot columnKind = iota
	kindFlag
	kindContinuous
)

type column struct {
	name string
	kind columnKind
}

var (
	schemaColumns []column
	schemaIndex   map[string]int
)

// Block offsets into the canonical vector.
var (
	offATypes1   int
	offATypes2   int
	offBTypes1   int
	offBTypes2   int
	offAMoveType int
	offBMoveType int
	offACat      int
	offBCat      int
	offNumeric   int
)

// Continuous columns, in canonical order after the one-hot blocks.
const (
	ColAHP               = "a_hp"
	ColAAttack           = "a_attack"
	ColADefense          = "a_defense"
	ColASpAttack         = "a_sp_attack"
	ColASpDefense        = "a_sp_defense"
	ColASpeed            = "a_speed"
	ColBHP               = "b_hp"
	ColBAttack           = "b_attack"
	ColBDefense          = "b_defense"
	ColBSpAttack         = "b_sp_attack"
	ColBSpDefense        = "b_sp_defense"
	ColBSpeed            = "b_speed"
	ColAMovePower        = "a_move_power"
	ColBMovePower        = "b_move_power"
	ColAMoveAccuracy     = "a_move_accuracy"
	ColBMoveAccuracy     = "b_move_accuracy"
	ColAMovePriority     = "a_move_priority"
	ColBMovePriority     = "b_move_priority"
	ColStatSumRatio      = "stat_sum_ratio"
	ColAEffectiveness    = "a_effectiveness"
	ColBEffectiveness    = "b_effectiveness"
	ColAEffectivePower   = "a_effective_power"
	ColBEffectivePower   = "b_effective_power"
	ColEffectivePowerDif = "effective_power_diff"
	ColPriorityAdvantage = "priority_advantage"

	ColAStab = "a_stab"
	ColBStab = "b_stab"
)

var numericColumns = []column{
	{ColAHP, kindContinuous},
	{ColAAttack, kindContinuous},
	{ColADefense, kindContinuous},
	{ColASpAttack, kindContinuous},
	{ColASpDefense, kindContinuous},
	{ColASpeed, kindContinuous},
	{ColBHP, kindContinuous},
	{ColBAttack, kindContinuous},
	{ColBDefense, kindContinuous},
	{ColBSpAttack, kindContinuous},
	{ColBSpDefense, kindContinuous},
	{ColBSpeed, kindContinuous},
	{ColAMovePower, kindContinuous},
	{ColBMovePower, kindContinuous},
	{ColAMoveAccuracy, kindContinuous},
	{ColBMoveAccuracy, kindContinuous},
	{ColAMovePriority, kindContinuous},
	{ColBMovePriority, kindContinuous},
	{ColStatSumRatio, kindContinuous},
	{ColAStab, kindFlag},
	{ColBStab, kindFlag},
	{ColAEffectiveness, kindContinuous},
	{ColBEffectiveness, kindContinuous},
	{ColAEffectivePower, kindContinuous},
	{ColBEffectivePower, kindContinuous},
	{ColEffectivePowerDif, kindContinuous},
	{ColPriorityAdvantage, kindContinuous},
}

func init() {
	add := func(c column) {
		schemaColumns = append(schemaColumns, c)
	}
	typeBlock := func(prefix string, withNone bool) int {
		start := len(schemaColumns)
		for _, t := range models.AllTypes() {
			add(column{prefix + "_" + t.String(), kindOneHot})
		}
		if withNone {
			add(column{prefix + "_" + models.TypeNone.String(), kindOneHot})
		}
		return start
	}
	catBlock := func(prefix string) int {
		start := len(schemaColumns)
		for c := 0; c < models.NumCategories; c++ {
			add(column{prefix + "_" + models.Category(c).String(), kindOneHot})
		}
		return start
	}

	offATypes1 = typeBlock("a_type1", false)
	offATypes2 = typeBlock("a_type2", true)
	offBTypes1 = typeBlock("b_type1", false)
	offBTypes2 = typeBlock("b_type2", true)
	offAMoveType = typeBlock("a_move_type", false)
	offBMoveType = typeBlock("b_move_type", false)
	offACat = catBlock("a_move_cat")
	offBCat = catBlock("b_move_cat")
	offNumeric = len(schemaColumns)
	for _, c := range numericColumns {
		add(c)
	}

	schemaIndex = make(map[string]int, len(schemaColumns))
	for i, c := range schemaColumns {
		if _, dup := schemaIndex[c.name]; dup {
			panic(fmt.Sprintf("features: duplicate column %q", c.name))
		}
		schemaIndex[c.name] = i
	}
}

// Width is the canonical vector length.
func Width() int {
	return len(schemaColumns)
}

// Columns returns the canonical column order.
func Columns() []string {
	out := make([]string, len(schemaColumns))
	for i, c := range schemaColumns {
		out[i] = c.name
	}
	return out
}

// ContinuousColumns returns the columns the scaler must cover, in canonical order.
func ContinuousColumns() []string {
	var out []string
	for _, c := range schemaColumns {
		if c.kind == kindContinuous {
			out = append(out, c.name)
		}
	}
	return out
}

// ColumnIndex returns the canonical position of a column.
func ColumnIndex(name string) (int, bool) {
	i, ok := schemaIndex[name]
	return i, ok
}
