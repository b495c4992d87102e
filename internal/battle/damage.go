package battle

import (
	"math"
	"math/rand/v2"

	"github.com/battlelab/matchup/internal/models"
)

const (
	// StabBonus applies when the move type is one of the attacker's types.
	StabBonus = models.StabBonus

	// Rolled damage is scaled by a uniform factor in [1-VarianceSpread, 1+VarianceSpread].
	VarianceSpread = 0.10

	MinDamage = 1
)

// Stab returns the same-type multiplier for attacker using move.
func Stab(attacker models.Combatant, move models.Move) float64 {
	if attacker.HasType(move.Type) {
		return StabBonus
	}
	return 1.0
}

// StatRatio is attack over defense for the move's category. The +1 keeps the
// denominator positive at the stat floor.
func StatRatio(attacker, defender models.Combatant, move models.Move) float64 {
	if move.Category == models.CategorySpecial {
		return float64(attacker.Stats.SpAttack) / float64(defender.Stats.SpDefense+1)
	}
	return float64(attacker.Stats.Attack) / float64(defender.Stats.Defense+1)
}

// BaseDamage is the variance-free damage of one hit. Status moves deal 0;
// damaging moves deal at least MinDamage.
func BaseDamage(attacker, defender models.Combatant, move models.Move, stab, effectiveness float64) int {
	if !move.Offensive() {
		return 0
	}
	raw := float64(move.BasePower()) * stab * effectiveness / 10 * StatRatio(attacker, defender, move)
	return clampDamage(math.Floor(raw))
}

// Roll applies the multiplicative variance to a base damage value.
func Roll(base int, rng *rand.Rand) int {
	if base <= 0 {
		return 0
	}
	factor := 1 - VarianceSpread + 2*VarianceSpread*rng.Float64()
	return clampDamage(math.Floor(float64(base) * factor))
}

func clampDamage(d float64) int {
	if d < MinDamage {
		return MinDamage
	}
	return int(d)
}

// DamageModel resolves effectiveness through a chart before computing damage.
type DamageModel struct {
	chart *TypeChart
}

func NewDamageModel(chart *TypeChart) *DamageModel {
	return &DamageModel{chart: chart}
}

func (d *DamageModel) Chart() *TypeChart {
	return d.chart
}

// Expected is the selection path: variance fixed to its mean.
func (d *DamageModel) Expected(attacker, defender models.Combatant, move models.Move) (int, error) {
	eff, err := d.chart.Multiplier(move.Type, defender.Types)
	if err != nil {
		return 0, err
	}
	return BaseDamage(attacker, defender, move, Stab(attacker, move), eff), nil
}

// Rolled is the label generation path and must only be fed a seeded rng.
func (d *DamageModel) Rolled(attacker, defender models.Combatant, move models.Move, rng *rand.Rand) (int, error) {
	base, err := d.Expected(attacker, defender, move)
	if err != nil {
		return 0, err
	}
	return Roll(base, rng), nil
}
