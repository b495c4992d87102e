package battle

import (
	"fmt"
	"math/rand/v2"

	"github.com/battlelab/matchup/internal/models"
)

// DefaultMaxTurns bounds a battle. A move set that cannot finish (status
// only, for example) is decided by remaining HP fraction once it is reached.
const DefaultMaxTurns = 100

// Simulator plays one matchup to a terminal state.
type Simulator struct {
	damage   *DamageModel
	maxTurns int
}

func NewSimulator(damage *DamageModel, maxTurns int) *Simulator {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Simulator{damage: damage, maxTurns: maxTurns}
}

func (s *Simulator) MaxTurns() int {
	return s.maxTurns
}

// FirstMover orders a turn: higher priority, then higher speed, then the
// lexicographically smaller combatant ID, then side A.
func FirstMover(m models.Matchup) models.Side {
	switch {
	case m.MoveA.Priority != m.MoveB.Priority:
		return sideIf(m.MoveA.Priority > m.MoveB.Priority)
	case m.A.Stats.Speed != m.B.Stats.Speed:
		return sideIf(m.A.Stats.Speed > m.B.Stats.Speed)
	case m.A.ID != m.B.ID:
		return sideIf(m.A.ID < m.B.ID)
	default:
		return models.SideA
	}
}

func sideIf(a bool) models.Side {
	if a {
		return models.SideA
	}
	return models.SideB
}

type fighter struct {
	self, foe models.Combatant
	move      models.Move
	hp        int
}

// Simulate runs the exchange loop. A nil rng selects expected-value damage;
// a non-nil rng selects rolled damage and must be seeded by the caller.
func (s *Simulator) Simulate(m models.Matchup, rng *rand.Rand) (models.BattleOutcome, error) {
	sides := [2]*fighter{
		models.SideA: {self: m.A, foe: m.B, move: m.MoveA, hp: m.A.Stats.HP},
		models.SideB: {self: m.B, foe: m.A, move: m.MoveB, hp: m.B.Stats.HP},
	}

	// Per-hit damage is precomputed on the expected path.
	var hits [2]int
	for side, f := range sides {
		d, err := s.damage.Expected(f.self, f.foe, f.move)
		if err != nil {
			return models.BattleOutcome{}, fmt.Errorf("side %s: %w", models.Side(side), err)
		}
		hits[side] = d
	}

	first := FirstMover(m)
	order := [2]models.Side{first, first.Other()}
	out := models.BattleOutcome{Matchup: m, FirstHit: first}

	for turn := 1; turn <= s.maxTurns; turn++ {
		out.Turns = turn
		for _, atk := range order {
			def := atk.Other()
			dmg := hits[atk]
			if rng != nil {
				dmg = Roll(dmg, rng)
			}
			sides[def].hp -= dmg
			if sides[def].hp <= 0 {
				out.Winner = atk
				return s.finish(out, sides), nil
			}
		}
	}

	out.TurnCap = true
	out.Winner = capWinner(sides, first)
	return s.finish(out, sides), nil
}

func (s *Simulator) finish(out models.BattleOutcome, sides [2]*fighter) models.BattleOutcome {
	out.HPLeftA = max(sides[models.SideA].hp, 0)
	out.HPLeftB = max(sides[models.SideB].hp, 0)
	return out
}

// capWinner decides a capped battle: higher remaining HP fraction, then
// higher speed, then whoever moved first.
func capWinner(sides [2]*fighter, first models.Side) models.Side {
	a, b := sides[models.SideA], sides[models.SideB]
	// Compare hpA/maxA with hpB/maxB without floating point.
	fa := a.hp * b.self.Stats.HP
	fb := b.hp * a.self.Stats.HP
	switch {
	case fa != fb:
		return sideIf(fa > fb)
	case a.self.Stats.Speed != b.self.Stats.Speed:
		return sideIf(a.self.Stats.Speed > b.self.Stats.Speed)
	default:
		return first
	}
}
