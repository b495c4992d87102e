package battle

import (
	"errors"
	"fmt"

	"github.com/battlelab/matchup/internal/models"
)

var ErrNoOffensiveMove = errors.New("no offensive move available")

// MoveSelector picks the locally best attacking move by expected damage.
type MoveSelector struct {
	damage *DamageModel
}

func NewMoveSelector(damage *DamageModel) *MoveSelector {
	return &MoveSelector{damage: damage}
}

// BestOffensiveMove evaluates every damaging move of c against opponent.
// Ties go to higher base power, then to the lower move ID.
func (s *MoveSelector) BestOffensiveMove(c, opponent models.Combatant) (models.Move, error) {
	var best models.Move
	bestDmg, found := -1, false
	for _, mv := range c.Moves {
		if !mv.Offensive() {
			continue
		}
		dmg, err := s.damage.Expected(c, opponent, mv)
		if err != nil {
			return models.Move{}, fmt.Errorf("move %d: %w", mv.ID, err)
		}
		if !found || better(dmg, mv, bestDmg, best) {
			best, bestDmg, found = mv, dmg, true
		}
	}
	if !found {
		return models.Move{}, fmt.Errorf("%w: combatant %s", ErrNoOffensiveMove, c.ID)
	}
	return best, nil
}

func better(dmg int, mv models.Move, bestDmg int, best models.Move) bool {
	if dmg != bestDmg {
		return dmg > bestDmg
	}
	if mv.BasePower() != best.BasePower() {
		return mv.BasePower() > best.BasePower()
	}
	return mv.ID < best.ID
}
