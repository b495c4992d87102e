package models

import (
	"errors"
	"fmt"
)

// Stat bounds accepted at the storage boundary.
const (
	MinStat     = 1
	MaxStat     = 255
	MinPriority = -7
	MaxPriority = 5
	MaxAccuracy = 100
)

// StabBonus scales a move whose type matches one of its user's types. The
// damage model and the feature encoder both read it.
const StabBonus = 1.5

var (
	ErrUnknownType     = errors.New("unknown type")
	ErrUnknownCategory = errors.New("unknown move category")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func invalid(field string, value interface{}, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// Stats are the six base statistics of a combatant.
type Stats struct {
	HP        int `json:"hp"`
	Attack    int `json:"attack"`
	Defense   int `json:"defense"`
	SpAttack  int `json:"sp_attack"`
	SpDefense int `json:"sp_defense"`
	Speed     int `json:"speed"`
}

// Sum is the base stat total.
func (s Stats) Sum() int {
	return s.HP + s.Attack + s.Defense + s.SpAttack + s.SpDefense + s.Speed
}

func (s Stats) Validate(prefix string) error {
	fields := []struct {
		name  string
		value int
	}{
		{"hp", s.HP},
		{"attack", s.Attack},
		{"defense", s.Defense},
		{"sp_attack", s.SpAttack},
		{"sp_defense", s.SpDefense},
		{"speed", s.Speed},
	}
	for _, f := range fields {
		if f.value < MinStat || f.value > MaxStat {
			return invalid(prefix+"stats."+f.name, f.value, fmt.Sprintf("must be within %d..%d", MinStat, MaxStat))
		}
	}
	return nil
}

// Move is immutable reference data. Power is nil for status moves.
type Move struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Type     Type     `json:"type"`
	Category Category `json:"category"`
	Power    *int     `json:"power,omitempty"`
	Accuracy int      `json:"accuracy"`
	Priority int      `json:"priority"`
}

// BasePower returns the move power, 0 for status moves.
func (m Move) BasePower() int {
	if m.Power == nil || m.Category == CategoryStatus {
		return 0
	}
	return *m.Power
}

// Offensive reports whether the move deals direct damage.
func (m Move) Offensive() bool {
	return m.Category != CategoryStatus && m.Power != nil && *m.Power > 0
}

func (m Move) Validate(prefix string) error {
	if !m.Type.Valid() {
		return invalid(prefix+"type", m.Type, ErrUnknownType.Error())
	}
	if !m.Category.Valid() {
		return invalid(prefix+"category", m.Category, ErrUnknownCategory.Error())
	}
	if m.Priority < MinPriority || m.Priority > MaxPriority {
		return invalid(prefix+"priority", m.Priority, fmt.Sprintf("must be within %d..%d", MinPriority, MaxPriority))
	}
	if m.Category == CategoryStatus {
		if m.Power != nil && *m.Power != 0 {
			return invalid(prefix+"power", *m.Power, "status moves have no power")
		}
		if m.Accuracy < 0 || m.Accuracy > MaxAccuracy {
			return invalid(prefix+"accuracy", m.Accuracy, "must be within 0..100")
		}
		return nil
	}
	if m.Power == nil {
		return invalid(prefix+"power", "null", "damaging moves need a positive power")
	}
	if *m.Power <= 0 {
		return invalid(prefix+"power", *m.Power, "damaging moves need a positive power")
	}
	if m.Accuracy < 1 || m.Accuracy > MaxAccuracy {
		return invalid(prefix+"accuracy", m.Accuracy, "must be within 1..100")
	}
	return nil
}

// Combatant is a snapshot of one side for the duration of a battle evaluation.
type Combatant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stats Stats  `json:"stats"`
	Types []Type `json:"types"`
	Moves []Move `json:"moves,omitempty"`
}

// Primary returns the first type.
func (c Combatant) Primary() Type {
	return c.Types[0]
}

// Secondary returns the second type or TypeNone.
func (c Combatant) Secondary() Type {
	if len(c.Types) > 1 {
		return c.Types[1]
	}
	return TypeNone
}

// HasType reports whether t is one of the combatant's own types.
func (c Combatant) HasType(t Type) bool {
	for _, own := range c.Types {
		if own == t {
			return true
		}
	}
	return false
}

// Validate checks the boundary contract: 1-2 distinct types, bounded stats
// and well-formed moves.
func (c Combatant) Validate(prefix string) error {
	if c.ID == "" {
		return invalid(prefix+"id", c.ID, "is required")
	}
	switch len(c.Types) {
	case 1, 2:
	default:
		return invalid(prefix+"types", len(c.Types), "a combatant has one or two types")
	}
	for i, t := range c.Types {
		if !t.Valid() {
			return invalid(fmt.Sprintf("%stypes[%d]", prefix, i), t, ErrUnknownType.Error())
		}
	}
	if len(c.Types) == 2 && c.Types[0] == c.Types[1] {
		return invalid(prefix+"types", c.Types[0], "types must be distinct")
	}
	if err := c.Stats.Validate(prefix); err != nil {
		return err
	}
	for i, m := range c.Moves {
		if err := m.Validate(fmt.Sprintf("%smoves[%d].", prefix, i)); err != nil {
			return err
		}
	}
	return nil
}

// Matchup is the pair descriptor: both combatants and their chosen moves.
type Matchup struct {
	A     Combatant
	B     Combatant
	MoveA Move
	MoveB Move
}
