package models

import "fmt"

// MaxCandidateMoves bounds the per-request search width.
const MaxCandidateMoves = 32

type StatsInput struct {
	HP        int `json:"hp" validate:"min=1,max=255"`
	Attack    int `json:"attack" validate:"min=1,max=255"`
	Defense   int `json:"defense" validate:"min=1,max=255"`
	SpAttack  int `json:"sp_attack" validate:"min=1,max=255"`
	SpDefense int `json:"sp_defense" validate:"min=1,max=255"`
	Speed     int `json:"speed" validate:"min=1,max=255"`
}

type MoveInput struct {
	ID       int    `json:"id" validate:"gte=0"`
	Name     string `json:"name"`
	Type     string `json:"type" validate:"required"`
	Category string `json:"category" validate:"required"`
	Power    *int   `json:"power,omitempty" validate:"omitempty,gte=0"`
	Accuracy int    `json:"accuracy" validate:"min=0,max=100"`
	Priority int    `json:"priority" validate:"min=-7,max=5"`
}

type CombatantInput struct {
	ID    string      `json:"id" validate:"required"`
	Name  string      `json:"name"`
	Stats StatsInput  `json:"stats"`
	Types []string    `json:"types" validate:"min=1,max=2,unique,dive,required"`
	Moves []MoveInput `json:"moves,omitempty" validate:"dive"`
}

type PredictRequest struct {
	Attacker     CombatantInput `json:"attacker"`
	Defender     CombatantInput `json:"defender"`
	Candidates   []MoveInput    `json:"candidates" validate:"required,min=1,max=32,dive"`
	OpponentMove *MoveInput     `json:"opponent_move,omitempty"`
}

type ReloadModelResponse struct {
	ModelName     string `json:"model_name"`
	Stage         string `json:"stage"`
	Version       string `json:"version"`
	SchemaVersion string `json:"schema_version"`
	Source        string `json:"source"`
}

// ToMove converts a wire move into the domain type.
func (in MoveInput) ToMove() (Move, error) {
	t, err := ParseType(in.Type)
	if err != nil {
		return Move{}, err
	}
	c, err := ParseCategory(in.Category)
	if err != nil {
		return Move{}, err
	}
	m := Move{
		ID:       in.ID,
		Name:     in.Name,
		Type:     t,
		Category: c,
		Accuracy: in.Accuracy,
		Priority: in.Priority,
	}
	if in.Power != nil {
		p := *in.Power
		m.Power = &p
	}
	return m, nil
}

// ToCombatant converts a wire combatant into the domain type.
func (in CombatantInput) ToCombatant() (Combatant, error) {
	c := Combatant{
		ID:   in.ID,
		Name: in.Name,
		Stats: Stats{
			HP:        in.Stats.HP,
			Attack:    in.Stats.Attack,
			Defense:   in.Stats.Defense,
			SpAttack:  in.Stats.SpAttack,
			SpDefense: in.Stats.SpDefense,
			Speed:     in.Stats.Speed,
		},
	}
	for _, raw := range in.Types {
		t, err := ParseType(raw)
		if err != nil {
			return Combatant{}, err
		}
		c.Types = append(c.Types, t)
	}
	for i, mi := range in.Moves {
		m, err := mi.ToMove()
		if err != nil {
			return Combatant{}, fmt.Errorf("moves[%d]: %w", i, err)
		}
		c.Moves = append(c.Moves, m)
	}
	return c, nil
}
