package models

import "time"

// Side identifies one of the two combatants of a matchup.
type Side uint8

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// BattleOutcome is the terminal state of one simulated battle.
type BattleOutcome struct {
	Matchup  Matchup
	Winner   Side
	Turns    int
	HPLeftA  int
	HPLeftB  int
	TurnCap  bool // decided by remaining HP fraction after the turn cap
	FirstHit Side
}

// MoveScore is one candidate move with its predicted win probability.
type MoveScore struct {
	Move        Move    `json:"move"`
	Probability float64 `json:"probability"`
}

// PredictionResult is the serving response for one matchup request.
type PredictionResult struct {
	Recommended  Move        `json:"recommended"`
	Probability  float64     `json:"probability"`
	Ranked       []MoveScore `json:"ranked"`
	OpponentMove Move        `json:"opponent_move"`
	ModelName    string      `json:"model_name"`
	ModelVersion string      `json:"model_version"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// Example is one labeled training row. Features are raw (unscaled) and in
// canonical schema column order.
type Example struct {
	RunID      string
	Shard      int
	PairIndex  uint64
	CombatantA string
	CombatantB string
	MoveA      int
	MoveB      int
	Features   []float64
	Winner     Side
	Turns      int
	TurnCap    bool
}

// Label is 1 when side A wins.
func (e Example) Label() uint8 {
	if e.Winner == SideA {
		return 1
	}
	return 0
}
