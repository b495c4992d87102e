package features

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/models"
)

func power(p int) *int { return &p }

func sampleMatchup() models.Matchup {
	return models.Matchup{
		A: models.Combatant{
			ID:    "blastoise",
			Stats: models.Stats{HP: 79, Attack: 83, Defense: 100, SpAttack: 85, SpDefense: 105, Speed: 78},
			Types: []models.Type{models.TypeWater},
		},
		B: models.Combatant{
			ID:    "rhydon",
			Stats: models.Stats{HP: 105, Attack: 130, Defense: 120, SpAttack: 45, SpDefense: 45, Speed: 40},
			Types: []models.Type{models.TypeGround, models.TypeRock},
		},
		MoveA: models.Move{ID: 57, Type: models.TypeWater, Category: models.CategorySpecial, Power: power(90), Accuracy: 100},
		MoveB: models.Move{ID: 89, Type: models.TypeGround, Category: models.CategoryPhysical, Power: power(100), Accuracy: 100},
	}
}

func randomMatchup(rng *rand.Rand) models.Matchup {
	all := models.AllTypes()
	combatant := func(id string) models.Combatant {
		c := models.Combatant{
			ID: id,
			Stats: models.Stats{
				HP: 1 + rng.IntN(255), Attack: 1 + rng.IntN(255), Defense: 1 + rng.IntN(255),
				SpAttack: 1 + rng.IntN(255), SpDefense: 1 + rng.IntN(255), Speed: 1 + rng.IntN(255),
			},
			Types: []models.Type{all[rng.IntN(len(all))]},
		}
		if rng.IntN(2) == 0 {
			second := all[rng.IntN(len(all))]
			if second != c.Types[0] {
				c.Types = append(c.Types, second)
			}
		}
		return c
	}
	move := func(id int) models.Move {
		m := models.Move{ID: id, Type: all[rng.IntN(len(all))], Category: models.Category(rng.IntN(models.NumCategories)), Priority: rng.IntN(3) - 1}
		if m.Category != models.CategoryStatus {
			m.Power = power(10 + rng.IntN(140))
			m.Accuracy = 50 + rng.IntN(51)
		}
		return m
	}
	return models.Matchup{A: combatant("a"), B: combatant("b"), MoveA: move(1), MoveB: move(2)}
}

func value(t *testing.T, vec []float64, column string) float64 {
	t.Helper()
	i, ok := ColumnIndex(column)
	if !ok {
		t.Fatalf("no column %q", column)
	}
	return vec[i]
}

func TestSchemaWidth(t *testing.T) {
	// 4 type blocks of 18, 2 secondary blocks with "none", 2 category blocks, 27 numeric.
	want := 4*models.NumTypes + 2*(models.NumTypes+1) + 2*models.NumCategories + 27
	if Width() != want {
		t.Errorf("Width() = %d, want %d", Width(), want)
	}
	if len(Columns()) != Width() {
		t.Errorf("len(Columns()) = %d, want %d", len(Columns()), Width())
	}
	if len(ContinuousColumns()) != 25 {
		t.Errorf("continuous columns = %d, want 25", len(ContinuousColumns()))
	}
}

func TestRawDerivedFields(t *testing.T) {
	chart := battle.MustDefaultTypeChart()
	vec, err := Raw(sampleMatchup(), chart)
	if err != nil {
		t.Fatal(err)
	}

	checks := map[string]float64{
		"a_type1_water":       1,
		"a_type2_none":        1,
		"b_type1_ground":      1,
		"b_type2_rock":        1,
		"a_move_type_water":   1,
		"b_move_cat_physical": 1,
		ColAStab:              1,
		ColBStab:              1,
		ColAEffectiveness:     4,
		ColBEffectiveness:     1,
		ColAEffectivePower:    90 * 1.5 * 4,
		ColBEffectivePower:    100 * 1.5 * 1,
		ColEffectivePowerDif:  540 - 150,
		ColPriorityAdvantage:  0,
		ColAMovePower:         90,
		ColBHP:                105,
	}
	for col, want := range checks {
		if got := value(t, vec, col); got != want {
			t.Errorf("%s = %v, want %v", col, got, want)
		}
	}

	wantRatio := float64(79+83+100+85+105+78) / float64(105+130+120+45+45+40)
	if got := value(t, vec, ColStatSumRatio); math.Abs(got-wantRatio) > 1e-12 {
		t.Errorf("stat_sum_ratio = %v, want %v", got, wantRatio)
	}

	// Each one-hot block has exactly one hot cell.
	var hot int
	for i, c := range schemaColumns {
		if c.kind == kindOneHot && vec[i] == 1 {
			hot++
		}
	}
	if hot != 8 {
		t.Errorf("hot one-hot cells = %d, want 8", hot)
	}
}

func TestRawEffectivePowerUsesDamageModelStab(t *testing.T) {
	chart := battle.MustDefaultTypeChart()
	rng := rand.New(rand.NewPCG(11, 13))
	for i := 0; i < 200; i++ {
		m := randomMatchup(rng)
		vec, err := Raw(m, chart)
		if err != nil {
			t.Fatal(err)
		}
		eff, err := chart.Multiplier(m.MoveA.Type, m.B.Types)
		if err != nil {
			t.Fatal(err)
		}
		want := float64(m.MoveA.BasePower()) * battle.Stab(m.A, m.MoveA) * eff
		if got := value(t, vec, ColAEffectivePower); got != want {
			t.Fatalf("matchup %d: a_effective_power = %v, want %v", i, got, want)
		}
	}
}

func TestRawStatusMoveHasZeroPower(t *testing.T) {
	m := sampleMatchup()
	m.MoveA = models.Move{ID: 1, Type: models.TypeWater, Category: models.CategoryStatus}
	vec, err := Raw(m, battle.MustDefaultTypeChart())
	if err != nil {
		t.Fatal(err)
	}
	if got := value(t, vec, ColAEffectivePower); got != 0 {
		t.Errorf("status effective power = %v, want 0", got)
	}
	if got := value(t, vec, "a_move_cat_status"); got != 1 {
		t.Errorf("a_move_cat_status = %v, want 1", got)
	}
}

func TestRawRejectsOutOfSetValues(t *testing.T) {
	chart := battle.MustDefaultTypeChart()
	tests := []struct {
		name   string
		mutate func(*models.Matchup)
		want   error
	}{
		{"none as primary", func(m *models.Matchup) { m.A.Types = []models.Type{models.TypeNone} }, ErrUnknownType},
		{"no types", func(m *models.Matchup) { m.B.Types = nil }, ErrUnknownType},
		{"three types", func(m *models.Matchup) {
			m.B.Types = []models.Type{models.TypeFire, models.TypeWater, models.TypeGrass}
		}, ErrUnknownType},
		{"bad move type", func(m *models.Matchup) { m.MoveB.Type = models.Type(77) }, ErrUnknownType},
		{"bad category", func(m *models.Matchup) { m.MoveA.Category = models.Category(9) }, ErrUnknownCategory},
	}
	for _, tt := range tests {
		m := sampleMatchup()
		tt.mutate(&m)
		if _, err := Raw(m, chart); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func fittedScaler(t *testing.T) *Scaler {
	t.Helper()
	chart := battle.MustDefaultTypeChart()
	rng := rand.New(rand.NewPCG(5, 6))
	rows := make([][]float64, 0, 200)
	for i := 0; i < 200; i++ {
		v, err := Raw(randomMatchup(rng), chart)
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, v)
	}
	s, err := FitScaler("v7", rows)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScalerRoundTrip(t *testing.T) {
	s := fittedScaler(t)
	for _, col := range ContinuousColumns() {
		for _, raw := range []float64{0, 1, 42.5, 255, -3} {
			z, err := s.Transform(col, raw)
			if err != nil {
				t.Fatal(err)
			}
			back, err := s.Inverse(col, z)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(back-raw) > 1e-9 {
				t.Errorf("%s: %v -> %v -> %v", col, raw, z, back)
			}
		}
	}
}

func TestScalerValidate(t *testing.T) {
	tests := []struct {
		name string
		s    Scaler
	}{
		{"length mismatch", Scaler{Columns: []string{"a_hp"}, Mean: []float64{1, 2}, Std: []float64{1}}},
		{"zero std", Scaler{Columns: []string{"a_hp"}, Mean: []float64{1}, Std: []float64{0}}},
		{"nan mean", Scaler{Columns: []string{"a_hp"}, Mean: []float64{math.NaN()}, Std: []float64{1}}},
		{"duplicate", Scaler{Columns: []string{"a_hp", "a_hp"}, Mean: []float64{1, 1}, Std: []float64{1, 1}}},
	}
	for _, tt := range tests {
		if err := tt.s.Validate(); !errors.Is(err, ErrInvalidScaler) {
			t.Errorf("%s: got %v, want ErrInvalidScaler", tt.name, err)
		}
	}
}

func TestEncoderDeterministicAndFixedWidth(t *testing.T) {
	chart := battle.MustDefaultTypeChart()
	enc, err := NewEncoder(Columns(), fittedScaler(t), chart)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 100; i++ {
		m := randomMatchup(rng)
		first, err := enc.Encode(m)
		if err != nil {
			t.Fatal(err)
		}
		second, err := enc.Encode(m)
		if err != nil {
			t.Fatal(err)
		}
		if len(first) != enc.Width() || enc.Width() != Width() {
			t.Fatalf("width %d, encoder %d, schema %d", len(first), enc.Width(), Width())
		}
		for j := range first {
			if math.Float64bits(first[j]) != math.Float64bits(second[j]) {
				t.Fatalf("column %d differs between encodes: %v vs %v", j, first[j], second[j])
			}
		}
	}
}

func TestEncoderScalesAndReorders(t *testing.T) {
	chart := battle.MustDefaultTypeChart()
	scaler := fittedScaler(t)

	order := Columns()
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	enc, err := NewEncoder(order, scaler, chart)
	if err != nil {
		t.Fatal(err)
	}

	m := sampleMatchup()
	raw, _ := Raw(m, chart)
	vec, err := enc.Encode(m)
	if err != nil {
		t.Fatal(err)
	}

	for i, name := range order {
		j, _ := ColumnIndex(name)
		want := raw[j]
		if mean, std, err := scaler.Stats(name); err == nil {
			want = (raw[j] - mean) / std
		}
		if vec[i] != want {
			t.Errorf("%s at %d = %v, want %v", name, i, vec[i], want)
		}
	}

	// Flags and one-hot cells pass through unscaled.
	if got := vec[len(order)-1-mustIndex(t, "a_type1_water")]; got != 1 {
		t.Errorf("a_type1_water = %v, want 1", got)
	}
}

func mustIndex(t *testing.T, name string) int {
	t.Helper()
	i, ok := ColumnIndex(name)
	if !ok {
		t.Fatalf("no column %q", name)
	}
	return i
}

func TestNewEncoderRejectsMismatchedSchema(t *testing.T) {
	chart := battle.MustDefaultTypeChart()
	scaler := fittedScaler(t)

	short := Columns()[1:]
	dup := Columns()
	dup[1] = dup[0]
	unknown := Columns()
	unknown[0] = "a_type1_shadow"

	for name, order := range map[string][]string{"short": short, "duplicate": dup, "unknown": unknown} {
		if _, err := NewEncoder(order, scaler, chart); !errors.Is(err, ErrColumnMismatch) {
			t.Errorf("%s: got %v, want ErrColumnMismatch", name, err)
		}
	}

	partial := &Scaler{Version: "v7", Columns: scaler.Columns[1:], Mean: scaler.Mean[1:], Std: scaler.Std[1:]}
	if _, err := NewEncoder(Columns(), partial, chart); !errors.Is(err, ErrInvalidScaler) {
		t.Errorf("partial scaler: got %v, want ErrInvalidScaler", err)
	}
}
