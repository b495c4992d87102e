package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func intp(v int) *int { return &v }

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"water", TypeWater, false},
		{"  FIRE ", TypeFire, false},
		{"Fairy", TypeFairy, false},
		{"none", 0, true},
		{"plasma", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownType) {
			t.Errorf("ParseType(%q) err = %v, want ErrUnknownType", tt.in, err)
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if len(AllTypes()) != NumTypes || NumTypes != 18 {
		t.Errorf("AllTypes = %d, NumTypes = %d", len(AllTypes()), NumTypes)
	}
}

func TestCategoryText(t *testing.T) {
	c, err := ParseCategory("SPECIAL")
	if err != nil || c != CategorySpecial {
		t.Fatalf("ParseCategory = %v, %v", c, err)
	}
	if _, err := ParseCategory("support"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("err = %v, want ErrUnknownCategory", err)
	}

	var mv Move
	if err := json.Unmarshal([]byte(`{"id":3,"type":"Grass","category":"physical","power":55,"accuracy":95}`), &mv); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if mv.Type != TypeGrass || mv.Category != CategoryPhysical || mv.BasePower() != 55 {
		t.Errorf("move = %+v", mv)
	}
	if err := json.Unmarshal([]byte(`{"type":"shadow","category":"physical"}`), &mv); err == nil {
		t.Error("expected error for unknown type tag")
	}
}

func TestMoveValidate(t *testing.T) {
	tests := []struct {
		name    string
		move    Move
		wantErr bool
	}{
		{"damaging", Move{Type: TypeFire, Category: CategorySpecial, Power: intp(90), Accuracy: 100}, false},
		{"status without power", Move{Type: TypeNormal, Category: CategoryStatus}, false},
		{"status with zero power", Move{Type: TypeNormal, Category: CategoryStatus, Power: intp(0), Accuracy: 0}, false},
		{"damaging without power", Move{Type: TypeFire, Category: CategoryPhysical, Accuracy: 100}, true},
		{"damaging zero accuracy", Move{Type: TypeFire, Category: CategoryPhysical, Power: intp(40)}, true},
		{"accuracy over 100", Move{Type: TypeFire, Category: CategoryPhysical, Power: intp(40), Accuracy: 101}, true},
		{"priority out of range", Move{Type: TypeFire, Category: CategoryPhysical, Power: intp(40), Accuracy: 100, Priority: 6}, true},
		{"unknown type", Move{Type: TypeNone, Category: CategoryPhysical, Power: intp(40), Accuracy: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.move.Validate("m.")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
			var vErr *ValidationError
			if err != nil && !errors.As(err, &vErr) {
				t.Errorf("err = %T, want *ValidationError", err)
			}
		})
	}
}

func TestCombatantValidate(t *testing.T) {
	base := Combatant{
		ID:    "x",
		Stats: Stats{HP: 50, Attack: 50, Defense: 50, SpAttack: 50, SpDefense: 50, Speed: 50},
		Types: []Type{TypeWater, TypeGround},
	}
	if err := base.Validate(""); err != nil {
		t.Fatalf("valid combatant: %v", err)
	}
	if base.Secondary() != TypeGround || !base.HasType(TypeWater) {
		t.Errorf("types accessors wrong")
	}

	mono := base
	mono.Types = []Type{TypeWater}
	if mono.Secondary() != TypeNone {
		t.Errorf("Secondary = %v, want none", mono.Secondary())
	}

	tests := []struct {
		name  string
		edit  func(c *Combatant)
		field string
	}{
		{"missing id", func(c *Combatant) { c.ID = "" }, "a.id"},
		{"no types", func(c *Combatant) { c.Types = nil }, "a.types"},
		{"three types", func(c *Combatant) { c.Types = []Type{TypeFire, TypeWater, TypeGrass} }, "a.types"},
		{"duplicate types", func(c *Combatant) { c.Types = []Type{TypeFire, TypeFire} }, "a.types"},
		{"zero hp", func(c *Combatant) { c.Stats.HP = 0 }, "a.stats.hp"},
		{"speed over max", func(c *Combatant) { c.Stats.Speed = 256 }, "a.stats.speed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Types = append([]Type(nil), base.Types...)
			tt.edit(&c)
			err := c.Validate("a.")
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}
