package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Type is an elemental type tag. The set is closed: every value in
// [TypeNormal, TypeFairy] is a real type and TypeNone marks an absent
// secondary type. Index order is part of the feature schema.
type Type uint8

const (
	TypeNormal Type = iota
	TypeFire
	TypeWater
	TypeElectric
	TypeGrass
	TypeIce
	TypeFighting
	TypePoison
	TypeGround
	TypeFlying
	TypePsychic
	TypeBug
	TypeRock
	TypeGhost
	TypeDragon
	TypeDark
	TypeSteel
	TypeFairy

	// TypeNone is only valid as a secondary type in encoded features.
	TypeNone
)

// NumTypes is the number of real elemental types.
const NumTypes = int(TypeNone)

var typeNames = [...]string{
	TypeNormal:   "normal",
	TypeFire:     "fire",
	TypeWater:    "water",
	TypeElectric: "electric",
	TypeGrass:    "grass",
	TypeIce:      "ice",
	TypeFighting: "fighting",
	TypePoison:   "poison",
	TypeGround:   "ground",
	TypeFlying:   "flying",
	TypePsychic:  "psychic",
	TypeBug:      "bug",
	TypeRock:     "rock",
	TypeGhost:    "ghost",
	TypeDragon:   "dragon",
	TypeDark:     "dark",
	TypeSteel:    "steel",
	TypeFairy:    "fairy",
	TypeNone:     "none",
}

// AllTypes returns the real elemental types in schema order.
func AllTypes() []Type {
	out := make([]Type, NumTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Valid reports whether t is one of the real elemental types.
func (t Type) Valid() bool {
	return t < TypeNone
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType resolves a type tag case-insensitively. "none" is rejected:
// an absent secondary type is expressed by omitting it.
func ParseType(s string) (Type, error) {
	key := normalizeTag(s)
	for i := 0; i < NumTypes; i++ {
		if typeNames[i] == key {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Category is a move's damage category.
type Category uint8

const (
	CategoryPhysical Category = iota
	CategorySpecial
	CategoryStatus
)

// NumCategories is the width of the category one-hot block.
const NumCategories = 3

var categoryNames = [...]string{
	CategoryPhysical: "physical",
	CategorySpecial:  "special",
	CategoryStatus:   "status",
}

func (c Category) Valid() bool {
	return int(c) < NumCategories
}

func (c Category) String() string {
	if c.Valid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

func ParseCategory(s string) (Category, error) {
	key := normalizeTag(s)
	for i, name := range categoryNames {
		if name == key {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// normalizeTag folds case for tag lookup. Casers carry state, so one is
// built per call instead of shared across goroutines.
func normalizeTag(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
