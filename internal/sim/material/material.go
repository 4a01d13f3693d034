package material

import (
	"fmt"
	"strings"
)

// Type is a block material. It only drives appearance.
type Type string

const (
	Grass Type = "grass"
	Dirt  Type = "dirt"
	Stone Type = "stone"
	Wood  Type = "wood"
	Brick Type = "brick"
)

// Palette order, as shown by the block selector.
var all = []Type{Grass, Dirt, Stone, Wood, Brick}

var colors = map[Type]uint32{
	Grass: 0x3bab17,
	Dirt:  0x8b4513,
	Stone: 0x808080,
	Wood:  0x966f33,
	Brick: 0xb22222,
}

func Types() []Type {
	out := make([]Type, len(all))
	copy(out, all)
	return out
}

func (t Type) Valid() bool {
	_, ok := colors[t]
	return ok
}

func (t Type) String() string { return string(t) }

// Parse accepts any casing ("BRICK", "Brick").
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown material %q", s)
	}
	return t, nil
}

// Color returns the selector color as 0xRRGGBB.
func Color(t Type) uint32 { return colors[t] }

// ColorHex returns the selector color as "#rrggbb".
func ColorHex(t Type) string { return fmt.Sprintf("#%06x", colors[t]) }
