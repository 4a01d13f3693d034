package blueprint

import (
	"testing"

	"blockcraft.dev/internal/sim/world"
)

func TestNormalizeRotation_AcceptsDegreesAndQuarterTurns(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: 0},
		{in: 1, want: 1},
		{in: 2, want: 2},
		{in: 3, want: 3},
		{in: 4, want: 0},
		{in: -1, want: 3},
		{in: 90, want: 1},
		{in: 180, want: 2},
		{in: 270, want: 3},
		{in: 360, want: 0},
		{in: -90, want: 3},
	}
	for _, c := range cases {
		if got := NormalizeRotation(c.in); got != c.want {
			t.Fatalf("NormalizeRotation(%d)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestRotateOffset_KeepsY(t *testing.T) {
	off := world.Vec3i{X: 2, Y: 5, Z: -1}
	for rot := 0; rot < 4; rot++ {
		got := RotateOffset(off, rot)
		if got.Y != 5 {
			t.Fatalf("rot=%d changed y: %+v", rot, got)
		}
	}
	if got := RotateOffset(off, 1); got != (world.Vec3i{X: -1, Y: 5, Z: -2}) {
		t.Fatalf("rot=1 got %+v", got)
	}
	// Four quarter turns are the identity.
	p := off
	for i := 0; i < 4; i++ {
		p = RotateOffset(p, 1)
	}
	if p != off {
		t.Fatalf("full turn: got %+v want %+v", p, off)
	}
}
