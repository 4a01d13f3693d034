package blueprint

import (
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

type BlockGetter func(p world.Vec3i) (material.Type, bool)

type Placement struct {
	Pos      world.Vec3i   `json:"pos"`
	Material material.Type `json:"material"`
}

// CheckPlaced reports whether every placement is present at anchor with the
// expected material.
func CheckPlaced(get BlockGetter, blocks []Placement, anchor world.Vec3i, rotation int) bool {
	if get == nil || len(blocks) == 0 {
		return false
	}
	rot := NormalizeRotation(rotation)
	for _, b := range blocks {
		m, ok := get(anchor.Add(RotateOffset(b.Pos, rot)))
		if !ok || m != b.Material {
			return false
		}
	}
	return true
}

// Footprint returns the inclusive bounding box of the rotated placements
// relative to the anchor.
func Footprint(blocks []Placement, rotation int) (lo, hi world.Vec3i) {
	rot := NormalizeRotation(rotation)
	for i, b := range blocks {
		p := RotateOffset(b.Pos, rot)
		if i == 0 {
			lo, hi = p, p
			continue
		}
		lo = world.Vec3i{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = world.Vec3i{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return lo, hi
}
