package world

import "blockcraft.dev/internal/sim/material"

const DefaultGroundSize = 10

// GroundConfig describes the flat square seeded on y=0 at creation and after
// every Clear. Cells span [-Size/2, Size/2) on x and z.
type GroundConfig struct {
	Size     int           `json:"size"`
	Material material.Type `json:"material"`
}

func DefaultGround() GroundConfig {
	return GroundConfig{Size: DefaultGroundSize, Material: material.Grass}
}

func (g GroundConfig) normalized() GroundConfig {
	if g.Size < 0 {
		g.Size = 0
	}
	if !g.Material.Valid() {
		g.Material = material.Grass
	}
	return g
}

// Cells returns the ground positions in seeding order (x outer, z inner).
func (g GroundConfig) Cells() []Vec3i {
	half := g.Size / 2
	lo, hi := -half, g.Size-half
	out := make([]Vec3i, 0, g.Size*g.Size)
	for x := lo; x < hi; x++ {
		for z := lo; z < hi; z++ {
			out = append(out, Vec3i{X: x, Y: 0, Z: z})
		}
	}
	return out
}

func (w *World) seedGround() {
	for _, p := range w.ground.Cells() {
		if _, ok := w.index[p]; ok {
			continue
		}
		w.insert(Block{ID: IDOf(p), Pos: p, Material: w.ground.Material})
	}
}
