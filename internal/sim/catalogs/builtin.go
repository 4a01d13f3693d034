package catalogs

import (
	"blockcraft.dev/internal/sim/blueprint"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

const (
	KeyHouse  = "house"
	KeyTower  = "tower"
	KeyCastle = "castle"
)

// composer appends placements in order. An offset that is already set keeps
// its first material, the same way placing into an occupied cell is refused.
type composer struct {
	blocks []blueprint.Placement
	slot   map[world.Vec3i]int
}

func newComposer() *composer {
	return &composer{slot: map[world.Vec3i]int{}}
}

func (c *composer) set(x, y, z int, m material.Type) {
	p := world.Vec3i{X: x, Y: y, Z: z}
	if _, ok := c.slot[p]; ok {
		return
	}
	c.slot[p] = len(c.blocks)
	c.blocks = append(c.blocks, blueprint.Placement{Pos: p, Material: m})
}

// slab fills x in [x0,x1] and z in [z0,z1] at height y.
func (c *composer) slab(x0, x1, y, z0, z1 int, m material.Type) {
	for x := x0; x <= x1; x++ {
		for z := z0; z <= z1; z++ {
			c.set(x, y, z, m)
		}
	}
}

func (c *composer) done() []blueprint.Placement { return c.blocks }

// Builtin returns a catalog with the house, tower and castle templates.
func Builtin() *Catalog {
	c := newCatalog()
	for _, t := range []Template{
		{Key: KeyHouse, Name: "Simple House", Blocks: house()},
		{Key: KeyTower, Name: "Castle Tower", Blocks: tower()},
		{Key: KeyCastle, Name: "Small Castle", Blocks: castle()},
	} {
		_ = c.add(t, digestPlacements(t.Blocks))
	}
	return c
}

func house() []blueprint.Placement {
	c := newComposer()
	c.slab(-2, 2, 0, -2, 2, material.Stone)

	// Front wall, door gap at x=0 on the lower course.
	for y := 1; y <= 2; y++ {
		for x := -2; x <= 2; x++ {
			if y == 1 && x == 0 {
				continue
			}
			c.set(x, y, -2, material.Brick)
		}
	}
	for x := -2; x <= 2; x++ {
		for y := 1; y <= 2; y++ {
			c.set(x, y, 2, material.Brick)
		}
	}
	for _, x := range []int{-2, 2} {
		for z := -2; z <= 2; z++ {
			for y := 1; y <= 2; y++ {
				c.set(x, y, z, material.Brick)
			}
		}
	}
	c.slab(-2, 2, 3, -2, 2, material.Wood)

	// Windows. The back wall already holds these cells, so they stay brick.
	c.set(-1, 1, 2, material.Wood)
	c.set(1, 1, 2, material.Wood)
	return c.done()
}

func tower() []blueprint.Placement {
	c := newComposer()
	c.slab(-2, 2, 0, -2, 2, material.Stone)
	for y := 1; y <= 4; y++ {
		for x := -2; x <= 2; x++ {
			c.set(x, y, -2, material.Stone)
			c.set(x, y, 2, material.Stone)
		}
		for z := -1; z <= 1; z++ {
			c.set(-2, y, z, material.Stone)
			c.set(2, y, z, material.Stone)
		}
	}
	// Battlements on every other cell.
	for x := -2; x <= 2; x += 2 {
		c.set(x, 5, -2, material.Stone)
		c.set(x, 5, 2, material.Stone)
	}
	for z := -1; z <= 1; z += 2 {
		c.set(-2, 5, z, material.Stone)
		c.set(2, 5, z, material.Stone)
	}
	return c.done()
}

func castle() []blueprint.Placement {
	c := newComposer()
	c.slab(-5, 5, 0, -5, 5, material.Stone)

	for x := -5; x <= 5; x++ {
		for y := 1; y <= 3; y++ {
			c.set(x, y, -5, material.Stone)
		}
		for y := 1; y <= 3; y++ {
			c.set(x, y, 5, material.Stone)
		}
	}
	for z := -4; z <= 4; z++ {
		for y := 1; y <= 3; y++ {
			c.set(-5, y, z, material.Stone)
		}
		for y := 1; y <= 3; y++ {
			c.set(5, y, z, material.Stone)
		}
	}

	corners := [][2]int{{-5, -5}, {-5, 5}, {5, -5}, {5, 5}}
	for _, k := range corners {
		for y := 1; y <= 5; y++ {
			c.set(k[0], y, k[1], material.Brick)
		}
	}

	// Gate. The front wall already holds these cells, so they stay stone.
	c.set(0, 1, -5, material.Wood)
	c.set(0, 2, -5, material.Wood)

	// Battlements.
	for x := -5; x <= 5; x += 2 {
		c.set(x, 4, -5, material.Stone)
		c.set(x, 4, 5, material.Stone)
	}
	for z := -4; z <= 4; z += 2 {
		c.set(-5, 4, z, material.Stone)
		c.set(5, 4, z, material.Stone)
	}

	// Central keep.
	for x := -2; x <= 2; x++ {
		for z := -2; z <= 2; z++ {
			c.set(x, 1, z, material.Brick)
			if x == -2 || x == 2 || z == -2 || z == 2 {
				for y := 2; y <= 5; y++ {
					c.set(x, y, z, material.Brick)
				}
			}
		}
	}
	c.slab(-2, 2, 6, -2, 2, material.Wood)
	return c.done()
}
