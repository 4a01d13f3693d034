package interact

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

// ErrNoTarget means the pointer event did not resolve to a block face.
var ErrNoTarget = errors.New("no target")

// Hit is the nearest ray intersection reported by the renderer.
type Hit struct {
	BlockID world.BlockID `json:"block_id"`
	// Normal is the world-space normal of the intersected face.
	Normal *[3]float64 `json:"normal,omitempty"`
}

type World interface {
	Place(p world.Vec3i, m material.Type) (world.BlockID, error)
	Remove(id world.BlockID) (bool, error)
}

// Resolver turns pointer hits into world mutations. The selected material is
// read on every primary action.
type Resolver struct {
	world    World
	selected func() material.Type
}

func NewResolver(w World, selected func() material.Type) *Resolver {
	return &Resolver{world: w, selected: selected}
}

// Primary places the selected material on the cell adjacent to the hit face.
func (r *Resolver) Primary(hit *Hit) (world.BlockID, error) {
	cell, ok := TargetCell(hit)
	if !ok {
		return "", ErrNoTarget
	}
	return r.world.Place(cell, r.selected())
}

// Secondary removes the hit block.
func (r *Resolver) Secondary(hit *Hit) (bool, error) {
	if hit == nil || hit.BlockID == "" {
		return false, ErrNoTarget
	}
	return r.world.Remove(hit.BlockID)
}

// TargetCell is the hit block's cell moved one unit along the face normal.
// The normal is snapped to its dominant axis.
func TargetCell(hit *Hit) (world.Vec3i, bool) {
	if hit == nil || hit.Normal == nil {
		return world.Vec3i{}, false
	}
	base, err := world.ParseID(hit.BlockID)
	if err != nil {
		return world.Vec3i{}, false
	}
	step, ok := snapNormal(mgl64.Vec3(*hit.Normal))
	if !ok {
		return world.Vec3i{}, false
	}
	return base.Add(step), true
}

func snapNormal(n mgl64.Vec3) (world.Vec3i, bool) {
	for _, c := range n {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return world.Vec3i{}, false
		}
	}
	if n.Len() < 1e-9 {
		return world.Vec3i{}, false
	}
	n = n.Normalize()
	axis := 0
	for i := 1; i < 3; i++ {
		if math.Abs(n[i]) > math.Abs(n[axis]) {
			axis = i
		}
	}
	var out [3]int
	if n[axis] > 0 {
		out[axis] = 1
	} else {
		out[axis] = -1
	}
	return world.FromArray(out), true
}

// Selection holds a session's currently selected material.
type Selection struct {
	v atomic.Value
}

func NewSelection(initial material.Type) *Selection {
	s := &Selection{}
	if !initial.Valid() {
		initial = material.Brick
	}
	s.v.Store(initial)
	return s
}

func (s *Selection) Get() material.Type { return s.v.Load().(material.Type) }

func (s *Selection) Set(m material.Type) error {
	if !m.Valid() {
		return world.ErrUnknownMaterial
	}
	s.v.Store(m)
	return nil
}
