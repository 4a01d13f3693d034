package world

import (
	"fmt"

	"blockcraft.dev/internal/sim/material"
)

// World is a sparse voxel store holding at most one block per cell.
// It is not safe for concurrent use: all access must come from one goroutine
// (see internal/sim/engine).
type World struct {
	ground GroundConfig

	blocks []Block
	index  map[Vec3i]int

	version uint64

	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

func New(ground GroundConfig) *World {
	w := &World{
		ground: ground.normalized(),
		index:  map[Vec3i]int{},
		subs:   map[uint64]func(Snapshot){},
	}
	w.seedGround()
	return w
}

func (w *World) Ground() GroundConfig { return w.ground }

// Place inserts a block at p. An occupied cell is never overwritten.
func (w *World) Place(p Vec3i, m material.Type) (BlockID, error) {
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMaterial, m)
	}
	id := IDOf(p)
	if _, ok := w.index[p]; ok {
		return id, ErrAlreadyOccupied
	}
	w.insert(Block{ID: id, Pos: p, Material: m})
	w.notify()
	return id, nil
}

// Remove deletes the block with the given id. Missing ids are a no-op; the
// return value reports whether a block was removed.
func (w *World) Remove(id BlockID) bool {
	p, err := ParseID(id)
	if err != nil {
		return false
	}
	i, ok := w.index[p]
	if !ok {
		return false
	}
	w.blocks = append(w.blocks[:i], w.blocks[i+1:]...)
	delete(w.index, p)
	for j := i; j < len(w.blocks); j++ {
		w.index[w.blocks[j].Pos] = j
	}
	w.notify()
	return true
}

// Clear resets the world to the initial ground with a single notification.
func (w *World) Clear() {
	w.blocks = nil
	w.index = map[Vec3i]int{}
	w.seedGround()
	w.notify()
}

// List returns a copy of all blocks in insertion order.
func (w *World) List() []Block {
	out := make([]Block, len(w.blocks))
	copy(out, w.blocks)
	return out
}

func (w *World) BlockAt(p Vec3i) (Block, bool) {
	i, ok := w.index[p]
	if !ok {
		return Block{}, false
	}
	return w.blocks[i], true
}

func (w *World) Len() int { return len(w.blocks) }

// Version counts notified mutations since creation.
func (w *World) Version() uint64 { return w.version }

func (w *World) Snapshot() Snapshot {
	return Snapshot{Version: w.version, Blocks: w.List()}
}

func (w *World) insert(b Block) {
	w.index[b.Pos] = len(w.blocks)
	w.blocks = append(w.blocks, b)
}
