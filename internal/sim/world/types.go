package world

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"blockcraft.dev/internal/sim/material"
)

var (
	ErrAlreadyOccupied = errors.New("position already occupied")
	ErrUnknownMaterial = errors.New("unknown material")
	ErrBadID           = errors.New("malformed block id")
)

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func FromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

// Less orders positions by y, then z, then x.
func (v Vec3i) Less(o Vec3i) bool {
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	if v.Z != o.Z {
		return v.Z < o.Z
	}
	return v.X < o.X
}

// BlockID is the canonical identity of the cell a block occupies.
type BlockID string

func IDOf(p Vec3i) BlockID {
	return BlockID(fmt.Sprintf("%d_%d_%d", p.X, p.Y, p.Z))
}

func ParseID(id BlockID) (Vec3i, error) {
	parts := strings.Split(string(id), "_")
	if len(parts) != 3 {
		return Vec3i{}, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	var out [3]int
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Vec3i{}, fmt.Errorf("%w: %q", ErrBadID, id)
		}
		out[i] = n
	}
	return FromArray(out), nil
}

type Block struct {
	ID       BlockID       `json:"id"`
	Pos      Vec3i         `json:"pos"`
	Material material.Type `json:"material"`
}

// Snapshot is the full visible state after a mutation.
type Snapshot struct {
	Version uint64  `json:"version"`
	Blocks  []Block `json:"blocks"`
}
