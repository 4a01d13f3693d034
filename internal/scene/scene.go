// Package scene mirrors world snapshots onto an id-keyed set of visual
// objects. It never decides what exists; the world does.
package scene

import (
	"sort"

	"blockcraft.dev/internal/sim/world"
)

// Scene is the render side: one visual object per block id.
type Scene interface {
	Add(b world.Block)
	Remove(id world.BlockID)
}

// Reconciler tracks which ids are currently shown in a Scene.
type Reconciler struct {
	scene   Scene
	shown   map[world.BlockID]world.Block
	version uint64
}

func NewReconciler(s Scene) *Reconciler {
	return &Reconciler{scene: s, shown: map[world.BlockID]world.Block{}}
}

// Delta is what Apply changed.
type Delta struct {
	Version uint64          `json:"version"`
	Added   []world.Block   `json:"added"`
	Removed []world.BlockID `json:"removed"`
}

func (d Delta) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Apply brings the scene in line with snap. Stale ids are removed first, then
// new ones added in snapshot order. A block whose material changed under the
// same id is replaced.
func (r *Reconciler) Apply(snap world.Snapshot) Delta {
	d := Delta{Version: snap.Version}
	next := make(map[world.BlockID]world.Block, len(snap.Blocks))
	for _, b := range snap.Blocks {
		next[b.ID] = b
	}

	for id, old := range r.shown {
		if nb, ok := next[id]; !ok || nb.Material != old.Material {
			d.Removed = append(d.Removed, id)
		}
	}
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i] < d.Removed[j] })
	for _, id := range d.Removed {
		r.scene.Remove(id)
		delete(r.shown, id)
	}

	for _, b := range snap.Blocks {
		if _, ok := r.shown[b.ID]; ok {
			continue
		}
		r.scene.Add(b)
		r.shown[b.ID] = b
		d.Added = append(d.Added, b)
	}
	r.version = snap.Version
	return d
}

func (r *Reconciler) Len() int { return len(r.shown) }

func (r *Reconciler) Version() uint64 { return r.version }

// Has reports whether id is currently shown.
func (r *Reconciler) Has(id world.BlockID) bool {
	_, ok := r.shown[id]
	return ok
}

// Discard is a Scene that keeps nothing. Reconcilers over it only compute
// deltas.
type Discard struct{}

func (Discard) Add(world.Block)       {}
func (Discard) Remove(world.BlockID) {}
