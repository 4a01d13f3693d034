package main

import (
	"flag"
	"fmt"
	"os"

	persistlog "blockcraft.dev/internal/persistence/log"
	"blockcraft.dev/internal/sim/engine"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/tuning"
	"blockcraft.dev/internal/sim/world"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory containing audit/")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning.yaml the server ran with")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	ground := world.GroundConfig{Size: tune.GroundSize, Material: material.Type(tune.GroundMaterial)}

	r := newReplayer(ground)
	if err := persistlog.ReadAudit(*dataDir, r.apply); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: entries=%d runs=%d blocks=%d version=%d digest=%s\n",
		r.entries, r.runs, r.world.Len(), r.world.Version(), r.world.Digest())
}

// replayer rebuilds the world from audit entries. A seq of 1 marks a server
// restart, which starts again from fresh ground.
type replayer struct {
	ground world.GroundConfig

	world   *world.World
	entries int
	runs    int
	lastSeq uint64
}

func newReplayer(ground world.GroundConfig) *replayer {
	return &replayer{ground: ground, world: world.New(ground)}
}

func (r *replayer) apply(e engine.AuditEntry) error {
	switch {
	case e.Seq == 1:
		if r.runs > 0 {
			r.world = world.New(r.ground)
		}
		r.runs++
	case r.runs == 0 || e.Seq != r.lastSeq+1:
		return fmt.Errorf("seq gap: got %d after %d", e.Seq, r.lastSeq)
	}
	r.lastSeq = e.Seq
	r.entries++

	if e.OK && e.Code == "" {
		switch e.Op {
		case engine.OpPlace:
			if e.Pos == nil {
				return fmt.Errorf("seq %d: place without pos", e.Seq)
			}
			if _, err := r.world.Place(world.FromArray(*e.Pos), material.Type(e.Material)); err != nil {
				return fmt.Errorf("seq %d: %w", e.Seq, err)
			}
		case engine.OpRemove:
			if !r.world.Remove(world.BlockID(e.BlockID)) {
				return fmt.Errorf("seq %d: remove %s: not present", e.Seq, e.BlockID)
			}
		case engine.OpClear:
			r.world.Clear()
		default:
			return fmt.Errorf("seq %d: unknown op %q", e.Seq, e.Op)
		}
	}

	if got := r.world.Len(); got != e.Blocks {
		return fmt.Errorf("block count mismatch at seq %d: got=%d want=%d", e.Seq, got, e.Blocks)
	}
	if got := r.world.Version(); got != e.Version {
		return fmt.Errorf("version mismatch at seq %d: got=%d want=%d", e.Seq, got, e.Version)
	}
	return nil
}
