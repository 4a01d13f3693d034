package build

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blockcraft.dev/internal/metrics"
	"blockcraft.dev/internal/sim/blueprint"
	"blockcraft.dev/internal/sim/catalogs"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

var ErrUnknownStructure = errors.New("unknown structure")

const DefaultDelay = 50 * time.Millisecond

type Placer interface {
	Place(p world.Vec3i, m material.Type) (world.BlockID, error)
}

// PlacerSource returns the placer a build writes through. source identifies
// the build ("build:<id>") for auditing.
type PlacerSource func(source string) Placer

// Static uses p for every build.
func Static(p Placer) PlacerSource {
	return func(string) Placer { return p }
}

type lister interface {
	List() []world.Block
}

type Options struct {
	// Rotation in quarter turns or degrees, clockwise around Y.
	Rotation int
}

type Result struct {
	ID        string      `json:"build_id"`
	Structure string      `json:"structure"`
	Origin    world.Vec3i `json:"origin"`
	Placed    int         `json:"placed"`
	Skipped   int         `json:"skipped"`
	Cancelled bool        `json:"cancelled"`
	Complete  bool        `json:"complete"`
	// Min and Max bound the rotated template in world space, inclusive.
	Min world.Vec3i `json:"min"`
	Max world.Vec3i `json:"max"`
}

type Config struct {
	// Serialize runs builds one at a time instead of interleaving them.
	Serialize bool
}

type Builder struct {
	catalog *catalogs.Catalog
	placers PlacerSource
	log     *zap.Logger
	metrics *metrics.Metrics

	serialize bool
	turn      chan struct{}

	mu   sync.Mutex
	jobs map[string]*Job
}

func New(cat *catalogs.Catalog, placers PlacerSource, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		catalog:   cat,
		placers:   placers,
		log:       logger,
		metrics:   m,
		serialize: cfg.Serialize,
		turn:      make(chan struct{}, 1),
		jobs:      map[string]*Job{},
	}
}

func (b *Builder) Catalog() *catalogs.Catalog { return b.catalog }

// BuildImmediate places every block of the template at origin in template
// order. Occupied cells are skipped.
func (b *Builder) BuildImmediate(key string, origin world.Vec3i, opts Options) (Result, error) {
	return b.build(context.Background(), uuid.NewString(), key, origin, opts, nil)
}

// BuildAnimated places the template bottom-up, one block at a time, waiting
// delay after every placement. It returns once the last delay has elapsed or
// ctx is done; the result then reports Cancelled.
func (b *Builder) BuildAnimated(ctx context.Context, key string, origin world.Vec3i, delay time.Duration, opts Options) (Result, error) {
	return b.build(ctx, uuid.NewString(), key, origin, opts, &delay)
}

func (b *Builder) build(ctx context.Context, id, key string, origin world.Vec3i, opts Options, delay *time.Duration) (Result, error) {
	res := Result{ID: id, Structure: key, Origin: origin}
	tpl, ok := b.catalog.Get(key)
	if !ok {
		return res, fmt.Errorf("%w: %q", ErrUnknownStructure, key)
	}

	rot := blueprint.NormalizeRotation(opts.Rotation)
	lo, hi := blueprint.Footprint(tpl.Blocks, rot)
	res.Min, res.Max = origin.Add(lo), origin.Add(hi)

	mode := "immediate"
	blocks := tpl.Blocks
	if delay != nil {
		mode = "animated"
		blocks = bottomUp(blocks)
	}

	if b.serialize {
		select {
		case b.turn <- struct{}{}:
			defer func() { <-b.turn }()
		case <-ctx.Done():
			res.Cancelled = true
			return res, ctx.Err()
		}
	}

	start := time.Now()
	placer := b.placers("build:" + id)
	log := b.log.With(zap.String("build_id", id), zap.String("structure", key), zap.String("mode", mode))
	log.Debug("build started", zap.Int("blocks", len(blocks)), zap.Any("min", res.Min), zap.Any("max", res.Max))

	var err error
	for i, p := range blocks {
		if ctx.Err() != nil {
			res.Cancelled = true
			err = ctx.Err()
			break
		}
		pos := origin.Add(blueprint.RotateOffset(p.Pos, rot))
		if _, perr := placer.Place(pos, p.Material); perr != nil {
			if !errors.Is(perr, world.ErrAlreadyOccupied) {
				err = fmt.Errorf("place %v: %w", pos, perr)
				break
			}
			res.Skipped++
		} else {
			res.Placed++
		}
		if delay != nil && !sleep(ctx, *delay) {
			res.Cancelled = i < len(blocks)-1
			if res.Cancelled {
				err = ctx.Err()
			}
			break
		}
	}

	if l, ok := placer.(lister); ok && err == nil {
		res.Complete = isComplete(l, tpl.Blocks, origin, rot)
	}

	outcome := "ok"
	switch {
	case res.Cancelled:
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	b.metrics.Build(key, mode, outcome, res.Placed, res.Skipped, time.Since(start).Seconds())
	log.Info("build finished",
		zap.String("outcome", outcome),
		zap.Int("placed", res.Placed),
		zap.Int("skipped", res.Skipped),
		zap.Bool("complete", res.Complete),
		zap.Duration("took", time.Since(start)),
	)
	return res, err
}

// bottomUp orders placements by relative y, keeping template order within a
// layer.
func bottomUp(in []blueprint.Placement) []blueprint.Placement {
	out := make([]blueprint.Placement, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos.Y < out[j].Pos.Y })
	return out
}

func isComplete(l lister, blocks []blueprint.Placement, origin world.Vec3i, rot int) bool {
	have := map[world.Vec3i]material.Type{}
	for _, b := range l.List() {
		have[b.Pos] = b.Material
	}
	return blueprint.CheckPlaced(func(p world.Vec3i) (material.Type, bool) {
		m, ok := have[p]
		return m, ok
	}, blocks, origin, rot)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
