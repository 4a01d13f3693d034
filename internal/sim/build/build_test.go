package build

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"blockcraft.dev/internal/sim/blueprint"
	"blockcraft.dev/internal/sim/catalogs"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

// lockedWorld lets builds running on job goroutines share one world.
type lockedWorld struct {
	mu sync.Mutex
	w  *world.World

	sources []string
}

func (l *lockedWorld) placer(source string) Placer {
	return placerFunc(func(p world.Vec3i, m material.Type) (world.BlockID, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.sources = append(l.sources, source)
		return l.w.Place(p, m)
	})
}

func (l *lockedWorld) List() []world.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.List()
}

type placerFunc func(p world.Vec3i, m material.Type) (world.BlockID, error)

func (f placerFunc) Place(p world.Vec3i, m material.Type) (world.BlockID, error) { return f(p, m) }

func newBuilder(t *testing.T, src PlacerSource, cfg Config) *Builder {
	return New(catalogs.Builtin(), src, cfg, zaptest.NewLogger(t), nil)
}

func TestBuildImmediate_House(t *testing.T) {
	w := world.New(world.DefaultGround())
	b := newBuilder(t, Static(w), Config{})
	origin := world.Vec3i{X: 0, Y: 1, Z: 0}

	res, err := b.BuildImmediate(catalogs.KeyHouse, origin, Options{})
	require.NoError(t, err)

	tpl, _ := catalogs.Builtin().Get(catalogs.KeyHouse)
	assert.Equal(t, len(tpl.Blocks), res.Placed)
	assert.Equal(t, 0, res.Skipped)
	assert.True(t, res.Complete)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 100+len(tpl.Blocks), w.Len())

	for _, p := range tpl.Blocks {
		got, ok := w.BlockAt(origin.Add(p.Pos))
		require.True(t, ok, "missing %+v", p.Pos)
		assert.Equal(t, p.Material, got.Material)
	}

	// Template order is kept for immediate builds.
	blocks := w.List()
	assert.Equal(t, origin.Add(tpl.Blocks[0].Pos), blocks[100].Pos)
	assert.Equal(t, origin.Add(tpl.Blocks[len(tpl.Blocks)-1].Pos), blocks[len(blocks)-1].Pos)
}

func TestBuildImmediate_SkipsOccupied(t *testing.T) {
	w := world.New(world.DefaultGround())
	b := newBuilder(t, Static(w), Config{})

	// Ground level origin: the floor overlaps the 25 grass cells under it.
	res, err := b.BuildImmediate(catalogs.KeyHouse, world.Vec3i{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 25, res.Skipped)
	assert.Equal(t, 81-25, res.Placed)
	assert.False(t, res.Complete, "grass floor is not the stone floor")

	got, _ := w.BlockAt(world.Vec3i{})
	assert.Equal(t, material.Grass, got.Material)
}

func TestBuildImmediate_DetailCellsKeepWallMaterial(t *testing.T) {
	w := world.New(world.DefaultGround())
	b := newBuilder(t, Static(w), Config{})
	origin := world.Vec3i{Y: 1}

	_, err := b.BuildImmediate(catalogs.KeyHouse, origin, Options{})
	require.NoError(t, err)
	got, ok := w.BlockAt(origin.Add(world.Vec3i{X: -1, Y: 1, Z: 2}))
	require.True(t, ok)
	assert.Equal(t, material.Brick, got.Material, "house window cell")

	w.Clear()
	res, err := b.BuildImmediate(catalogs.KeyCastle, origin, Options{})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, world.Vec3i{X: -5, Y: 1, Z: -5}, res.Min)
	assert.Equal(t, world.Vec3i{X: 5, Y: 7, Z: 5}, res.Max)
	for rel, want := range map[world.Vec3i]material.Type{
		{X: 0, Y: 1, Z: -5}:  material.Stone,
		{X: 0, Y: 2, Z: -5}:  material.Stone,
		{X: -5, Y: 1, Z: -5}: material.Stone,
		{X: 5, Y: 3, Z: 5}:   material.Stone,
		{X: 5, Y: 4, Z: 5}:   material.Brick,
	} {
		got, ok := w.BlockAt(origin.Add(rel))
		require.True(t, ok, "missing %+v", rel)
		assert.Equal(t, want, got.Material, "castle %+v", rel)
	}
}

func TestBuild_UnknownStructure(t *testing.T) {
	w := world.New(world.DefaultGround())
	b := newBuilder(t, Static(w), Config{})
	before := w.Digest()

	_, err := b.BuildImmediate("nonexistent", world.Vec3i{}, Options{})
	assert.ErrorIs(t, err, ErrUnknownStructure)
	_, err = b.BuildAnimated(context.Background(), "nonexistent", world.Vec3i{}, time.Millisecond, Options{})
	assert.ErrorIs(t, err, ErrUnknownStructure)
	_, err = b.Start(context.Background(), "nonexistent", world.Vec3i{}, time.Millisecond, Options{})
	assert.ErrorIs(t, err, ErrUnknownStructure)

	assert.Equal(t, before, w.Digest())
	assert.Equal(t, uint64(0), w.Version())
}

func TestBuildAnimated_MatchesImmediate(t *testing.T) {
	for _, key := range []string{catalogs.KeyHouse, catalogs.KeyTower} {
		t.Run(key, func(t *testing.T) {
			origin := world.Vec3i{X: 0, Y: 1, Z: 0}

			wi := world.New(world.DefaultGround())
			_, err := newBuilder(t, Static(wi), Config{}).BuildImmediate(key, origin, Options{})
			require.NoError(t, err)

			wa := world.New(world.DefaultGround())
			var ys []int
			seen := map[world.Vec3i]bool{}
			for _, b := range wa.List() {
				seen[b.Pos] = true
			}
			wa.Subscribe(func(s world.Snapshot) {
				for _, b := range s.Blocks {
					if !seen[b.Pos] {
						seen[b.Pos] = true
						ys = append(ys, b.Pos.Y-origin.Y)
					}
				}
			})

			start := time.Now()
			res, err := newBuilder(t, Static(wa), Config{}).BuildAnimated(context.Background(), key, origin, time.Millisecond, Options{})
			require.NoError(t, err)
			assert.False(t, res.Cancelled)
			assert.True(t, res.Complete)
			assert.GreaterOrEqual(t, time.Since(start), time.Duration(res.Placed)*time.Millisecond)

			assert.Equal(t, wi.Digest(), wa.Digest())
			require.Len(t, ys, res.Placed)
			for i := 1; i < len(ys); i++ {
				require.LessOrEqual(t, ys[i-1], ys[i], "placement %d went down", i)
			}
		})
	}
}

func TestBottomUp_IsStable(t *testing.T) {
	in := []blueprint.Placement{
		{Pos: world.Vec3i{X: 0, Y: 2}},
		{Pos: world.Vec3i{X: 1, Y: 0}},
		{Pos: world.Vec3i{X: 2, Y: 2}},
		{Pos: world.Vec3i{X: 3, Y: 0}},
		{Pos: world.Vec3i{X: 4, Y: 1}},
	}
	out := bottomUp(in)
	xs := []int{}
	for _, p := range out {
		xs = append(xs, p.Pos.X)
	}
	assert.Equal(t, []int{1, 3, 4, 0, 2}, xs)
	assert.Equal(t, 0, in[0].Pos.X, "input untouched")
}

func TestBuildAnimated_Cancel(t *testing.T) {
	w := world.New(world.DefaultGround())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := 0
	src := func(string) Placer {
		return placerFunc(func(p world.Vec3i, m material.Type) (world.BlockID, error) {
			n++
			if n == 5 {
				cancel()
			}
			return w.Place(p, m)
		})
	}
	res, err := newBuilder(t, src, Config{}).BuildAnimated(ctx, catalogs.KeyCastle, world.Vec3i{Y: 1}, time.Hour, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 5, res.Placed)
	assert.Equal(t, 105, w.Len())
}

func TestBuild_PlacerFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	src := Static(placerFunc(func(world.Vec3i, material.Type) (world.BlockID, error) { return "", boom }))
	res, err := newBuilder(t, src, Config{}).BuildImmediate(catalogs.KeyTower, world.Vec3i{}, Options{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, res.Placed)
}

func TestBuild_Rotation(t *testing.T) {
	w := world.New(world.GroundConfig{Size: 0})
	b := newBuilder(t, Static(w), Config{})
	origin := world.Vec3i{X: 20, Y: 1, Z: 20}

	res, err := b.BuildImmediate(catalogs.KeyHouse, origin, Options{Rotation: 90})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, world.Vec3i{X: 18, Y: 1, Z: 18}, res.Min)
	assert.Equal(t, world.Vec3i{X: 22, Y: 4, Z: 22}, res.Max)

	// The door at (0,1,-2) ends up on the -x side after a quarter turn.
	_, ok := w.BlockAt(origin.Add(world.Vec3i{X: -2, Y: 1, Z: 0}))
	assert.False(t, ok)
	_, ok = w.BlockAt(origin.Add(world.Vec3i{X: 0, Y: 1, Z: -2}))
	assert.True(t, ok)
}

func TestStart_JobsAndCancel(t *testing.T) {
	lw := &lockedWorld{w: world.New(world.DefaultGround())}
	b := newBuilder(t, lw.placer, Config{})

	job, err := b.Start(context.Background(), catalogs.KeyCastle, world.Vec3i{Y: 1}, 20*time.Millisecond, Options{})
	require.NoError(t, err)
	require.Len(t, b.Active(), 1)
	assert.Equal(t, job.ID, b.Active()[0].ID)

	assert.True(t, b.Cancel(job.ID))
	res, err := job.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Cancelled)
	assert.Less(t, res.Placed, 381)
	assert.Equal(t, job.ID, res.ID)

	assert.Eventually(t, func() bool { return len(b.Active()) == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Cancel(job.ID))
	assert.Equal(t, "build:"+job.ID, lw.sources[0])
}

func TestStart_InterleavesByDefault(t *testing.T) {
	lw := &lockedWorld{w: world.New(world.GroundConfig{Size: 0})}
	b := newBuilder(t, lw.placer, Config{})

	j1, err := b.Start(context.Background(), catalogs.KeyTower, world.Vec3i{X: -10}, 2*time.Millisecond, Options{})
	require.NoError(t, err)
	j2, err := b.Start(context.Background(), catalogs.KeyTower, world.Vec3i{X: 10}, 2*time.Millisecond, Options{})
	require.NoError(t, err)
	_, err = j1.Wait()
	require.NoError(t, err)
	_, err = j2.Wait()
	require.NoError(t, err)

	assert.Equal(t, 2*99, len(lw.List()))
}

func TestStart_OverlappingBuildsKeepFirstPlacement(t *testing.T) {
	lw := &lockedWorld{w: world.New(world.GroundConfig{Size: 0})}
	b := newBuilder(t, lw.placer, Config{})

	j1, err := b.Start(context.Background(), catalogs.KeyHouse, world.Vec3i{}, time.Millisecond, Options{})
	require.NoError(t, err)
	j2, err := b.Start(context.Background(), catalogs.KeyTower, world.Vec3i{}, time.Millisecond, Options{})
	require.NoError(t, err)
	r1, err := j1.Wait()
	require.NoError(t, err)
	r2, err := j2.Wait()
	require.NoError(t, err)

	// Every offset of either template is filled exactly once.
	seen := map[world.Vec3i]bool{}
	for _, k := range []string{catalogs.KeyHouse, catalogs.KeyTower} {
		tpl, _ := catalogs.Builtin().Get(k)
		for _, p := range tpl.Blocks {
			seen[p.Pos] = true
		}
	}
	assert.Equal(t, len(seen), len(lw.List()))
	assert.Equal(t, len(seen), r1.Placed+r2.Placed)
}

func TestStart_Serialized(t *testing.T) {
	lw := &lockedWorld{w: world.New(world.GroundConfig{Size: 0})}
	b := newBuilder(t, lw.placer, Config{Serialize: true})

	j1, err := b.Start(context.Background(), catalogs.KeyHouse, world.Vec3i{X: -10}, time.Millisecond, Options{})
	require.NoError(t, err)
	// Let the first job take its turn.
	require.Eventually(t, func() bool {
		lw.mu.Lock()
		defer lw.mu.Unlock()
		return len(lw.sources) > 0
	}, time.Second, time.Millisecond)
	j2, err := b.Start(context.Background(), catalogs.KeyHouse, world.Vec3i{X: 10}, time.Millisecond, Options{})
	require.NoError(t, err)

	_, err = j1.Wait()
	require.NoError(t, err)
	_, err = j2.Wait()
	require.NoError(t, err)

	assert.True(t, finishedBefore(lw.sources, "build:"+j1.ID, "build:"+j2.ID))
}

// finishedBefore reports whether every entry of a precedes every entry of b.
func finishedBefore(sources []string, a, b string) bool {
	lastA, firstB := -1, len(sources)
	for i, s := range sources {
		if s == a {
			lastA = i
		}
		if s == b && i < firstB {
			firstB = i
		}
	}
	return lastA < firstB
}
