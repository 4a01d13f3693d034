package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

func TestBuiltin_Keys(t *testing.T) {
	c := Builtin()
	assert.Equal(t, []string{KeyHouse, KeyTower, KeyCastle}, c.Keys())

	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestBuiltin_Shapes(t *testing.T) {
	cases := []struct {
		key   string
		name  string
		count int
		maxY  int
	}{
		{key: KeyHouse, name: "Simple House", count: 81, maxY: 3},
		{key: KeyTower, name: "Castle Tower", count: 99, maxY: 5},
		{key: KeyCastle, name: "Small Castle", count: 381, maxY: 6},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			tpl, ok := Builtin().Get(tc.key)
			require.True(t, ok)
			assert.Equal(t, tc.name, tpl.Name)
			assert.Len(t, tpl.Blocks, tc.count)

			seen := map[world.Vec3i]bool{}
			maxY := 0
			for _, b := range tpl.Blocks {
				assert.False(t, seen[b.Pos], "duplicate offset %+v", b.Pos)
				seen[b.Pos] = true
				assert.True(t, b.Material.Valid())
				maxY = max(maxY, b.Pos.Y)
			}
			assert.Equal(t, tc.maxY, maxY)
			assert.Equal(t, 0, tpl.Blocks[0].Pos.Y, "templates start with their floor")
		})
	}
}

func TestBuiltin_Details(t *testing.T) {
	c := Builtin()
	at := func(key string, p world.Vec3i) (material.Type, bool) {
		tpl, _ := c.Get(key)
		for _, b := range tpl.Blocks {
			if b.Pos == p {
				return b.Material, true
			}
		}
		return "", false
	}

	_, ok := at(KeyHouse, world.Vec3i{X: 0, Y: 1, Z: -2})
	assert.False(t, ok, "house door is open")
	// Repeated cells keep the material that claimed them first.
	for _, x := range []int{-1, 1} {
		m, _ := at(KeyHouse, world.Vec3i{X: x, Y: 1, Z: 2})
		assert.Equal(t, material.Brick, m, "house back wall at x=%d", x)
	}
	for y := 1; y <= 2; y++ {
		m, _ := at(KeyCastle, world.Vec3i{X: 0, Y: y, Z: -5})
		assert.Equal(t, material.Stone, m, "castle gate y=%d", y)
	}
	for _, k := range [][2]int{{-5, -5}, {-5, 5}, {5, -5}, {5, 5}} {
		for y := 1; y <= 5; y++ {
			want := material.Stone
			if y >= 4 {
				want = material.Brick
			}
			m, _ := at(KeyCastle, world.Vec3i{X: k[0], Y: y, Z: k[1]})
			assert.Equal(t, want, m, "corner %v y=%d", k, y)
		}
	}
	m, _ := at(KeyCastle, world.Vec3i{X: -3, Y: 4, Z: -5})
	assert.Equal(t, material.Stone, m, "battlement")
	m, _ = at(KeyCastle, world.Vec3i{X: 0, Y: 6, Z: 0})
	assert.Equal(t, material.Wood, m, "keep roof")

	_, ok = at(KeyTower, world.Vec3i{X: -1, Y: 5, Z: -2})
	assert.False(t, ok, "battlement gap")
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := Builtin()
	a, _ := c.Get(KeyHouse)
	a.Blocks[0].Material = material.Grass
	b, _ := c.Get(KeyHouse)
	assert.Equal(t, material.Stone, b.Blocks[0].Material)
}

func TestBuiltin_Reproducible(t *testing.T) {
	assert.Equal(t, Builtin().Digest(), Builtin().Digest())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hut.json", `{
	  "key": "hut",
	  "name": "Hut",
	  "blocks": [
	    {"pos": [0,0,0], "material": "wood"},
	    {"pos": [0,1,0], "material": "dirt"},
	    {"pos": [0,0,0], "material": "stone"}
	  ]
	}`)
	writeFile(t, dir, "notes.txt", "ignored")

	c, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyHouse, KeyTower, KeyCastle, "hut"}, c.Keys())

	hut, ok := c.Get("hut")
	require.True(t, ok)
	assert.Equal(t, "Hut", hut.Name)
	require.Len(t, hut.Blocks, 2)
	assert.Equal(t, material.Stone, hut.Blocks[0].Material)
	assert.NotEqual(t, Builtin().Digest(), c.Digest())
}

func TestLoadDir_MissingDir(t *testing.T) {
	c, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestLoadDir_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad material": `{"key":"x","blocks":[{"pos":[0,0,0],"material":"lava"}]}`,
		"short pos":    `{"key":"x","blocks":[{"pos":[0,0],"material":"wood"}]}`,
		"empty blocks": `{"key":"x","blocks":[]}`,
		"bad key":      `{"key":"Has Spaces","blocks":[{"pos":[0,0,0],"material":"wood"}]}`,
		"extra field":  `{"key":"x","color":1,"blocks":[{"pos":[0,0,0],"material":"wood"}]}`,
		"builtin key":  `{"key":"house","blocks":[{"pos":[0,0,0],"material":"wood"}]}`,
		"not json":     `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "t.json", body)
			_, err := LoadDir(dir)
			require.Error(t, err)
		})
	}
}

func TestLoadDir_DuplicateKeyIsErrDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"key":"tower","blocks":[{"pos":[0,0,0],"material":"wood"}]}`)
	_, err := LoadDir(dir)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}
