package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"blockcraft.dev/internal/sim/material"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.GroundSize != 10 || got.BuildDelayMs != 50 || got.DefaultMaterial != "brick" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.BuildOrigin != [3]int{0, 1, 0} {
		t.Fatalf("build_origin=%v", got.BuildOrigin)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	p := writeFile(t, `
ground_size: 16
build_delay_ms: 5
serialize_builds: true
rate_limits:
  actions_per_sec: 2
textures:
  grass:
    top: grass_top.png
    side: grass_side.png
  stone:
    all: stone.png
`)
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.GroundSize != 16 || got.BuildDelayMs != 5 || !got.SerializeBuilds {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.RateLimits.ActionsPerSec != 2 || got.RateLimits.Burst != 40 {
		t.Fatalf("rate_limits=%+v", got.RateLimits)
	}
	if got.GroundMaterial != "grass" {
		t.Fatalf("ground_material=%q", got.GroundMaterial)
	}

	ov := got.TextureOverrides()
	if _, ok := ov[material.Grass].(material.TopSide); !ok {
		t.Fatalf("grass texture=%#v", ov[material.Grass])
	}
	if cfg, ok := ov[material.Stone].(material.All); !ok || cfg.URL != "stone.png" {
		t.Fatalf("stone texture=%#v", ov[material.Stone])
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"ground size":     "ground_size: 0\n",
		"ground material": "ground_material: lava\n",
		"texture shape":   "textures:\n  wood:\n    all: a.png\n    top: b.png\n",
		"texture name":    "textures:\n  glass:\n    all: a.png\n",
		"rate":            "rate_limits:\n  actions_per_sec: 0\n",
		"yaml":            "ground_size: [\n",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDefaultsValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
