package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"blockcraft.dev/internal/sim/material"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	GroundSize     int    `yaml:"ground_size"`
	GroundMaterial string `yaml:"ground_material"`

	BuildDelayMs    int    `yaml:"build_delay_ms"`
	BuildOrigin     [3]int `yaml:"build_origin"`
	SerializeBuilds bool   `yaml:"serialize_builds"`

	DefaultMaterial string `yaml:"default_material"`
	MaxQueue        int    `yaml:"max_queue"`

	RateLimits RateLimits `yaml:"rate_limits"`

	// Textures maps a material to its face textures. An entry sets either
	// all, or top+side, or top+bottom+side.
	Textures map[string]Texture `yaml:"textures"`
}

type RateLimits struct {
	ActionsPerSec float64 `yaml:"actions_per_sec"`
	Burst         int     `yaml:"burst"`
}

type Texture struct {
	All    string `yaml:"all"`
	Top    string `yaml:"top"`
	Bottom string `yaml:"bottom"`
	Side   string `yaml:"side"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		GroundSize:      10,
		GroundMaterial:  string(material.Grass),
		BuildDelayMs:    50,
		BuildOrigin:     [3]int{0, 1, 0},
		DefaultMaterial: string(material.Brick),
		MaxQueue:        32,
		RateLimits: RateLimits{
			ActionsPerSec: 20,
			Burst:         40,
		},
	}
}

// Load reads path over Defaults. A missing file yields Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.GroundSize < 1 || t.GroundSize > 512 {
		return fmt.Errorf("ground_size out of range: %d", t.GroundSize)
	}
	if !material.Type(t.GroundMaterial).Valid() {
		return fmt.Errorf("ground_material: unknown material %q", t.GroundMaterial)
	}
	if !material.Type(t.DefaultMaterial).Valid() {
		return fmt.Errorf("default_material: unknown material %q", t.DefaultMaterial)
	}
	if t.BuildDelayMs < 0 {
		return fmt.Errorf("build_delay_ms must be >= 0")
	}
	if t.MaxQueue < 1 {
		return fmt.Errorf("max_queue must be >= 1")
	}
	if t.RateLimits.ActionsPerSec <= 0 || t.RateLimits.Burst < 1 {
		return fmt.Errorf("rate_limits must be positive")
	}
	for name, tex := range t.Textures {
		if !material.Type(name).Valid() {
			return fmt.Errorf("textures: unknown material %q", name)
		}
		if _, err := tex.Config(); err != nil {
			return fmt.Errorf("textures.%s: %w", name, err)
		}
	}
	return nil
}

// Config converts the yaml shape to a texture variant.
func (x Texture) Config() (material.TextureConfig, error) {
	switch {
	case x.All != "" && x.Top == "" && x.Bottom == "" && x.Side == "":
		return material.All{URL: x.All}, nil
	case x.All == "" && x.Top != "" && x.Side != "" && x.Bottom == "":
		return material.TopSide{Top: x.Top, Side: x.Side}, nil
	case x.All == "" && x.Top != "" && x.Side != "" && x.Bottom != "":
		return material.TopBottomSide{Top: x.Top, Bottom: x.Bottom, Side: x.Side}, nil
	}
	return nil, errors.New("set all, or top and side, or top, bottom and side")
}

// TextureOverrides is the Textures map in the form material.NewResolver takes.
func (t Tuning) TextureOverrides() map[material.Type]material.TextureConfig {
	out := map[material.Type]material.TextureConfig{}
	for name, tex := range t.Textures {
		if cfg, err := tex.Config(); err == nil {
			out[material.Type(name)] = cfg
		}
	}
	return out
}
