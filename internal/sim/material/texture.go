package material

import "sync"

// TextureConfig describes how a material is textured: one of All, TopSide or
// TopBottomSide.
type TextureConfig interface {
	isTextureConfig()
}

type All struct {
	URL string
}

type TopSide struct {
	Top  string
	Side string
}

type TopBottomSide struct {
	Top    string
	Bottom string
	Side   string
}

func (All) isTextureConfig()           {}
func (TopSide) isTextureConfig()       {}
func (TopBottomSide) isTextureConfig() {}

// Face order of a six-face appearance.
const (
	FaceRight = iota
	FaceLeft
	FaceTop
	FaceBottom
	FaceFront
	FaceBack
)

var defaultTextures = map[Type]TextureConfig{
	Grass: All{URL: "/Grass.png"},
	Dirt:  All{URL: "/Dirt.png"},
	Stone: All{URL: "/Stone.png"},
	Wood:  All{URL: "/Wood.png"},
	Brick: All{URL: "/Stone.png"},
}

// Appearance is either uniform (one face) or per-face (six faces, see Face*).
type Appearance struct {
	Material Type     `json:"material"`
	Color    string   `json:"color"`
	Faces    []string `json:"faces"`
}

func (a Appearance) Uniform() bool { return len(a.Faces) == 1 }

// Resolver maps materials to appearances. Lookups are cached per material.
type Resolver struct {
	textures map[Type]TextureConfig

	mu    sync.Mutex
	cache map[Type]Appearance
}

// NewResolver returns a resolver over the default texture set. overrides may
// replace the config of individual materials.
func NewResolver(overrides map[Type]TextureConfig) *Resolver {
	tex := make(map[Type]TextureConfig, len(defaultTextures))
	for k, v := range defaultTextures {
		tex[k] = v
	}
	for k, v := range overrides {
		if k.Valid() && v != nil {
			tex[k] = v
		}
	}
	return &Resolver{textures: tex, cache: map[Type]Appearance{}}
}

func (r *Resolver) Appearance(t Type) Appearance {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.cache[t]; ok {
		return a
	}
	a := Appearance{Material: t, Color: ColorHex(t), Faces: faces(r.textures[t])}
	r.cache[t] = a
	return a
}

// Appearances returns the appearance of every material in palette order.
func (r *Resolver) Appearances() []Appearance {
	out := make([]Appearance, 0, len(all))
	for _, t := range all {
		out = append(out, r.Appearance(t))
	}
	return out
}

func faces(cfg TextureConfig) []string {
	switch c := cfg.(type) {
	case All:
		return []string{c.URL}
	case TopSide:
		return sixFaces(c.Top, c.Side, c.Side)
	case TopBottomSide:
		return sixFaces(c.Top, c.Bottom, c.Side)
	default:
		return nil
	}
}

func sixFaces(top, bottom, side string) []string {
	out := make([]string, 6)
	for i := range out {
		switch i {
		case FaceTop:
			out[i] = top
		case FaceBottom:
			out[i] = bottom
		default:
			out[i] = side
		}
	}
	return out
}
