package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"

	"blockcraft.dev/internal/sim/blueprint"
	"blockcraft.dev/internal/sim/world"
)

var ErrDuplicateKey = errors.New("duplicate structure key")

// Template is a named, ordered list of placements relative to an origin.
type Template struct {
	Key    string                `json:"key"`
	Name   string                `json:"name"`
	Blocks []blueprint.Placement `json:"blocks"`
}

// Catalog is a read-only registry of structure templates.
type Catalog struct {
	byKey   map[string]Template
	keys    []string
	digests map[string]string
}

func newCatalog() *Catalog {
	return &Catalog{byKey: map[string]Template{}, digests: map[string]string{}}
}

func (c *Catalog) add(t Template, digest string) error {
	if _, ok := c.byKey[t.Key]; ok {
		return ErrDuplicateKey
	}
	c.byKey[t.Key] = t
	c.keys = append(c.keys, t.Key)
	c.digests[t.Key] = digest
	return nil
}

// Keys returns template keys in registration order (built-ins first).
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Get returns a copy of the template, so callers cannot mutate the catalog.
func (c *Catalog) Get(key string) (Template, bool) {
	t, ok := c.byKey[key]
	if !ok {
		return Template{}, false
	}
	blocks := make([]blueprint.Placement, len(t.Blocks))
	copy(blocks, t.Blocks)
	t.Blocks = blocks
	return t, true
}

func (c *Catalog) Len() int { return len(c.keys) }

// TemplateDigest is the digest of one template, "" for unknown keys.
func (c *Catalog) TemplateDigest(key string) string { return c.digests[key] }

// Digest identifies the catalog contents (per-template digests, keys sorted).
func (c *Catalog) Digest() string {
	keys := c.Keys()
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(c.digests[k]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func digestPlacements(blocks []blueprint.Placement) string {
	return world.DigestBlocks(toBlocks(blocks))
}

func toBlocks(blocks []blueprint.Placement) []world.Block {
	out := make([]world.Block, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, world.Block{ID: world.IDOf(b.Pos), Pos: b.Pos, Material: b.Material})
	}
	return out
}
