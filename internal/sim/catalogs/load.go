package catalogs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

const templateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["key", "blocks"],
  "additionalProperties": false,
  "properties": {
    "key": {"type": "string", "pattern": "^[a-z0-9_-]{1,64}$"},
    "name": {"type": "string", "maxLength": 128},
    "blocks": {
      "type": "array",
      "minItems": 1,
      "maxItems": 65536,
      "items": {
        "type": "object",
        "required": ["pos", "material"],
        "additionalProperties": false,
        "properties": {
          "pos": {"type": "array", "items": {"type": "integer"}, "minItems": 3, "maxItems": 3},
          "material": {"enum": ["grass", "dirt", "stone", "wood", "brick"]}
        }
      }
    }
  }
}`

var compiledTemplateSchema = jsonschema.MustCompileString("template.schema.json", templateSchema)

type templateFile struct {
	Key    string      `json:"key"`
	Name   string      `json:"name"`
	Blocks []fileBlock `json:"blocks"`
}

type fileBlock struct {
	Pos      [3]int `json:"pos"`
	Material string `json:"material"`
}

// LoadDir returns the built-in catalog extended with every *.json template
// in dir. A missing dir yields the built-ins only.
func LoadDir(dir string) (*Catalog, error) {
	c := Builtin()
	if dir == "" {
		return c, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, p := range files {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		t, err := ParseTemplate(raw)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", filepath.Base(p), err)
		}
		if err := c.add(t, sha256Hex(raw)); err != nil {
			return nil, fmt.Errorf("template %s: %w: %s", filepath.Base(p), err, t.Key)
		}
	}
	return c, nil
}

// ParseTemplate validates raw against the template schema and decodes it.
// Repeated positions keep their first slot and take the last material.
func ParseTemplate(raw []byte) (Template, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Template{}, err
	}
	if err := compiledTemplateSchema.Validate(doc); err != nil {
		return Template{}, err
	}

	var f templateFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Template{}, err
	}
	name := f.Name
	if name == "" {
		name = f.Key
	}
	c := newComposer()
	for _, b := range f.Blocks {
		m, err := material.Parse(b.Material)
		if err != nil {
			return Template{}, err
		}
		p := world.FromArray(b.Pos)
		c.set(p.X, p.Y, p.Z, m)
	}
	return Template{Key: f.Key, Name: name, Blocks: c.done()}, nil
}
