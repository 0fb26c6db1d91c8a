package modules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/strings"
)

// Manifest is the YAML form of the module list:
//
//	modules:
//	  - slug: content
//	    kind: core
//	  - slug: blog
//	    kind: optional
//	    dependencies: [content]
//	    default_enabled: true
type Manifest struct {
	Modules []ManifestModule `yaml:"modules"`
}

type ManifestModule struct {
	Slug           string   `yaml:"slug"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Version        string   `yaml:"version"`
	Kind           Kind     `yaml:"kind"`
	Dependencies   []string `yaml:"dependencies"`
	DefaultEnabled bool     `yaml:"default_enabled"`
}

// LoadManifest reads descriptors from a YAML file. Health probes cannot be
// expressed in YAML; attach them with WithProbes.
func LoadManifest(path string) ([]Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module manifest: %w", err)
	}
	return ParseManifest(bytes.NewReader(raw))
}

// ParseManifest decodes a manifest. Unknown fields are rejected so typos do
// not silently change behaviour.
func ParseManifest(r io.Reader) ([]Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("module manifest is empty")
		}
		return nil, fmt.Errorf("decode module manifest: %w", err)
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("module manifest declares no modules")
	}

	out := make([]Descriptor, 0, len(m.Modules))
	for _, mm := range m.Modules {
		kind := mm.Kind
		if kind == "" {
			kind = KindOptional
		}
		out = append(out, Descriptor{
			Slug:           mm.Slug,
			Name:           mm.Name,
			Description:    mm.Description,
			Version:        mm.Version,
			Kind:           kind,
			Dependencies:   strings.DedupeAndTrim(mm.Dependencies),
			DefaultEnabled: mm.DefaultEnabled,
		})
	}
	return out, nil
}

// WithProbes returns a copy of descriptors with health probes attached by
// slug. Probes for unknown slugs are ignored.
func WithProbes(descriptors []Descriptor, probes map[string]HealthFunc) []Descriptor {
	out := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		if p, ok := probes[d.Slug]; ok {
			d.Health = p
		}
		out[i] = d
	}
	return out
}

// Builtin is the module set used when no manifest is configured.
func Builtin() []Descriptor {
	return []Descriptor{
		{Slug: "content", Name: "Content", Kind: KindCore, Version: "1.0.0",
			Description: "Nodes: posts, pages and their publication state"},
		{Slug: "index", Name: "Index", Kind: KindCore, Version: "1.0.0", Dependencies: []string{"content"},
			Description: "Per-tenant catalog of entity status"},
		{Slug: "blog", Name: "Blog", Kind: KindOptional, Version: "1.0.0", Dependencies: []string{"content"}, DefaultEnabled: true,
			Description: "Posts and feeds on top of content"},
		{Slug: "pages", Name: "Pages", Kind: KindOptional, Version: "1.0.0", Dependencies: []string{"content"}, DefaultEnabled: true,
			Description: "Static pages on top of content"},
		{Slug: "forum", Name: "Forum", Kind: KindOptional, Version: "1.0.0", Dependencies: []string{"content"},
			Description: "Topics and replies"},
		{Slug: "commerce", Name: "Commerce", Kind: KindOptional, Version: "1.0.0",
			Description: "Products, orders and inventory"},
	}
}
