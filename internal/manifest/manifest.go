// Package manifest parses YAML case manifests describing a record forest.
package manifest

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	"github.com/starford/casetree/internal/models"
)

// Manifest is one case: an id and its top-level records.
type Manifest struct {
	Case    string `yaml:"case"`
	Records []Node `yaml:"records"`
}

// Node is a record in the manifest tree. File, when set, names the record's
// bytes relative to the case folder so a digest can be computed on import.
type Node struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Physical bool   `yaml:"physical,omitempty"`
	Digest   string `yaml:"digest,omitempty"`
	File     string `yaml:"file,omitempty"`
	Children []Node `yaml:"children,omitempty"`
}

// Validate checks the manifest header.
func (m *Manifest) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Case, validation.Required, validation.Length(1, 128)),
	)
}

// Validate checks a single node, not its children.
func (n *Node) Validate() error {
	return validation.ValidateStruct(n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.Digest, validation.Length(64, 64), is.Hexadecimal),
	)
}

// Entry is a flattened manifest record.
type Entry struct {
	models.Spec
	File string
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return &m, nil
}

// Flatten walks the manifest depth-first and returns one entry per node.
// Ordinals follow document order among siblings. Digests are lowercased.
func (m *Manifest) Flatten() ([]Entry, error) {
	var out []Entry
	var walk func(nodes []Node, parent string) error
	walk = func(nodes []Node, parent string) error {
		for i := range nodes {
			n := &nodes[i]
			if err := n.Validate(); err != nil {
				return fmt.Errorf("manifest: record %q: %w", n.ID, err)
			}
			out = append(out, Entry{
				Spec: models.Spec{
					ID:       n.ID,
					ParentID: parent,
					Ordinal:  i,
					Name:     n.Name,
					Kind:     strings.ToLower(n.Kind),
					Physical: n.Physical,
					Digest:   strings.ToLower(n.Digest),
				},
				File: n.File,
			})
			if err := walk(n.Children, n.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(m.Records, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// Specs drops the file references from entries.
func Specs(entries []Entry) []models.Spec {
	out := make([]models.Spec, len(entries))
	for i, e := range entries {
		out[i] = e.Spec
	}
	return out
}
