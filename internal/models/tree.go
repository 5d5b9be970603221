package models

import (
	"cmp"
	"slices"

	"github.com/starford/casetree/internal/apperr"
)

// Spec describes one record as stored or imported, before positions are
// derived. Ordinal orders a record among its siblings.
type Spec struct {
	ID       string `json:"id" yaml:"id"`
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Ordinal  int    `json:"ordinal" yaml:"ordinal"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Physical bool   `json:"physical,omitempty" yaml:"physical,omitempty"`
	Digest   string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// Tree is an immutable corpus snapshot. It owns its records and derives
// every position from parent links and sibling ordinals.
type Tree struct {
	byID  map[string]*Record
	roots []*Record
	order []*Record // depth-first
}

// NewTree links specs into a forest. Duplicate ids, dangling parent ids and
// parent cycles are reported as ErrCorruptHierarchy.
func NewTree(specs []Spec) (*Tree, error) {
	t := &Tree{byID: make(map[string]*Record, len(specs))}

	for _, s := range specs {
		if s.ID == "" {
			return nil, apperr.Corruptf("record with empty id")
		}
		if _, dup := t.byID[s.ID]; dup {
			return nil, apperr.Corruptf("duplicate record id %q", s.ID)
		}
		t.byID[s.ID] = &Record{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     s.Kind,
			Physical: s.Physical,
			Digest:   s.Digest,
		}
	}

	ordinals := make(map[*Record]int, len(specs))
	for _, s := range specs {
		rec := t.byID[s.ID]
		ordinals[rec] = s.Ordinal
		if s.ParentID == "" {
			t.roots = append(t.roots, rec)
			continue
		}
		parent, ok := t.byID[s.ParentID]
		if !ok {
			return nil, apperr.Corruptf("record %q references unknown parent %q", s.ID, s.ParentID)
		}
		if parent == rec {
			return nil, apperr.Corruptf("record %q is its own parent", s.ID)
		}
		rec.parent = parent
		parent.children = append(parent.children, rec)
	}

	byOrdinal := func(a, b *Record) int { return cmp.Compare(ordinals[a], ordinals[b]) }
	slices.SortStableFunc(t.roots, byOrdinal)

	t.order = make([]*Record, 0, len(specs))
	var walk func(r *Record, pos Position)
	walk = func(r *Record, pos Position) {
		r.Position = pos
		t.order = append(t.order, r)
		slices.SortStableFunc(r.children, byOrdinal)
		for i, c := range r.children {
			walk(c, append(slices.Clone(pos), i))
		}
	}
	for i, root := range t.roots {
		walk(root, Position{i})
	}

	// Records on a parent cycle are never reached from a root.
	if len(t.order) != len(specs) {
		for _, s := range specs {
			if t.byID[s.ID].Position == nil {
				return nil, apperr.Corruptf("record %q is part of a parent cycle", s.ID)
			}
		}
	}
	return t, nil
}

// Len returns the number of records in the tree.
func (t *Tree) Len() int { return len(t.order) }

// Get returns the record with the given id.
func (t *Tree) Get(id string) (*Record, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Lookup resolves ids to records, failing with ErrNotFound on the first
// unknown id.
func (t *Tree) Lookup(ids []string) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, ok := t.byID[id]
		if !ok {
			return nil, apperr.Wrapf(apperr.ErrNotFound, "record %q", id)
		}
		out = append(out, r)
	}
	return out, nil
}

// Roots returns the top-level records in position order.
func (t *Tree) Roots() []*Record { return t.roots }

// Records returns every record in depth-first (position) order.
func (t *Tree) Records() []*Record { return t.order }

// Siblings returns the sibling list r belongs to, r included: its parent's
// children, or the roots when r is top-level.
func (t *Tree) Siblings(r *Record) []*Record {
	if r.parent == nil {
		return t.roots
	}
	return r.parent.children
}
