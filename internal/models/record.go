// Package models defines the corpus types shared by the casetree algorithms.
package models

import (
	"iter"
	"strconv"
	"strings"
)

// Record kinds understood by the built-in predicates.
const (
	KindContainer  = "container"
	KindEmail      = "email"
	KindDocument   = "document"
	KindAttachment = "attachment"
	KindFile       = "file"
)

// Position is a record's location in the tree: the sibling index at each
// depth, from the root down to the record.
type Position []int

// String renders the position as dotted indices, e.g. "0.3.1".
func (p Position) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Depth returns the number of elements in the position.
func (p Position) Depth() int { return len(p) }

// Record is one entity in a case corpus. Records are owned by the Tree that
// built them; callers only read them.
type Record struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Physical bool     `json:"physical"`
	Position Position `json:"position"`
	// Digest is the hex content hash. Empty means unknown.
	Digest string `json:"digest,omitempty"`

	parent   *Record
	children []*Record
}

// Parent returns the direct parent, or nil for a root.
func (r *Record) Parent() *Record { return r.parent }

// Children returns the direct children in position order. The slice is
// shared with the tree and must not be modified.
func (r *Record) Children() []*Record { return r.children }

// HasDigest reports whether the record carries a comparable digest.
func (r *Record) HasDigest() bool { return r.Digest != "" }

// IsRoot reports whether the record is not embedded in another record.
func (r *Record) IsRoot() bool { return r.parent == nil }

// Ancestors yields the record's ancestors from its parent up to the root.
// It walks parent links and does not allocate a path.
func (r *Record) Ancestors() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		for a := r.parent; a != nil; a = a.parent {
			if !yield(a) {
				return
			}
		}
	}
}

// Path returns the records from the root down to r, inclusive.
func (r *Record) Path() []*Record {
	depth := 1
	for range r.Ancestors() {
		depth++
	}
	path := make([]*Record, depth)
	path[depth-1] = r
	i := depth - 2
	for a := range r.Ancestors() {
		path[i] = a
		i--
	}
	return path
}

// TopLevel returns the highest ancestor of r, or nil when r is itself a root.
func (r *Record) TopLevel() *Record {
	var top *Record
	for a := range r.Ancestors() {
		top = a
	}
	return top
}

// Family returns the root of the family r belongs to: its top-level record,
// or r itself when r is a root.
func (r *Record) Family() *Record {
	if top := r.TopLevel(); top != nil {
		return top
	}
	return r
}

func (r *Record) String() string {
	return r.ID + "@" + r.Position.String()
}
