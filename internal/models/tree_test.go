package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/casetree/internal/apperr"
)

func sampleSpecs() []Spec {
	return []Spec{
		{ID: "mbox", Kind: KindContainer, Physical: true, Ordinal: 0},
		{ID: "mail-2", ParentID: "mbox", Kind: KindEmail, Ordinal: 2},
		{ID: "mail-1", ParentID: "mbox", Kind: KindEmail, Ordinal: 1},
		{ID: "att", ParentID: "mail-1", Kind: KindAttachment, Ordinal: 0},
		{ID: "loose.pdf", Kind: KindDocument, Physical: true, Ordinal: 1},
	}
}

func TestNewTree_DerivesPositions(t *testing.T) {
	tree, err := NewTree(sampleSpecs())
	require.NoError(t, err)
	require.Equal(t, 5, tree.Len())

	want := map[string]Position{
		"mbox":      {0},
		"mail-1":    {0, 0},
		"att":       {0, 0, 0},
		"mail-2":    {0, 1},
		"loose.pdf": {1},
	}
	for id, pos := range want {
		r, ok := tree.Get(id)
		require.True(t, ok, id)
		assert.Equal(t, pos, r.Position, id)
	}

	var order []string
	for _, r := range tree.Records() {
		order = append(order, r.ID)
	}
	assert.Equal(t, []string{"mbox", "mail-1", "att", "mail-2", "loose.pdf"}, order)
}

func TestNewTree_ExtremeOrdinals(t *testing.T) {
	tree, err := NewTree([]Spec{
		{ID: "high", Ordinal: math.MaxInt},
		{ID: "low", Ordinal: math.MinInt},
		{ID: "zero", Ordinal: 0},
	})
	require.NoError(t, err)

	var order []string
	for _, r := range tree.Roots() {
		order = append(order, r.ID)
	}
	assert.Equal(t, []string{"low", "zero", "high"}, order)
}

func TestRecord_PathAndTopLevel(t *testing.T) {
	tree, err := NewTree(sampleSpecs())
	require.NoError(t, err)

	att, _ := tree.Get("att")
	var ids []string
	for _, r := range att.Path() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"mbox", "mail-1", "att"}, ids)
	assert.Equal(t, "mbox", att.TopLevel().ID)
	assert.Equal(t, "mbox", att.Family().ID)

	root, _ := tree.Get("mbox")
	assert.Nil(t, root.TopLevel())
	assert.Same(t, root, root.Family())
	assert.Len(t, root.Path(), 1)
}

func TestRecord_AncestorsStopsEarly(t *testing.T) {
	tree, err := NewTree(sampleSpecs())
	require.NoError(t, err)
	att, _ := tree.Get("att")

	var seen []string
	for a := range att.Ancestors() {
		seen = append(seen, a.ID)
		break
	}
	assert.Equal(t, []string{"mail-1"}, seen)
}

func TestTree_Siblings(t *testing.T) {
	tree, err := NewTree(sampleSpecs())
	require.NoError(t, err)

	mail1, _ := tree.Get("mail-1")
	assert.Len(t, tree.Siblings(mail1), 2)

	loose, _ := tree.Get("loose.pdf")
	assert.Equal(t, tree.Roots(), tree.Siblings(loose))
}

func TestTree_Lookup(t *testing.T) {
	tree, err := NewTree(sampleSpecs())
	require.NoError(t, err)

	recs, err := tree.Lookup([]string{"att", "mbox"})
	require.NoError(t, err)
	assert.Equal(t, "att", recs[0].ID)

	_, err = tree.Lookup([]string{"missing"})
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestNewTree_CorruptInputs(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
	}{
		{"empty id", []Spec{{ID: ""}}},
		{"duplicate id", []Spec{{ID: "a"}, {ID: "a"}}},
		{"unknown parent", []Spec{{ID: "a", ParentID: "ghost"}}},
		{"self parent", []Spec{{ID: "a", ParentID: "a"}}},
		{"cycle", []Spec{{ID: "root"}, {ID: "a", ParentID: "b"}, {ID: "b", ParentID: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.specs)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.ErrCorruptHierarchy), "got %v", err)
		})
	}
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "0.3.1", Position{0, 3, 1}.String())
	assert.Equal(t, "", Position{}.String())
}
