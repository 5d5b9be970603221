package caseservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/checksum"
	"github.com/starford/casetree/internal/index"
	"github.com/starford/casetree/internal/storage"
	"github.com/starford/casetree/internal/testutil"
)

var (
	digestA = strings.Repeat("a", 64)
	digestB = strings.Repeat("b", 64)
)

// box > {m1 > att1, m2, m3, m4}; memo
var acme = `case: acme
records:
  - id: box
    kind: container
    physical: true
    children:
      - id: m1
        kind: email
        digest: ` + digestA + `
        children:
          - id: att1
            kind: attachment
            digest: ` + digestB + `
      - id: m2
        kind: email
        digest: ` + digestA + `
      - id: m3
        kind: email
      - id: m4
        kind: email
  - id: memo
    kind: document
    physical: true
    digest: ` + digestB + `
`

func newService(t *testing.T) (*Service, storage.Provider) {
	t.Helper()
	db, store := testutil.ImportedCase(t, "acme", acme)
	svc := New(store, db, testutil.NewTestLogger(t), Defaults{
		ChunkSize:   500,
		ItemsBefore: 2,
		ItemsAfter:  2,
		TieBreaker:  "earliest",
	})
	return svc, store
}

func viewIDs(vs []RecordView) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}

func TestRecord(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	d, err := svc.Record(ctx, "acme", "att1")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", d.Position)
	assert.Equal(t, "m1", d.Parent)
	assert.Equal(t, "box", d.Family)
	assert.Equal(t, []string{"box", "m1", "att1"}, d.Path)
	assert.Empty(t, d.Children)

	root, err := svc.Record(ctx, "acme", "box")
	require.NoError(t, err)
	assert.Equal(t, "box", root.Family)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, root.Children)

	_, err = svc.Record(ctx, "acme", "ghost")
	assertKind(t, err, apperr.ErrNotFound)
	_, err = svc.Record(ctx, "other", "box")
	assertKind(t, err, apperr.ErrNotFound)
}

func TestSnapshotCached(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Snapshot(ctx, "acme")
	require.NoError(t, err)
	b, err := svc.Snapshot(ctx, "acme")
	require.NoError(t, err)
	assert.Same(t, a, b)

	svc.CaseChanged(index.EventImported, "acme")
	c, err := svc.Snapshot(ctx, "acme")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestNearestAncestors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	res, err := svc.NearestAncestors(ctx, "acme", nil, "container")
	require.NoError(t, err)
	assert.Equal(t, []string{"box"}, viewIDs(res.Ancestors))
	assert.Equal(t, "box", res.Nearest["att1"])
	assert.NotContains(t, res.Nearest, "memo")
	assert.NotContains(t, res.Nearest, "box")

	res, err = svc.NearestAncestors(ctx, "acme", []string{"att1", "m2"}, "kind:email")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, viewIDs(res.Ancestors))
	assert.Equal(t, map[string]string{"att1": "m1"}, res.Nearest)

	_, err = svc.NearestAncestors(ctx, "acme", nil, "bogus")
	assertKind(t, err, apperr.ErrInvalidInput)
	_, err = svc.NearestAncestors(ctx, "acme", []string{"ghost"}, "")
	assertKind(t, err, apperr.ErrNotFound)
}

func TestPartition(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var chunks []Chunk
	batch, err := svc.Partition(ctx, "acme", nil, 3, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"box", "m1", "att1", "m2", "m3", "m4"}, viewIDs(chunks[0].Records))
	assert.Equal(t, []string{"memo"}, viewIDs(chunks[1].Records))
	for i, c := range chunks {
		assert.Equal(t, batch, c.BatchID)
		assert.Equal(t, i, c.Index)
	}
}

func TestPartition_SelectionIsSorted(t *testing.T) {
	svc, _ := newService(t)

	var got [][]string
	_, err := svc.Partition(context.Background(), "acme", []string{"memo", "m2"}, 1, func(c Chunk) error {
		got = append(got, viewIDs(c.Records))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"m2"}, {"memo"}}, got)
}

func TestPartition_SinkError(t *testing.T) {
	svc, _ := newService(t)
	stop := errors.New("client gone")

	calls := 0
	_, err := svc.Partition(context.Background(), "acme", nil, 0, func(Chunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDeduplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Deduplicate(ctx, "acme", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "earliest", res.TieBreaker)
	assert.Equal(t, []string{"box", "m1", "att1", "m3", "m4"}, viewIDs(res.Survivors))
	assert.Equal(t, 2, res.Removed)

	res, err = svc.Deduplicate(ctx, "acme", nil, "physical")
	require.NoError(t, err)
	assert.Equal(t, []string{"box", "m1", "m3", "m4", "memo"}, viewIDs(res.Survivors))

	_, err = svc.Deduplicate(ctx, "acme", nil, "coin-flip")
	assertKind(t, err, apperr.ErrInvalidInput)
}

func TestNeighbors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	got, err := svc.Neighbors(ctx, "acme", []string{"m2"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, viewIDs(got))

	got, err = svc.Neighbors(ctx, "acme", []string{"m1"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, viewIDs(got))

	got, err = svc.Neighbors(ctx, "acme", []string{"memo"}, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"box", "memo"}, viewIDs(got))

	_, err = svc.Neighbors(ctx, "acme", nil, 1, 1)
	assertKind(t, err, apperr.ErrInvalidInput)
}

func TestDigestGroups(t *testing.T) {
	svc, _ := newService(t)

	groups, err := svc.DigestGroups(context.Background(), "acme", 2)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		digestA: {"m1", "m2"},
		digestB: {"att1", "memo"},
	}, groups)
}

func TestPutManifest(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	id, err := svc.PutManifest(ctx, "beta.yaml", []byte("case: beta\nrecords:\n  - id: x\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "beta", id)
	_, err = svc.Record(ctx, "beta", "x")
	require.NoError(t, err)

	_, err = svc.PutManifest(ctx, "beta.yaml", []byte("case: beta\nrecords:\n  - id: y\n"), "stale")
	assertKind(t, err, apperr.ErrConflict)

	data, err := store.Read("beta.yaml")
	require.NoError(t, err)
	_, err = svc.PutManifest(ctx, "beta.yaml", []byte("case: beta\nrecords:\n  - id: y\n"), checksum.Sum(data))
	require.NoError(t, err)
	_, err = svc.Record(ctx, "beta", "y")
	require.NoError(t, err)
}

func TestOnChange_ReportsWrites(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var got []string
	svc.OnChange(func(kind, caseID string) { got = append(got, kind+":"+caseID) })

	_, err := svc.PutManifest(ctx, "beta.yaml", []byte("case: beta\nrecords:\n  - id: x\n"), "")
	require.NoError(t, err)
	// Renaming the case inside the same manifest drops the old one.
	_, err = svc.PutManifest(ctx, "beta.yaml", []byte("case: gamma\nrecords:\n  - id: x\n"), "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCase(ctx, "acme"))

	_, err = svc.PutManifest(ctx, "bad.yaml", []byte("records: []\n"), "")
	require.Error(t, err)

	assert.Equal(t, []string{
		"imported:beta",
		"removed:beta",
		"imported:gamma",
		"removed:acme",
	}, got)
}

func TestPutManifest_Rejected(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.PutManifest(ctx, "notes.txt", []byte("case: x\n"), "")
	assertKind(t, err, apperr.ErrInvalidInput)

	_, err = svc.PutManifest(ctx, "bad.yaml", []byte("records: []\n"), "")
	assertKind(t, err, apperr.ErrInvalidInput)

	// Same case id from a second manifest is a conflict and leaves no file.
	_, err = svc.PutManifest(ctx, "dup.yaml", []byte("case: acme\nrecords:\n  - id: x\n"), "")
	assertKind(t, err, apperr.ErrConflict)
	_, err = store.Read("dup.yaml")
	assert.Error(t, err)
}

func TestDeleteCase(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.DeleteCase(ctx, "acme"))
	_, err := svc.Snapshot(ctx, "acme")
	assertKind(t, err, apperr.ErrNotFound)
	_, err = store.Read("acme.yaml")
	assert.Error(t, err)

	assertKind(t, svc.DeleteCase(ctx, "acme"), apperr.ErrNotFound)
}

// assertKind checks sentinels with apperr.Is, which also sees marks.
func assertKind(t *testing.T, err, sentinel error) {
	t.Helper()
	assert.True(t, apperr.Is(err, sentinel), "want %v, got %v", sentinel, err)
}
