package partition

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/position"
)

func ids(chunk []*models.Record) []string {
	out := make([]string, len(chunk))
	for i, r := range chunk {
		out[i] = r.ID
	}
	return out
}

func familyTree(t *testing.T) *models.Tree {
	t.Helper()
	tree, err := models.NewTree([]models.Spec{
		{ID: "F1", Ordinal: 0},
		{ID: "D1", ParentID: "F1", Ordinal: 0},
		{ID: "D2", ParentID: "F1", Ordinal: 1},
		{ID: "D3", ParentID: "D2", Ordinal: 0},
		{ID: "F2", Ordinal: 1},
		{ID: "D4", ParentID: "F2", Ordinal: 0},
	})
	require.NoError(t, err)
	return tree
}

func TestPartition_OversizedFamilyStaysWhole(t *testing.T) {
	tree := familyTree(t)

	chunks, err := Collect(tree.Records(), 3)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"F1", "D1", "D2", "D3"}, ids(chunks[0]))
	assert.Equal(t, []string{"F2", "D4"}, ids(chunks[1]))
}

func TestPartition_SortsInputFirst(t *testing.T) {
	tree := familyTree(t)
	shuffled := position.SortedCopy(tree.Records())
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	chunks, err := Collect(shuffled, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"F1", "D1", "D2", "D3"}, ids(chunks[0]))
}

func TestPartition_RootNeverSeparatedFromFirstChild(t *testing.T) {
	tree := familyTree(t)

	chunks, err := Collect(tree.Records(), 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"F1", "D1", "D2", "D3"}, ids(chunks[0]))
}

func TestPartition_NonPositiveTargetIsOneFamilyPerChunk(t *testing.T) {
	tree := familyTree(t)
	for _, target := range []int{0, -5} {
		chunks, err := Collect(tree.Records(), target)
		require.NoError(t, err)
		require.Len(t, chunks, 2, "target %d", target)
	}
}

func TestPartition_SmallFamiliesAccumulate(t *testing.T) {
	tree, err := models.NewTree([]models.Spec{
		{ID: "a", Ordinal: 0}, {ID: "b", Ordinal: 1}, {ID: "c", Ordinal: 2},
		{ID: "d", Ordinal: 3}, {ID: "e", Ordinal: 4},
	})
	require.NoError(t, err)

	chunks, err := Collect(tree.Records(), 2)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b"}, ids(chunks[0]))
	assert.Equal(t, []string{"c", "d"}, ids(chunks[1]))
	assert.Equal(t, []string{"e"}, ids(chunks[2]))
}

func TestPartition_EmptyInputNeverCallsSink(t *testing.T) {
	calls := 0
	err := Partition(nil, 10, func([]*models.Record) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestPartition_SinkErrorStops(t *testing.T) {
	tree := familyTree(t)
	boom := errors.New("boom")
	calls := 0

	err := Partition(tree.Records(), 1, func([]*models.Record) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPartition_EmptyPositionIsCorrupt(t *testing.T) {
	_, err := Collect([]*models.Record{{ID: "orphan"}}, 1)
	assert.True(t, apperr.Is(err, apperr.ErrCorruptHierarchy))
}

func TestPartition_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 25; round++ {
		var specs []models.Spec
		for f := 0; f < 1+rng.IntN(15); f++ {
			root := fmt.Sprintf("r%d-f%d", round, f)
			specs = append(specs, models.Spec{ID: root, Ordinal: f})
			for c := 0; c < rng.IntN(8); c++ {
				specs = append(specs, models.Spec{ID: fmt.Sprintf("%s-c%d", root, c), ParentID: root, Ordinal: c})
			}
		}
		tree, err := models.NewTree(specs)
		require.NoError(t, err)
		target := 1 + rng.IntN(10)

		chunks, err := Collect(tree.Records(), target)
		require.NoError(t, err)

		var flat []*models.Record
		familyChunk := map[*models.Record]int{}
		for i, c := range chunks {
			require.NotEmpty(t, c)
			flat = append(flat, c...)
			for _, r := range c {
				if prev, ok := familyChunk[r.Family()]; ok {
					require.Equal(t, prev, i, "family %s split across chunks", r.Family().ID)
				}
				familyChunk[r.Family()] = i
			}
			if i < len(chunks)-1 {
				assert.GreaterOrEqual(t, len(c), target)
			}
			// Everything before the chunk's last family fit under the target.
			last := c[len(c)-1].Family()
			head := 0
			for _, r := range c {
				if r.Family() != last {
					head++
				}
			}
			assert.Less(t, head, target)
		}
		assert.Equal(t, tree.Records(), flat)
	}
}
