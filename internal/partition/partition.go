// Package partition splits record sequences into chunks that never divide
// a family (a top-level record and all of its descendants) across chunks.
package partition

import (
	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/position"
)

// Sink receives each completed chunk exactly once, in order. The slice is
// owned by the sink after the call.
type Sink func(chunk []*models.Record) error

// Partition sorts records by position and delivers them to sink in chunks
// of at least target records, cutting only where the family changes. A
// family larger than target produces a single oversized chunk. A target of
// zero or less cuts at every family boundary.
func Partition(records []*models.Record, target int, sink Sink) error {
	sorted := position.SortedCopy(records)

	var (
		chunk []*models.Record
		prev  *models.Record
		n     int
	)
	for _, r := range sorted {
		if err := position.Validate(r); err != nil {
			return err
		}
		legal := prev == nil || r.Family() != prev.Family()
		if legal && len(chunk) > 0 && len(chunk) >= target {
			if err := sink(chunk); err != nil {
				return apperr.Wrapf(err, "partition: sink chunk %d", n)
			}
			n++
			chunk = nil
		}
		chunk = append(chunk, r)
		prev = r
	}
	if len(chunk) > 0 {
		if err := sink(chunk); err != nil {
			return apperr.Wrapf(err, "partition: sink chunk %d", n)
		}
	}
	return nil
}

// Collect partitions records and returns every chunk.
func Collect(records []*models.Record, target int) ([][]*models.Record, error) {
	var chunks [][]*models.Record
	err := Partition(records, target, func(c []*models.Record) error {
		chunks = append(chunks, c)
		return nil
	})
	return chunks, err
}
