// Package position orders records by tree position and answers sibling
// questions about them.
package position

import (
	"cmp"
	"slices"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/models"
)

// AreSiblings reports whether a and b have the same depth and agree on
// every element but the last.
func AreSiblings(a, b models.Position) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	return slices.Equal(a[:len(a)-1], b[:len(b)-1])
}

// Compare orders positions lexicographically. A proper prefix sorts first,
// so a parent precedes its descendants.
func Compare(a, b models.Position) int {
	return slices.Compare(a, b)
}

// CompareRecords orders records by position, breaking ties by id so that
// equal positions from different trees still sort deterministically.
func CompareRecords(a, b *models.Record) int {
	if c := Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort sorts records in place into depth-first order.
func Sort(records []*models.Record) {
	slices.SortStableFunc(records, CompareRecords)
}

// SortedCopy returns a depth-first ordered copy of records.
func SortedCopy(records []*models.Record) []*models.Record {
	out := slices.Clone(records)
	Sort(out)
	return out
}

// Validate rejects positions that cannot locate a record.
func Validate(r *models.Record) error {
	if len(r.Position) == 0 {
		return apperr.Corruptf("record %q has an empty position", r.ID)
	}
	for _, v := range r.Position {
		if v < 0 {
			return apperr.Corruptf("record %q has a negative position element: %s", r.ID, r.Position)
		}
	}
	return nil
}

// IndexIn returns the ordinal of r within its sibling list. The list must
// be position ordered; r is located by position, not by pointer, so lists
// rebuilt from another snapshot still resolve.
func IndexIn(siblings []*models.Record, r *models.Record) (int, error) {
	i, found := slices.BinarySearchFunc(siblings, r.Position, func(s *models.Record, p models.Position) int {
		return Compare(s.Position, p)
	})
	if !found {
		return -1, apperr.Corruptf("record %q at %s is missing from its sibling list", r.ID, r.Position)
	}
	return i, nil
}
