// Package neighbor widens a record selection with nearby siblings.
package neighbor

import (
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/position"
)

// SiblingSource resolves the position ordered sibling list a record belongs
// to, the record included. *models.Tree implements it.
type SiblingSource interface {
	Siblings(r *models.Record) []*models.Record
}

// Expand returns records plus up to before preceding and after following
// siblings of each, deduplicated and in position order. Negative counts are
// treated as zero. Windows are clamped to each record's own sibling list.
func Expand(src SiblingSource, records []*models.Record, before, after int) ([]*models.Record, error) {
	before, after = max(before, 0), max(after, 0)

	seen := make(map[*models.Record]struct{}, len(records))
	var out []*models.Record
	add := func(r *models.Record) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	for _, r := range records {
		if err := position.Validate(r); err != nil {
			return nil, err
		}
		siblings := src.Siblings(r)
		idx, err := position.IndexIn(siblings, r)
		if err != nil {
			return nil, err
		}
		// idx+after overflows for huge counts.
		lo, hi := 0, len(siblings)-1
		if before < idx {
			lo = idx - before
		}
		if after < hi-idx {
			hi = idx + after
		}
		for _, s := range siblings[lo : hi+1] {
			add(s)
		}
		add(r)
	}

	position.Sort(out)
	return out, nil
}
