// Package dedupe reduces records sharing a digest to a single survivor
// chosen by a caller supplied tie-breaker.
package dedupe

import (
	"slices"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/position"
)

// TieBreaker picks the survivor between the current champion and a
// contender. Returning anything other than contender keeps the champion.
// It must not modify either record.
type TieBreaker func(champion, contender *models.Record) (*models.Record, error)

// Deduplicate keeps one record per digest and every record without a
// digest. Within a digest group records are compared in input order, so a
// tie-breaker that is not order independent makes the result depend on it.
// Survivors are returned in input order. A tie-breaker error aborts the
// whole call.
func Deduplicate(records []*models.Record, tb TieBreaker) ([]*models.Record, error) {
	champions := make(map[string]*models.Record)
	kept := make(map[*models.Record]int)

	for i, r := range records {
		if !r.HasDigest() {
			if _, dup := kept[r]; !dup {
				kept[r] = i
			}
			continue
		}
		champ, ok := champions[r.Digest]
		if !ok {
			champions[r.Digest] = r
			continue
		}
		winner, err := tb(champ, r)
		if err != nil {
			return nil, apperr.Wrapf(err, "dedupe: tie-break on digest %s", r.Digest)
		}
		if winner == r {
			champions[r.Digest] = r
		}
	}

	// Survivors keep the slot of their first appearance in the input.
	for i, r := range records {
		if champions[r.Digest] != r {
			continue
		}
		if _, dup := kept[r]; !dup {
			kept[r] = i
		}
	}

	out := make([]*models.Record, 0, len(kept))
	for r := range kept {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *models.Record) int { return kept[a] - kept[b] })
	return out, nil
}

// Groups returns records bucketed by digest in input order, skipping
// records without a digest. Useful for reporting duplicate sets.
func Groups(records []*models.Record) map[string][]*models.Record {
	out := make(map[string][]*models.Record)
	for _, r := range records {
		if r.HasDigest() {
			out[r.Digest] = append(out[r.Digest], r)
		}
	}
	return out
}

// PreferEarliest keeps whichever record comes first in depth-first order.
func PreferEarliest(champion, contender *models.Record) (*models.Record, error) {
	if position.CompareRecords(contender, champion) < 0 {
		return contender, nil
	}
	return champion, nil
}

// PreferShallowest keeps the record closest to a root, then the earliest.
func PreferShallowest(champion, contender *models.Record) (*models.Record, error) {
	switch dc, dn := champion.Position.Depth(), contender.Position.Depth(); {
	case dn < dc:
		return contender, nil
	case dn > dc:
		return champion, nil
	}
	return PreferEarliest(champion, contender)
}

// PreferPhysical keeps a physical file over an embedded item, then the
// earliest.
func PreferPhysical(champion, contender *models.Record) (*models.Record, error) {
	if contender.Physical != champion.Physical {
		if contender.Physical {
			return contender, nil
		}
		return champion, nil
	}
	return PreferEarliest(champion, contender)
}

// Built-in tie-breaker names.
const (
	Earliest   = "earliest"
	Shallowest = "shallowest"
	Physical   = "physical"
)

// Names lists the built-in tie-breakers.
var Names = []string{Earliest, Shallowest, Physical}

// TieBreakerByName returns a built-in tie-breaker.
func TieBreakerByName(name string) (TieBreaker, error) {
	switch name {
	case Earliest, "":
		return PreferEarliest, nil
	case Shallowest:
		return PreferShallowest, nil
	case Physical:
		return PreferPhysical, nil
	}
	return nil, apperr.Wrapf(apperr.ErrInvalidInput, "unknown tie-breaker %q", name)
}
