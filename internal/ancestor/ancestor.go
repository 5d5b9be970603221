// Package ancestor resolves the nearest ancestor of a record that satisfies
// a caller predicate.
package ancestor

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/position"
)

// Predicate classifies a record.
type Predicate func(*models.Record) bool

// IsPhysicalFile matches records that exist as files on disk.
func IsPhysicalFile(r *models.Record) bool { return r.Physical }

// IsContainer matches archive/mailbox style records that hold others.
func IsContainer(r *models.Record) bool { return r.Kind == models.KindContainer }

// KindIs matches records of the given kind.
func KindIs(kind string) Predicate {
	return func(r *models.Record) bool { return r.Kind == kind }
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(r *models.Record) bool { return !p(r) }
}

// FindNearest walks from r's parent toward the root and returns the first
// ancestor matching pred. r itself is never returned.
func FindNearest(r *models.Record, pred Predicate) *models.Record {
	for a := range r.Ancestors() {
		if pred(a) {
			return a
		}
	}
	return nil
}

// NearestPhysicalFile returns the closest ancestor that is a physical file.
func NearestPhysicalFile(r *models.Record) *models.Record {
	return FindNearest(r, IsPhysicalFile)
}

// NearestContainer returns the closest ancestor of kind container.
func NearestContainer(r *models.Record) *models.Record {
	return FindNearest(r, IsContainer)
}

// FindNearestAll resolves every record concurrently and returns the set of
// matched ancestors in position order. Records without a match contribute
// nothing. The predicate must be safe for concurrent use.
func FindNearestAll(ctx context.Context, records []*models.Record, pred Predicate) ([]*models.Record, error) {
	found := make([]*models.Record, len(records))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, r := range records {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			found[i] = FindNearest(r, pred)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[*models.Record]struct{}, len(found))
	out := make([]*models.Record, 0, len(found))
	for _, a := range found {
		if a == nil {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	position.Sort(out)
	return out, nil
}

// Predicate names accepted by PredicateByName. A "kind:<name>" form selects
// records of an arbitrary kind.
const (
	Physical   = "physical"
	Container  = "container"
	kindPrefix = "kind:"
)

// PredicateByName resolves a predicate name. The empty name selects
// IsPhysicalFile.
func PredicateByName(name string) (Predicate, error) {
	switch name {
	case "", Physical:
		return IsPhysicalFile, nil
	case Container:
		return IsContainer, nil
	}
	if kind, ok := strings.CutPrefix(name, kindPrefix); ok && kind != "" {
		return KindIs(kind), nil
	}
	return nil, apperr.Wrapf(apperr.ErrInvalidInput, "unknown predicate %q", name)
}
