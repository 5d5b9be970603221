// Package apperr defines the sentinel errors shared across casetree and
// re-exports the cockroachdb/errors helpers used to wrap them.
package apperr

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	ErrNotFound     = crdb.New("not found")
	ErrConflict     = crdb.New("conflict")
	ErrInvalidInput = crdb.New("invalid input")

	// ErrCorruptHierarchy marks a record set whose positions or parent links
	// do not describe a well-formed forest.
	ErrCorruptHierarchy = crdb.New("corrupt hierarchy")
)

var (
	Wrap  = crdb.Wrap
	Wrapf = crdb.Wrapf
	Mark  = crdb.Mark
	Is    = crdb.Is
)

// Corruptf builds an error marked as ErrCorruptHierarchy.
func Corruptf(format string, args ...any) error {
	return crdb.Mark(crdb.Newf(format, args...), ErrCorruptHierarchy)
}
