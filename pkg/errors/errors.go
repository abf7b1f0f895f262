// Package errors wraps github.com/pkg/errors the way the rest of this
// codebase wraps its collaborators: a thin re-export so call sites
// import one local package, plus the sentinel errors the core's
// error-handling design (spec §7) requires callers to distinguish.
package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// New, Errorf, Wrap, Wrapf and Cause re-export github.com/pkg/errors so
// collaborator-boundary errors keep a stack trace.
var (
	New   = pkgerrors.New
	Errorf = pkgerrors.Errorf
	Wrap  = pkgerrors.Wrap
	Wrapf = pkgerrors.Wrapf
	Cause = pkgerrors.Cause
)

// Is and As re-export the standard library so sentinel checks work
// against both stdlib fmt.Errorf(%w) chains and pkg/errors wraps.
var (
	Is = errors.Is
	As = errors.As
)

// Sentinel error kinds from spec §7.
var (
	// ErrNotFound is returned by HBMM.Restore when the StoreKey is absent.
	ErrNotFound = errors.New("corekad: not found")

	// ErrInvariantViolation marks a fatal, non-recoverable break: a
	// missing StoreKey child, a malformed prefix, or a hash mismatch on
	// read-back. Callers decide whether to re-open the tree; it must
	// never be silently swallowed.
	ErrInvariantViolation = errors.New("corekad: invariant violation")

	// ErrSearchCancelled is returned by the IPS driver's FindNode and
	// FindValue when the caller cancels the context driving an
	// in-flight search.
	ErrSearchCancelled = errors.New("corekad: search cancelled")

	// ErrStoreIO wraps a failure from the Store collaborator. Mutations
	// that fail with it are guaranteed to be a no-op from the caller's
	// point of view (spec §7).
	ErrStoreIO = errors.New("corekad: store I/O error")
)

// Invariantf builds an ErrInvariantViolation with a formatted detail
// message, keeping the sentinel matchable via errors.Is.
func Invariantf(format string, args ...interface{}) error {
	detail := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", detail, ErrInvariantViolation)
}

// StoreIOf wraps err as an ErrStoreIO with a formatted detail message.
func StoreIOf(err error, format string, args ...interface{}) error {
	detail := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w: %v", detail, ErrStoreIO, err)
}
