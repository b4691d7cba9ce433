// Package errz defines the structured errors produced by the IR core.
//
// Every error carries an ErrorKind and is marked with the kind's sentinel, so
// callers can branch with errors.Is:
//
//	if errors.Is(err, errz.ErrStaleHandle) {
//		// the handle outlived its entity
//	}
package errz

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrKindStaleHandle indicates a handle whose generation no longer
	// matches the live slot.
	ErrKindStaleHandle ErrorKind = iota
	// ErrKindForeignContext indicates a handle used against a Context that
	// does not own it.
	ErrKindForeignContext
	// ErrKindDanglingUse indicates an erase that would leave live uses behind.
	ErrKindDanglingUse
	// ErrKindArityOrTypeMismatch indicates a violated operand, result, region
	// or successor constraint.
	ErrKindArityOrTypeMismatch
	// ErrKindVerification indicates a structural invariant violation.
	ErrKindVerification
	// ErrKindInternerCorruption indicates an inconsistent interner index.
	// This is a bug in the core or in a dialect's hash/equality pair.
	ErrKindInternerCorruption
	// ErrKindInvalidArgument indicates a malformed request, such as an
	// out-of-range index or a nil capability.
	ErrKindInvalidArgument
	// ErrKindLockDiscipline indicates a mutation attempted outside an
	// exclusive scope when the Context requires one.
	ErrKindLockDiscipline
)

// Sentinels matched by errors.Is for each kind.
var (
	ErrStaleHandle         = errors.New("stale handle")
	ErrForeignContext      = errors.New("foreign context")
	ErrDanglingUse         = errors.New("dangling use on erase")
	ErrArityOrTypeMismatch = errors.New("operand arity or type mismatch")
	ErrVerification        = errors.New("verification failure")
	ErrInternerCorruption  = errors.New("interner corruption")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrLockDiscipline      = errors.New("lock discipline violation")
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindStaleHandle:
		return "stale handle"
	case ErrKindForeignContext:
		return "foreign context"
	case ErrKindDanglingUse:
		return "dangling use"
	case ErrKindArityOrTypeMismatch:
		return "arity or type mismatch"
	case ErrKindVerification:
		return "verification failure"
	case ErrKindInternerCorruption:
		return "interner corruption"
	case ErrKindInvalidArgument:
		return "invalid argument"
	case ErrKindLockDiscipline:
		return "lock discipline"
	default:
		return "error"
	}
}

// Sentinel returns the marker error associated with the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case ErrKindStaleHandle:
		return ErrStaleHandle
	case ErrKindForeignContext:
		return ErrForeignContext
	case ErrKindDanglingUse:
		return ErrDanglingUse
	case ErrKindArityOrTypeMismatch:
		return ErrArityOrTypeMismatch
	case ErrKindVerification:
		return ErrVerification
	case ErrKindInternerCorruption:
		return ErrInternerCorruption
	case ErrKindLockDiscipline:
		return ErrLockDiscipline
	default:
		return ErrInvalidArgument
	}
}

// IsBug reports whether the kind represents an internal consistency failure
// rather than caller misuse.
func (k ErrorKind) IsBug() bool {
	return k == ErrKindInternerCorruption
}

// Error is a structured error naming the offending entity.
type Error struct {
	Kind    ErrorKind
	Entity  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.String(), e.Entity, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// FriendlyErrorMessage returns a multi-line description including the
// chain of causes.
func (e *Error) FriendlyErrorMessage() string {
	var b strings.Builder
	b.WriteString(e.Error())
	b.WriteString("\n")
	for cause := e.Cause; cause != nil; cause = errors.UnwrapOnce(cause) {
		b.WriteString("  caused by: ")
		b.WriteString(cause.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// New creates a structured error of the given kind, records a stack trace
// and marks it with the kind's sentinel.
func New(kind ErrorKind, entity string, format string, args ...any) error {
	err := &Error{
		Kind:    kind,
		Entity:  entity,
		Message: fmt.Sprintf(format, args...),
	}
	return errors.Mark(errors.WithStackDepth(err, 1), kind.Sentinel())
}

// Wrap is like New but records cause as the underlying error.
func Wrap(cause error, kind ErrorKind, entity string, format string, args ...any) error {
	err := &Error{
		Kind:    kind,
		Entity:  entity,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
	return errors.Mark(errors.WithStackDepth(err, 1), kind.Sentinel())
}

// As extracts the structured error from err, if there is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the structured error wrapped by err.
func KindOf(err error) (ErrorKind, bool) {
	if e, ok := As(err); ok {
		return e.Kind, true
	}
	return 0, false
}
