package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrCorruptData        = errors.New("corrupt data")
	ErrInvalidPath        = errors.New("invalid path")
	ErrLockTimeout        = errors.New("lock timeout")
	ErrAmbiguousReference = errors.New("ambiguous reference")
)

// NotFoundError reports a missing object, ref or path. It matches
// ErrNotFound.
type NotFoundError struct {
	Kind string // "object", "ref", "path", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ObjectNotFound is a NotFoundError for an object id.
func ObjectNotFound(id ObjectId) error {
	return &NotFoundError{Kind: "object", Key: id.String()}
}

// CorruptDataError reports stored bytes that do not decode to the expected
// object. It matches ErrCorruptData.
type CorruptDataError struct {
	ID       ObjectId
	Expected ObjectType
	Err      error
}

func (e *CorruptDataError) Error() string {
	msg := fmt.Sprintf("corrupt data for object %s", e.ID)
	if e.Expected != TypeUnknown {
		msg += fmt.Sprintf(" (expected %s)", e.Expected)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

func (e *CorruptDataError) Is(target error) bool {
	return target == ErrCorruptData
}

// InvalidPathError reports a structurally invalid path. It matches
// ErrInvalidPath.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// LockTimeoutError is returned when the ref database lock could not be
// acquired in time. It matches ErrLockTimeout.
type LockTimeoutError struct {
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire ref lock within %s", e.Timeout)
}

func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

// AmbiguousReferenceError is returned when an abbreviated id matches more
// than one object. It matches ErrAmbiguousReference.
type AmbiguousReferenceError struct {
	Reference  string
	Candidates []ObjectId
}

func (e *AmbiguousReferenceError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = c.String()
	}
	return fmt.Sprintf("ambiguous reference %q matches %s", e.Reference, strings.Join(ids, ", "))
}

func (e *AmbiguousReferenceError) Is(target error) bool {
	return target == ErrAmbiguousReference
}
