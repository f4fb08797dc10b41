// Package sentinel defines the errors storage and locking layers report
// upward. Stores return these (optionally wrapped); services translate them
// into coded domain errors at the boundary. Input validation never uses
// these, it goes through pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound: the row does not exist, or is outside the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrStaleState: a conditional write lost to a concurrent writer.
	ErrStaleState = errors.New("stale state")
	// ErrLockTimeout: the bounded wait for an entity lock expired.
	ErrLockTimeout = errors.New("lock timeout")
)
