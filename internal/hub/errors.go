package hub

import (
	"errors"
	"fmt"
)

// Sentinel errors for hub response classification (spec §7). Use
// errors.Is(err, hub.ErrPullIsRequired) etc. to check, mirroring the
// teacher's graph.ErrNotFound-style sentinels in internal/graph/errors.go.
var (
	ErrVersionNotFound          = errors.New("hub: version not found")
	ErrBriefcaseNotFound        = errors.New("hub: briefcase not found")
	ErrAnotherUserPushing       = errors.New("hub: another user is pushing")
	ErrPullIsRequired           = errors.New("hub: pull is required before push")
	ErrDatabaseTemporarilyLocked = errors.New("hub: database temporarily locked")
	ErrOperationFailed          = errors.New("hub: operation failed")
	ErrChangeSetAlreadyExists   = errors.New("hub: changeset already exists")
	ErrConflictingCodes         = errors.New("hub: conflicting codes")
	ErrInvalidId                = errors.New("hub: invalid id")
	ErrInvalidVersion           = errors.New("hub: invalid version")
	ErrCorruptedChangeStream    = errors.New("hub: corrupted changeset stream")
	ErrServerError              = errors.New("hub: server error")
)

// Error wraps a sentinel with HTTP-ish diagnostic context, mirroring
// internal/graph.GraphError.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()

	// DeniedCodes carries the conflicting code set for ErrConflictingCodes
	// (spec §6 "codes.update ... returns conflicts as an error of the
	// specific ConflictingCodes kind carrying the denied code set").
	DeniedCodes []string
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("hub: %s (request-id: %s): %s", e.Err, e.RequestID, e.Message)
	}
	return fmt.Sprintf("hub: %s: %s", e.Err, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is one of the transient-hub error kinds
// the push loop retries on (spec §4.G retry predicate, §7).
func IsTransient(err error) bool {
	return errors.Is(err, ErrAnotherUserPushing) ||
		errors.Is(err, ErrPullIsRequired) ||
		errors.Is(err, ErrDatabaseTemporarilyLocked) ||
		errors.Is(err, ErrOperationFailed)
}

// IsCorruption reports whether err belongs to the corruption error family
// that triggers a changeset-pool purge in the create pipeline (spec §4.E, §7).
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruptedChangeStream) ||
		errors.Is(err, ErrInvalidId) ||
		errors.Is(err, ErrInvalidVersion)
}

// AsConflictingCodes extracts the denied code set from a ConflictingCodes
// error, if err is one.
func AsConflictingCodes(err error) ([]string, bool) {
	var herr *Error
	if errors.As(err, &herr) && errors.Is(herr.Err, ErrConflictingCodes) {
		return herr.DeniedCodes, true
	}
	return nil, false
}
