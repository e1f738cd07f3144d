// Package manager implements the briefcase manager's control plane:
// acquisition serialization, the download/initialize pipeline, the
// changeset engine, the push loop, and deletion/purge (spec §4.D-§4.I).
package manager

import (
	"errors"
	"fmt"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// Kind classifies a manager-level error for callers that need to branch on
// failure category without depth-first errors.Is chains (spec §7).
type Kind int

const (
	KindPrecondition Kind = iota
	KindNotFound
	KindTransientHub
	KindAlreadyExists
	KindCorruption
	KindConflictingCodes
	KindUserCancelled
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "Precondition"
	case KindNotFound:
		return "NotFound"
	case KindTransientHub:
		return "TransientHub"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindCorruption:
		return "Corruption"
	case KindConflictingCodes:
		return "ConflictingCodes"
	case KindUserCancelled:
		return "UserCancelled"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is the manager's error type, carrying a Kind for branching and an
// optional debug projection of the entry involved (spec §7).
type Error struct {
	Kind  Kind
	Msg   string
	Err   error
	Debug *briefcase.DebugProjection
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manager: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("manager: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func newErrWithDebug(kind Kind, msg string, err error, e *briefcase.Entry) *Error {
	me := newErr(kind, msg, err)
	if e != nil {
		d := e.Debug()
		me.Debug = &d
	}
	return me
}

// ErrBriefcaseInUse is returned by requestDownload when validateBriefcase
// resolved Update or Recreate but the existing entry is currently open
// (spec §4.E: "the manager MUST NOT modify it; return the existing entry
// and log an error"). SPEC_FULL.md §7 resolves the spec's open question
// here: callers get this sentinel instead of a silently stale entry, so
// they can decide whether to wait and retry.
var ErrBriefcaseInUse = errors.New("manager: briefcase is open and cannot be updated or recreated")

// ErrPushNotAllowed is returned by pushChanges for any entry whose sync
// mode is not PullAndPush (spec §4.G).
var ErrPushNotAllowed = errors.New("manager: pushChanges is only allowed for PullAndPush entries")
