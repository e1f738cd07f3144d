// Package nativedb defines the interface to the native storage engine
// consumed by internal/manager (spec §6). The real engine — which opens
// the briefcase file, applies changeset blobs, and tracks pending local
// transactions — is explicitly out of scope per spec.md §1 ("specified
// only by their interfaces"); this package therefore ships only the
// interface plus an in-memory fake used throughout this module's tests.
package nativedb

import (
	"context"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// ChangeType classifies the content of a changeset.
type ChangeType int

const (
	// Regular changesets contain only data changes.
	Regular ChangeType = iota
	// Schema changesets contain database schema changes and always force
	// asynchronous application (spec §4.F).
	Schema
)

// ApplyOption selects how ApplySync/ApplyAsync should treat conflicts.
type ApplyOption int

const (
	// ApplyNormal applies changesets without special conflict handling.
	ApplyNormal ApplyOption = iota
)

// ChangeSetToken describes one changeset staged on disk, ready to apply.
// Reverse marks that this token is being un-applied (moving the briefcase
// backward past it) rather than applied forward; the changeset engine
// (spec §4.F) sets this explicitly per plan step rather than leaving the
// native engine to infer direction from index comparisons.
type ChangeSetToken struct {
	Id         briefcase.ChangeSetId
	ParentId   briefcase.ChangeSetId
	Index      int
	Path       string
	ChangeType ChangeType
	Reverse    bool
}

// ChangeSetStatus mirrors the native engine's apply result status (spec §4.F).
type ChangeSetStatus int

const (
	StatusSuccess ChangeSetStatus = iota
	StatusFailure
)

// CreateChangeSetToken is returned by StartCreateChangeSet (spec §6). The
// engine reports FileSize itself rather than making the manager stat the
// staged file, since the manager has no business knowing the staging path's
// layout.
type CreateChangeSetToken struct {
	Id         briefcase.ChangeSetId
	ParentId   briefcase.ChangeSetId
	Path       string
	FileSize   int64
	ChangeType ChangeType
}

// AsyncApplyCallback is invoked by DoApplyAsync once native application
// completes, off the control-plane goroutine.
type AsyncApplyCallback func(status ChangeSetStatus, err error)

// Db is the native storage engine capability consumed by internal/manager
// (spec §6). One Db is exclusively owned by one briefcase.Entry at a time;
// calls to it are serialized by the entry's lifecycle (open -> apply-or-push
// -> close), per SPEC_FULL.md §5.
type Db interface {
	// Open opens the briefcase file at pathname in the given mode.
	Open(ctx context.Context, pathname string, mode briefcase.OpenMode) error
	// Close closes the handle. Idempotent.
	Close(ctx context.Context) error
	IsOpen() bool

	GetParentChangeSetId() briefcase.ChangeSetId
	GetParentChangeSetIndex() int
	GetReversedChangeSetId() (id briefcase.ChangeSetId, ok bool)
	GetReversedChangeSetIndex() int
	GetBriefcaseId() briefcase.BriefcaseId
	GetDbGuid() briefcase.IModelId
	QueryProjectGuid() briefcase.ContextId
	HasPendingTxns() bool
	ResetBriefcaseId(id briefcase.BriefcaseId) error

	// StartCreateChangeSet begins staging a local changeset for push
	// (spec §4.G step 3).
	StartCreateChangeSet(ctx context.Context) (*CreateChangeSetToken, error)
	// FinishCreateChangeSet closes the staging file after successful
	// upload (spec §4.G step 7).
	FinishCreateChangeSet(ctx context.Context) error
	// AbandonCreateChangeSet discards the staging file on a fatal push
	// error (spec §4.G retry predicate, §7).
	AbandonCreateChangeSet(ctx context.Context) error

	AddPendingChangeSet(id briefcase.ChangeSetId) error
	RemovePendingChangeSet(id briefcase.ChangeSetId) error
	GetPendingChangeSets() ([]briefcase.ChangeSetId, error)

	// ExtractCodes returns the codes touched by the working copy's
	// pending local transaction (spec §4.G step 6).
	ExtractCodes(ctx context.Context) ([]byte, error)
	// ExtractCodesFromFile returns the codes touched by an already
	// downloaded, not-yet-applied changeset (spec §4.G step 2).
	ExtractCodesFromFile(ctx context.Context, tokens []ChangeSetToken) ([]byte, error)

	// ApplySync applies changesets one at a time, synchronously, on the
	// calling goroutine (spec §4.F "synchronous path").
	ApplySync(ctx context.Context, tokens []ChangeSetToken, opt ApplyOption) (ChangeSetStatus, error)

	// ReadChangeSets/CloseBriefcase/DoApplyAsync/ReopenBriefcase implement
	// the "invasive" asynchronous apply path (spec §4.F): close -> apply
	// off-thread -> reopen.
	ReadChangeSets(ctx context.Context, tokens []ChangeSetToken) error
	CloseBriefcase(ctx context.Context) error
	DoApplyAsync(ctx context.Context, opt ApplyOption, cb AsyncApplyCallback)
	ReopenBriefcase(ctx context.Context, mode briefcase.OpenMode) error
}
