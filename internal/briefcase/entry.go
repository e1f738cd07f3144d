package briefcase

import (
	"context"
	"sync"
)

// DownloadStatus is the lifecycle state of a briefcase entry's
// materialization pipeline (spec §3).
type DownloadStatus int

const (
	NotStarted DownloadStatus = iota
	DownloadingCheckpoint
	DownloadingChangeSets
	ApplyingChangeSets
	Initializing
	Complete
	Error
)

// String implements fmt.Stringer.
func (s DownloadStatus) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case DownloadingCheckpoint:
		return "DownloadingCheckpoint"
	case DownloadingChangeSets:
		return "DownloadingChangeSets"
	case ApplyingChangeSets:
		return "ApplyingChangeSets"
	case Initializing:
		return "Initializing"
	case Complete:
		return "Complete"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Entry is the passive value object describing one local briefcase (spec
// §3). It carries no behavior beyond key derivation and a debug
// projection; all mutation is performed by internal/manager, which owns
// the entry's lifecycle.
type Entry struct {
	Pathname string

	IModelId    IModelId
	ContextId   ContextId
	BriefcaseId BriefcaseId
	SyncMode    SyncMode

	ParentChangeSetId    ChangeSetId
	ParentChangeSetIndex int

	// ReversedChangeSetId/Index are set iff history is currently reversed
	// below parent. ReversedSet distinguishes "reversed to version zero"
	// (ReversedChangeSetId == "", ReversedSet == true) from "not reversed"
	// (ReversedSet == false), which a bare zero value cannot.
	ReversedChangeSetId    ChangeSetId
	ReversedChangeSetIndex int
	ReversedSet            bool

	TargetChangeSetId    ChangeSetId
	TargetChangeSetIndex int

	IsOpen         bool
	DownloadStatus DownloadStatus
	OpenModeValue  OpenMode

	// FileId is the hub-side upload handle; set only once the hub
	// briefcase record is known (spec §3).
	FileId string

	// ConflictError is the last code-reconciliation conflict, sticky
	// until observed by the caller (spec §3, §7).
	ConflictError error

	// downloadPromise/cancel are the concurrency primitives described in
	// SPEC_FULL.md §5; they live alongside the entry but are not part of
	// its value-object identity (excluded from DebugProjection).
	Future *DownloadFuture
	Cancel context.CancelFunc
}

// CurrentChangeSetId is reversedChangeSetId if reversed, else
// parentChangeSetId (spec §3).
func (e *Entry) CurrentChangeSetId() ChangeSetId {
	if e.ReversedSet {
		return e.ReversedChangeSetId
	}
	return e.ParentChangeSetId
}

// CurrentChangeSetIndex mirrors CurrentChangeSetId for the integer index.
func (e *Entry) CurrentChangeSetIndex() int {
	if e.ReversedSet {
		return e.ReversedChangeSetIndex
	}
	return e.ParentChangeSetIndex
}

// Key recomputes the cache key from the entry's current fields (spec §4.B).
func (e *Entry) Key() Key {
	return MakeKey(e.IModelId, e.BriefcaseId, e.TargetChangeSetId, e.SyncMode)
}

// DebugProjection is a snapshot of an entry's identity and state, safe to
// attach to errors for diagnostics (spec §4.B, §7) without exposing the
// live Future/Cancel concurrency handles.
type DebugProjection struct {
	Key                 Key
	Pathname            string
	IModelId            IModelId
	BriefcaseId         BriefcaseId
	SyncMode            SyncMode
	ParentChangeSetId   ChangeSetId
	ReversedChangeSetId ChangeSetId
	Reversed            bool
	TargetChangeSetId   ChangeSetId
	IsOpen              bool
	DownloadStatus      DownloadStatus
	OpenMode            OpenMode
}

// Debug produces the entry's debug projection (spec §4.B).
func (e *Entry) Debug() DebugProjection {
	return DebugProjection{
		Key:                 e.Key(),
		Pathname:            e.Pathname,
		IModelId:            e.IModelId,
		BriefcaseId:         e.BriefcaseId,
		SyncMode:            e.SyncMode,
		ParentChangeSetId:   e.ParentChangeSetId,
		ReversedChangeSetId: e.ReversedChangeSetId,
		Reversed:            e.ReversedSet,
		TargetChangeSetId:   e.TargetChangeSetId,
		IsOpen:              e.IsOpen,
		DownloadStatus:      e.DownloadStatus,
		OpenMode:            e.OpenModeValue,
	}
}

// DownloadFuture is the handle callers await to observe completion of a
// requestDownload call (SPEC_FULL.md §5). It must be created synchronously
// with the entry's insertion into the index so that two concurrent
// requests for the same key observe the same Future (spec §5, §8).
type DownloadFuture struct {
	once sync.Once
	done chan struct{}
	res  Props
	err  error
}

// NewDownloadFuture creates an unresolved future.
func NewDownloadFuture() *DownloadFuture {
	return &DownloadFuture{done: make(chan struct{})}
}

// Resolve completes the future exactly once. Subsequent calls are no-ops.
func (f *DownloadFuture) Resolve(props Props, err error) {
	f.once.Do(func() {
		f.res, f.err = props, err
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is done, whichever first.
func (f *DownloadFuture) Wait(ctx context.Context) (Props, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Props{}, ctx.Err()
	}
}

// Props is the public projection of a completed (or in-progress) briefcase
// returned from the public surface (spec §6).
type Props struct {
	Pathname          string
	IModelId          IModelId
	ContextId         ContextId
	BriefcaseId       BriefcaseId
	SyncMode          SyncMode
	ParentChangeSetId ChangeSetId
	TargetChangeSetId ChangeSetId
	OpenMode          OpenMode
	DownloadStatus    DownloadStatus
}

// PropsFromEntry projects an Entry into its public Props view.
func PropsFromEntry(e *Entry) Props {
	return Props{
		Pathname:          e.Pathname,
		IModelId:          e.IModelId,
		ContextId:         e.ContextId,
		BriefcaseId:       e.BriefcaseId,
		SyncMode:          e.SyncMode,
		ParentChangeSetId: e.ParentChangeSetId,
		TargetChangeSetId: e.TargetChangeSetId,
		OpenMode:          e.OpenModeValue,
		DownloadStatus:    e.DownloadStatus,
	}
}
