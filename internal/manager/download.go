package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
)

// ValidationOutcome is validateBriefcase's verdict on an already-indexed
// entry measured against a freshly requested version (spec §4.E).
type ValidationOutcome int

const (
	// Reuse: the entry already satisfies the request; hand it back as-is.
	Reuse ValidationOutcome = iota
	// Update: the entry is for the right identity but at a different
	// version than requested; the changeset engine moves it in place.
	Update
	// Recreate: the entry cannot be trusted (identity mismatch, corruption)
	// and must be discarded and rebuilt from a checkpoint.
	Recreate
)

// validateBriefcase classifies an existing entry against the version a
// caller just asked for (spec §4.E). FixedVersion entries are pinned by
// their cache key to a single changeset id, so the only outcomes possible
// for them are Reuse (key already matched by the caller) or Recreate
// (entry is for this key but failed an identity check, e.g. after a
// corrupted disk-adopt). PullOnly/PullAndPush entries are keyed by
// briefcaseId alone, so the requested changeset id can legitimately be
// ahead of the entry's current position, which is the Update case.
func validateBriefcase(e *briefcase.Entry, mode briefcase.SyncMode, requiredChangeSetId briefcase.ChangeSetId, requiredChangeSetIndex int, requiredBriefcaseId briefcase.BriefcaseId) ValidationOutcome {
	if e.DownloadStatus == briefcase.Error {
		return Recreate
	}

	if mode == briefcase.FixedVersion {
		if e.TargetChangeSetId == requiredChangeSetId {
			return Reuse
		}
		return Recreate
	}

	if requiredBriefcaseId != briefcase.Illegal && requiredBriefcaseId != briefcase.Standalone && e.BriefcaseId != requiredBriefcaseId {
		return Recreate
	}
	if e.CurrentChangeSetIndex() == requiredChangeSetIndex {
		return Reuse
	}
	return Update
}

// RequestDownload is the public entry point for component E (spec §4.E,
// §6 requestDownload). It returns immediately with the entry's current
// Props projection; callers that need the fully-materialized briefcase
// wait on the returned DownloadFuture. cancel, when non-nil, cooperatively
// cancels any in-flight download/apply work for this request.
func (m *Manager) RequestDownload(ctx context.Context, contextId briefcase.ContextId, iModelId briefcase.IModelId, mode briefcase.SyncMode, version hub.VersionSpec) (briefcase.Props, *briefcase.DownloadFuture, context.CancelFunc, error) {
	targetId, targetIndex, err := m.hub.ResolveChangeSetId(ctx, iModelId, version)
	if err != nil {
		return briefcase.Props{}, nil, nil, newErr(KindTransientHub, "resolving requested version", err)
	}

	switch mode {
	case briefcase.FixedVersion:
		return m.requestFixedVersion(ctx, contextId, iModelId, targetId, targetIndex)
	case briefcase.PullOnly:
		return m.requestVariableVersion(ctx, contextId, iModelId, mode, targetId, targetIndex)
	case briefcase.PullAndPush:
		m.acquireMu.Lock()
		defer m.acquireMu.Unlock()
		return m.requestVariableVersion(ctx, contextId, iModelId, mode, targetId, targetIndex)
	default:
		return briefcase.Props{}, nil, nil, newErr(KindPrecondition, fmt.Sprintf("unknown sync mode %v", mode), nil)
	}
}

func (m *Manager) requestFixedVersion(ctx context.Context, contextId briefcase.ContextId, iModelId briefcase.IModelId, targetId briefcase.ChangeSetId, targetIndex int) (briefcase.Props, *briefcase.DownloadFuture, context.CancelFunc, error) {
	m.mu.Lock()

	if e, found := m.idx.FindFixedVersion(iModelId, targetId); found {
		switch validateBriefcase(e, briefcase.FixedVersion, targetId, targetIndex, briefcase.Standalone) {
		case Reuse:
			// e.Future is the same future a caller already in flight for this
			// exact key is waiting on: if the download hasn't finished, this
			// caller waits alongside it instead of observing a premature
			// snapshot of the entry's still-changing fields (spec §5, §8
			// concurrent-request scenario).
			m.mu.Unlock()
			return briefcase.PropsFromEntry(e), e.Future, nil, nil
		default: // Recreate: FixedVersion entries never legitimately need Update.
			if e.IsOpen {
				m.mu.Unlock()
				return briefcase.Props{}, nil, nil, newErrWithDebug(KindPrecondition, "existing entry is open", ErrBriefcaseInUse, e)
			}
			if err := m.idx.Remove(e.Key()); err != nil {
				m.mu.Unlock()
				return briefcase.Props{}, nil, nil, newErr(KindFatal, "removing stale entry before recreate", err)
			}
		}
	}

	pathname := m.layout.BriefcasePathname(iModelId, briefcase.FixedVersion, briefcase.Standalone, targetId)
	if e, ok := m.adoptFromDisk(ctx, pathname, iModelId, briefcase.FixedVersion, targetId, briefcase.Standalone); ok {
		if err := m.idx.Insert(e); err == nil {
			e.Future.Resolve(briefcase.PropsFromEntry(e), nil)
			m.mu.Unlock()
			return briefcase.PropsFromEntry(e), e.Future, nil, nil
		}
	}

	e := m.newSkeletonEntry(pathname, iModelId, contextId, briefcase.Standalone, briefcase.FixedVersion, targetId, targetIndex)
	if err := m.idx.Insert(e); err != nil {
		m.mu.Unlock()
		return briefcase.Props{}, nil, nil, newErr(KindFatal, "inserting new entry", err)
	}
	m.mu.Unlock()

	return m.launchCreate(ctx, e)
}

func (m *Manager) requestVariableVersion(ctx context.Context, contextId briefcase.ContextId, iModelId briefcase.IModelId, mode briefcase.SyncMode, targetId briefcase.ChangeSetId, targetIndex int) (briefcase.Props, *briefcase.DownloadFuture, context.CancelFunc, error) {
	m.mu.Lock()

	if mode == briefcase.PullAndPush {
		if owned, err := m.hub.BriefcasesForUser(ctx, iModelId); err == nil {
			if e, found := m.idx.FindAnyOwnedBriefcase(iModelId, owned); found {
				return m.finishVariableLookup(ctx, e, mode, targetId, targetIndex)
			}
		}
	}

	if matches := m.idx.LookupPredicate(func(e *briefcase.Entry) bool {
		return e.SyncMode == mode && e.IModelId == iModelId
	}); len(matches) > 0 {
		return m.finishVariableLookup(ctx, matches[0], mode, targetId, targetIndex)
	}

	rec, err := m.hub.AcquireBriefcase(ctx, iModelId)
	if err != nil {
		m.mu.Unlock()
		return briefcase.Props{}, nil, nil, newErr(KindTransientHub, "acquiring briefcase id", err)
	}

	pathname := m.layout.BriefcasePathname(iModelId, mode, rec.BriefcaseId, "")
	e := m.newSkeletonEntry(pathname, iModelId, contextId, rec.BriefcaseId, mode, targetId, targetIndex)
	e.FileId = rec.FileId
	if err := m.idx.Insert(e); err != nil {
		m.mu.Unlock()
		return briefcase.Props{}, nil, nil, newErr(KindFatal, "inserting new entry", err)
	}
	m.mu.Unlock()

	return m.launchCreate(ctx, e)
}

// finishVariableLookup handles the Reuse/Update/Recreate dispatch once an
// existing PullOnly/PullAndPush entry has been located, whether found via
// hub-ownership query or local index scan. Caller holds m.mu and this
// function always releases it before returning.
func (m *Manager) finishVariableLookup(ctx context.Context, e *briefcase.Entry, mode briefcase.SyncMode, targetId briefcase.ChangeSetId, targetIndex int) (briefcase.Props, *briefcase.DownloadFuture, context.CancelFunc, error) {
	switch validateBriefcase(e, mode, targetId, targetIndex, e.BriefcaseId) {
	case Reuse:
		m.mu.Unlock()
		return briefcase.PropsFromEntry(e), e.Future, nil, nil
	case Update:
		if e.IsOpen {
			m.mu.Unlock()
			return briefcase.Props{}, nil, nil, newErrWithDebug(KindPrecondition, "existing entry is open", ErrBriefcaseInUse, e)
		}
		e.TargetChangeSetId, e.TargetChangeSetIndex = targetId, targetIndex
		e.DownloadStatus = briefcase.DownloadingChangeSets
		e.Future = briefcase.NewDownloadFuture()
		m.mu.Unlock()
		return m.launchInitialize(ctx, e)
	default: // Recreate
		if e.IsOpen {
			m.mu.Unlock()
			return briefcase.Props{}, nil, nil, newErrWithDebug(KindPrecondition, "existing entry is open", ErrBriefcaseInUse, e)
		}
		oldKey := e.Key()
		if err := m.idx.Remove(oldKey); err != nil {
			m.mu.Unlock()
			return briefcase.Props{}, nil, nil, newErr(KindFatal, "removing stale entry before recreate", err)
		}
		pathname := m.layout.BriefcasePathname(e.IModelId, mode, e.BriefcaseId, "")
		skel := m.newSkeletonEntry(pathname, e.IModelId, e.ContextId, e.BriefcaseId, mode, targetId, targetIndex)
		skel.FileId = e.FileId
		if err := m.idx.Insert(skel); err != nil {
			m.mu.Unlock()
			return briefcase.Props{}, nil, nil, newErr(KindFatal, "inserting recreated entry", err)
		}
		m.mu.Unlock()
		return m.launchCreate(ctx, skel)
	}
}

func (m *Manager) newSkeletonEntry(pathname string, iModelId briefcase.IModelId, contextId briefcase.ContextId, briefcaseId briefcase.BriefcaseId, mode briefcase.SyncMode, targetId briefcase.ChangeSetId, targetIndex int) *briefcase.Entry {
	return &briefcase.Entry{
		Pathname:             pathname,
		IModelId:             iModelId,
		ContextId:            contextId,
		BriefcaseId:          briefcaseId,
		SyncMode:             mode,
		TargetChangeSetId:    targetId,
		TargetChangeSetIndex: targetIndex,
		DownloadStatus:       briefcase.NotStarted,
		OpenModeValue:        briefcase.DefaultOpenMode(mode),
		Future:               briefcase.NewDownloadFuture(),
	}
}

// adoptFromDisk tries to recognize an orphaned briefcase file left on disk
// from a prior process whose index was never persisted (spec §4.I's
// per-briefcase validation, reapplied opportunistically outside full
// bootstrap). It never mutates the file; it only opens, inspects, and
// closes.
func (m *Manager) adoptFromDisk(ctx context.Context, pathname string, iModelId briefcase.IModelId, mode briefcase.SyncMode, targetId briefcase.ChangeSetId, briefcaseId briefcase.BriefcaseId) (*briefcase.Entry, bool) {
	if _, err := os.Stat(pathname); err != nil {
		return nil, false
	}

	db := m.newDb()
	if err := db.Open(ctx, pathname, briefcase.DefaultOpenMode(mode)); err != nil {
		m.logger.Warn("adopt-from-disk: open failed", "path", pathname, "err", err)
		return nil, false
	}
	defer db.Close(ctx)

	if db.GetDbGuid() != iModelId {
		m.logger.Warn("adopt-from-disk: dbGuid mismatch", "path", pathname)
		return nil, false
	}
	if mode == briefcase.FixedVersion && db.GetParentChangeSetId() != targetId {
		m.logger.Warn("adopt-from-disk: FixedVersion changeset mismatch", "path", pathname)
		return nil, false
	}
	if mode != briefcase.FixedVersion && briefcaseId != briefcase.Illegal && db.GetBriefcaseId() != briefcaseId {
		m.logger.Warn("adopt-from-disk: briefcaseId mismatch", "path", pathname)
		return nil, false
	}

	reversedId, reversed := db.GetReversedChangeSetId()
	e := &briefcase.Entry{
		Pathname:               pathname,
		IModelId:               iModelId,
		ContextId:              db.QueryProjectGuid(),
		BriefcaseId:            db.GetBriefcaseId(),
		SyncMode:               mode,
		ParentChangeSetId:      db.GetParentChangeSetId(),
		ParentChangeSetIndex:   db.GetParentChangeSetIndex(),
		ReversedChangeSetId:    reversedId,
		ReversedChangeSetIndex: db.GetReversedChangeSetIndex(),
		ReversedSet:            reversed,
		TargetChangeSetId:      db.GetParentChangeSetId(),
		TargetChangeSetIndex:   db.GetParentChangeSetIndex(),
		DownloadStatus:         briefcase.Complete,
		OpenModeValue:          briefcase.DefaultOpenMode(mode),
		Future:                 briefcase.NewDownloadFuture(),
	}
	if reversed {
		e.TargetChangeSetId, e.TargetChangeSetIndex = reversedId, e.ReversedChangeSetIndex
	}
	return e, true
}

// launchCreate starts finishCreate on a background goroutine tracked by
// m.workers, returning the in-progress Props and the future the caller
// waits on (spec §4.E finishCreate, §5 "worker threads for download").
func (m *Manager) launchCreate(ctx context.Context, e *briefcase.Entry) (briefcase.Props, *briefcase.DownloadFuture, context.CancelFunc, error) {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.Cancel = cancel
	future := e.Future
	props := briefcase.PropsFromEntry(e)

	m.workers.Go(func() error {
		props, err := m.finishCreate(workCtx, e)
		future.Resolve(props, err)
		return nil
	})

	return props, future, cancel, nil
}

// launchInitialize starts finishInitialize on a background goroutine,
// mirroring launchCreate for the Update path (spec §4.E finishInitialize).
func (m *Manager) launchInitialize(ctx context.Context, e *briefcase.Entry) (briefcase.Props, *briefcase.DownloadFuture, context.CancelFunc, error) {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.Cancel = cancel
	future := e.Future

	m.workers.Go(func() error {
		props, err := m.finishInitialize(workCtx, e)
		future.Resolve(props, err)
		return nil
	})

	return briefcase.PropsFromEntry(e), future, cancel, nil
}

// finishInitialize brings an already-materialized entry forward to its
// newly requested target version (spec §4.E finishInitialize): resolve a
// current fileId if this is a hub-backed mode, run the changeset engine if
// the entry isn't already at its target, close, and mark Complete. On
// failure, a PullAndPush entry with uncommitted local work is never
// deleted out from under the caller; everything else is torn down so the
// next request starts clean.
func (m *Manager) finishInitialize(ctx context.Context, e *briefcase.Entry) (briefcase.Props, error) {
	db := m.newDb()
	if err := db.Open(ctx, e.Pathname, briefcase.ReadWrite); err != nil {
		return briefcase.Props{}, m.failInitialize(ctx, e, db, false, newErr(KindCorruption, "opening briefcase for update", err))
	}
	m.hooks.FireAfterOpen(e)
	m.mu.Lock()
	e.IsOpen = true
	m.mu.Unlock()

	if e.FileId == "" && e.SyncMode != briefcase.FixedVersion {
		fileId, err := m.hub.BriefcaseFileId(ctx, e.IModelId, e.BriefcaseId)
		if err != nil {
			return briefcase.Props{}, m.failInitialize(ctx, e, db, db.HasPendingTxns(), newErr(KindTransientHub, "resolving fileId", err))
		}
		e.FileId = fileId
	}

	if e.CurrentChangeSetIndex() != e.TargetChangeSetIndex {
		m.hooks.FireBeforeVersionUpdate(e, e.TargetChangeSetId)
		if err := m.runChangeSetEngine(ctx, e, db); err != nil {
			return briefcase.Props{}, m.failInitialize(ctx, e, db, db.HasPendingTxns(), err)
		}
	}

	m.hooks.FireBeforeClose(e)
	if err := db.Close(ctx); err != nil {
		return briefcase.Props{}, m.failInitialize(ctx, e, db, false, newErr(KindFatal, "closing briefcase", err))
	}

	m.mu.Lock()
	e.IsOpen = false
	e.DownloadStatus = briefcase.Complete
	m.mu.Unlock()

	return briefcase.PropsFromEntry(e), nil
}

func (m *Manager) failInitialize(ctx context.Context, e *briefcase.Entry, db interface{ Close(context.Context) error }, hasPending bool, cause error) error {
	m.mu.Lock()
	e.DownloadStatus = briefcase.Error
	e.IsOpen = false
	m.mu.Unlock()
	db.Close(ctx)

	if e.SyncMode == briefcase.PullAndPush && hasPending {
		m.logger.Warn("finishInitialize failed but entry has pending local work, not deleting", "key", e.Key(), "err", cause)
		return cause
	}

	m.mu.Lock()
	_ = m.idx.Remove(e.Key())
	m.mu.Unlock()
	os.RemoveAll(filepath.Dir(e.Pathname))
	return cause
}

// finishCreate materializes a brand-new briefcase from scratch (spec §4.E
// finishCreate): fetch the nearest checkpoint, open it, fix up the
// briefcaseId if the checkpoint brought its own, assert identity, run the
// changeset engine up to the target, close, and mark Complete. A corrupted
// changeset stream also invalidates the shared per-iModel changeset pool,
// since every other briefcase for this iModel would hit the same bytes.
func (m *Manager) finishCreate(ctx context.Context, e *briefcase.Entry) (briefcase.Props, error) {
	m.mu.Lock()
	e.DownloadStatus = briefcase.DownloadingCheckpoint
	m.mu.Unlock()

	cp, err := m.hub.NearestCheckpoint(ctx, hub.CheckpointQuery{
		IModelId:        e.IModelId,
		BeforeOrAtId:    e.TargetChangeSetId,
		BeforeOrAtIndex: e.TargetChangeSetIndex,
	})
	if err != nil {
		return briefcase.Props{}, m.failCreate(ctx, e, nil, newErr(KindTransientHub, "resolving nearest checkpoint", err))
	}

	if err := m.layout.EnsureDir(filepath.Dir(e.Pathname)); err != nil {
		return briefcase.Props{}, m.failCreate(ctx, e, nil, newErr(KindFatal, "creating briefcase directory", err))
	}

	progress := func(done, total int64) {
		m.logger.Debug("checkpoint download progress", "key", e.Key(), "done", done, "total", total)
	}
	if err := m.hub.DownloadCheckpoint(ctx, cp, e.Pathname, progress); err != nil {
		if ctx.Err() != nil {
			return briefcase.Props{}, m.failCreate(ctx, e, nil, newErr(KindUserCancelled, "checkpoint download cancelled", ctx.Err()))
		}
		return briefcase.Props{}, m.failCreate(ctx, e, nil, newErr(KindTransientHub, "downloading checkpoint", err))
	}

	db := m.newDb()
	if err := db.Open(ctx, e.Pathname, briefcase.ReadWrite); err != nil {
		return briefcase.Props{}, m.failCreate(ctx, e, nil, newErr(KindCorruption, "opening freshly downloaded checkpoint", err))
	}
	m.hooks.FireAfterOpen(e)
	m.mu.Lock()
	e.IsOpen = true
	m.mu.Unlock()

	if e.SyncMode != briefcase.FixedVersion && db.GetBriefcaseId() != e.BriefcaseId {
		if err := db.ResetBriefcaseId(e.BriefcaseId); err != nil {
			return briefcase.Props{}, m.failCreate(ctx, e, db, newErr(KindCorruption, "reassigning briefcaseId", err))
		}
	}

	if db.GetDbGuid() != e.IModelId {
		return briefcase.Props{}, m.failCreate(ctx, e, db, newErr(KindCorruption, "checkpoint dbGuid mismatch", nil))
	}
	if db.GetParentChangeSetId() != cp.MergedChangeSetId {
		return briefcase.Props{}, m.failCreate(ctx, e, db, newErr(KindCorruption, "checkpoint parentChangeSetId mismatch", nil))
	}

	m.mu.Lock()
	e.ParentChangeSetId, e.ParentChangeSetIndex = db.GetParentChangeSetId(), db.GetParentChangeSetIndex()
	e.ContextId = db.QueryProjectGuid()
	e.DownloadStatus = briefcase.DownloadingChangeSets
	m.mu.Unlock()

	if e.CurrentChangeSetIndex() != e.TargetChangeSetIndex {
		if err := m.runChangeSetEngine(ctx, e, db); err != nil {
			if hub.IsCorruption(err) {
				os.RemoveAll(m.layout.ChangeSetPoolDir(e.IModelId))
			}
			return briefcase.Props{}, m.failCreate(ctx, e, db, err)
		}
	}

	m.hooks.FireBeforeClose(e)
	if err := db.Close(ctx); err != nil {
		return briefcase.Props{}, m.failCreate(ctx, e, db, newErr(KindFatal, "closing briefcase", err))
	}

	m.mu.Lock()
	e.IsOpen = false
	e.DownloadStatus = briefcase.Complete
	m.mu.Unlock()

	return briefcase.PropsFromEntry(e), nil
}

func (m *Manager) failCreate(ctx context.Context, e *briefcase.Entry, db interface{ Close(context.Context) error }, cause error) error {
	m.mu.Lock()
	e.DownloadStatus = briefcase.Error
	e.IsOpen = false
	m.mu.Unlock()
	if db != nil {
		db.Close(ctx)
	}
	m.mu.Lock()
	_ = m.idx.Remove(e.Key())
	m.mu.Unlock()
	os.RemoveAll(filepath.Dir(e.Pathname))
	return cause
}
