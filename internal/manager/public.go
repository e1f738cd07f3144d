package manager

import (
	"context"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

// OpenBriefcase opens the entry at key for direct native-engine access and
// returns the handle to the caller (spec §6 openBriefcase). The manager
// tracks the handle only so CloseBriefcase and purgeCache can find it
// again; query traffic against the returned Db is the caller's concern.
func (m *Manager) OpenBriefcase(ctx context.Context, key briefcase.Key) (nativedb.Db, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.idx.Lookup(key)
	if !found {
		return nil, newErr(KindNotFound, "no entry for key", nil)
	}
	if e.IsOpen {
		return nil, newErrWithDebug(KindPrecondition, "entry already open", nil, e)
	}

	db := m.newDb()
	if err := db.Open(ctx, e.Pathname, e.OpenModeValue); err != nil {
		return nil, newErrWithDebug(KindCorruption, "opening briefcase", err, e)
	}

	e.IsOpen = true
	m.openDbs[key] = db
	m.hooks.FireAfterOpen(e)
	return db, nil
}

// CloseBriefcase closes the handle OpenBriefcase returned for key (spec §6
// close). Closing an entry that isn't open is a no-op, matching the
// idempotent close semantics spec §4.H documents for delete's precondition.
func (m *Manager) CloseBriefcase(ctx context.Context, key briefcase.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLockedByKey(ctx, key)
}

func (m *Manager) closeLockedByKey(ctx context.Context, key briefcase.Key) error {
	e, found := m.idx.Lookup(key)
	if !found {
		return newErr(KindNotFound, "no entry for key", nil)
	}
	return m.closeLocked(ctx, e)
}

// closeLocked closes e's tracked handle, if any. Caller must hold m.mu.
func (m *Manager) closeLocked(ctx context.Context, e *briefcase.Entry) error {
	db, ok := m.openDbs[e.Key()]
	if !ok {
		e.IsOpen = false
		return nil
	}

	m.hooks.FireBeforeClose(e)
	err := db.Close(ctx)
	delete(m.openDbs, e.Key())
	e.IsOpen = false
	if err != nil {
		return newErrWithDebug(KindFatal, "closing briefcase", err, e)
	}
	return nil
}

// FindBriefcaseByKey returns the entry for key, if any (spec §6
// findBriefcaseByKey).
func (m *Manager) FindBriefcaseByKey(key briefcase.Key) (briefcase.DebugProjection, bool) {
	e, found := m.findBriefcaseByKey(key)
	if !found {
		return briefcase.DebugProjection{}, false
	}
	return e.Debug(), true
}

// GetBriefcases returns every currently indexed entry's debug projection
// (spec §6 getBriefcases).
func (m *Manager) GetBriefcases() []briefcase.DebugProjection {
	return m.getBriefcases()
}

// withDb runs fn against e's already-open tracked handle if the caller
// previously called OpenBriefcase, otherwise opens a transient handle for
// the duration of fn and closes it afterward (spec §5: one Db per entry,
// serialized by lifecycle).
func (m *Manager) withDb(ctx context.Context, e *briefcase.Entry, fn func(nativedb.Db) error) error {
	m.mu.Lock()
	db, tracked := m.openDbs[e.Key()]
	m.mu.Unlock()

	if tracked {
		return fn(db)
	}

	db = m.newDb()
	if err := db.Open(ctx, e.Pathname, briefcase.ReadWrite); err != nil {
		return newErrWithDebug(KindCorruption, "opening briefcase", err, e)
	}
	m.hooks.FireAfterOpen(e)
	defer func() {
		m.hooks.FireBeforeClose(e)
		db.Close(ctx)
	}()
	return fn(db)
}

// PullAndMergeChanges advances e to the hub's latest changeset (spec §6
// pullAndMergeChanges), running the Reinstate/Merge half of the changeset
// engine's plan as needed.
func (m *Manager) PullAndMergeChanges(ctx context.Context, key briefcase.Key) error {
	e, found := m.idx.Lookup(key)
	if !found {
		return newErr(KindNotFound, "no entry for key", nil)
	}

	latestId, latestIndex, err := m.hub.ResolveChangeSetId(ctx, e.IModelId, hub.VersionSpec{Kind: hub.VersionLatest})
	if err != nil {
		return newErr(KindTransientHub, "resolving latest version", err)
	}

	m.mu.Lock()
	e.TargetChangeSetId, e.TargetChangeSetIndex = latestId, latestIndex
	m.mu.Unlock()

	if e.CurrentChangeSetIndex() == latestIndex {
		return nil
	}
	return m.withDb(ctx, e, func(db nativedb.Db) error {
		return m.runChangeSetEngine(ctx, e, db)
	})
}

// PushChangesByKey looks up the entry for key and pushes its locally staged
// work to the hub (spec §6 pushChanges), the key-addressed counterpart to
// PushChanges for callers, such as the CLI, that only hold a Key rather
// than a live *briefcase.Entry.
func (m *Manager) PushChangesByKey(ctx context.Context, key briefcase.Key, description string, changeType nativedb.ChangeType, relinquishCodesLocks bool) error {
	e, found := m.idx.Lookup(key)
	if !found {
		return newErr(KindNotFound, "no entry for key", nil)
	}
	return m.PushChanges(ctx, e, description, changeType, relinquishCodesLocks)
}

// ReverseChanges moves e backward to targetId (spec §6 reverseChanges).
func (m *Manager) ReverseChanges(ctx context.Context, key briefcase.Key, targetId briefcase.ChangeSetId) error {
	return m.retarget(ctx, key, targetId)
}

// ReinstateChanges moves e to targetId via retarget (spec §6
// reinstateChanges). The target is not limited to the current parent
// pointer: a target past the parent is merged from the hub, and a target
// behind the current position is reversed.
func (m *Manager) ReinstateChanges(ctx context.Context, key briefcase.Key, targetId briefcase.ChangeSetId) error {
	return m.retarget(ctx, key, targetId)
}

// retarget resolves targetId's index and hands off to the changeset engine,
// which dispatches internally between reverse/reinstate/merge based on the
// entry's current position (spec §4.F's plan covers every direction, so
// reverseChanges and reinstateChanges only differ from pullAndMergeChanges
// in which version they resolve against).
func (m *Manager) retarget(ctx context.Context, key briefcase.Key, targetId briefcase.ChangeSetId) error {
	e, found := m.idx.Lookup(key)
	if !found {
		return newErr(KindNotFound, "no entry for key", nil)
	}
	if e.OpenModeValue == briefcase.Readonly {
		return newErrWithDebug(KindPrecondition, "cannot retarget a readonly briefcase", nil, e)
	}

	_, targetIndex, err := m.hub.ResolveChangeSetId(ctx, e.IModelId, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: targetId})
	if err != nil {
		return newErr(KindTransientHub, "resolving target version", err)
	}

	m.mu.Lock()
	e.TargetChangeSetId, e.TargetChangeSetIndex = targetId, targetIndex
	m.mu.Unlock()

	if e.CurrentChangeSetIndex() == targetIndex {
		return nil
	}
	return m.withDb(ctx, e, func(db nativedb.Db) error {
		return m.runChangeSetEngine(ctx, e, db)
	})
}
