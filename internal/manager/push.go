package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

const (
	pushBaseBackoff = 200 * time.Millisecond
	pushMaxBackoff  = 5 * time.Second
)

// PushChanges uploads e's locally staged work to the hub (spec §4.G,
// §6 pushChanges), retrying transient hub rejections up to
// config.Push.MaxAttempts times with randomized exponential backoff. Only
// PullAndPush entries may push.
func (m *Manager) PushChanges(ctx context.Context, e *briefcase.Entry, description string, changeType nativedb.ChangeType, relinquishCodesLocks bool) error {
	if e.SyncMode != briefcase.PullAndPush {
		return newErrWithDebug(KindPrecondition, "push requires PullAndPush", ErrPushNotAllowed, e)
	}

	pushId := uuid.NewString()
	m.logger.Info("push starting", "key", e.Key(), "push_id", pushId)

	db := m.newDb()
	if err := db.Open(ctx, e.Pathname, briefcase.ReadWrite); err != nil {
		return newErrWithDebug(KindCorruption, "opening briefcase for push", err, e)
	}
	m.hooks.FireAfterOpen(e)
	defer func() {
		m.hooks.FireBeforeClose(e)
		db.Close(ctx)
	}()

	backoff, err := retry.NewExponential(pushBaseBackoff)
	if err != nil {
		return newErrWithDebug(KindFatal, "constructing push backoff", err, e)
	}
	backoff = retry.WithCappedDuration(pushMaxBackoff, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	maxAttempts := m.cfg.Push.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff = retry.WithMaxRetries(uint64(maxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := m.pushAttempt(ctx, e, db, description, changeType, relinquishCodesLocks)
		if err == nil {
			return nil
		}

		var merr *Error
		if asManagerError(err, &merr) && merr.Kind == KindTransientHub {
			m.logger.Warn("push attempt failed transiently, retrying", "key", e.Key(), "push_id", pushId, "err", err)
			return retry.RetryableError(err)
		}

		m.logger.Warn("push attempt failed, abandoning staged changeset", "key", e.Key(), "push_id", pushId, "err", err)
		db.AbandonCreateChangeSet(ctx)
		return err
	})
}

func asManagerError(err error, target **Error) bool {
	if me, ok := err.(*Error); ok {
		*target = me
		return true
	}
	return false
}

// pushAttempt runs one full push attempt: pull to latest, drain any codes
// left pending from a prior interrupted push, stage and upload the local
// changeset, reconcile codes, and advance the entry's parent pointer
// (spec §4.G steps 1-8).
func (m *Manager) pushAttempt(ctx context.Context, e *briefcase.Entry, db nativedb.Db, description string, changeType nativedb.ChangeType, relinquishCodesLocks bool) error {
	if err := m.pullToLatestLocked(ctx, e, db); err != nil {
		return err
	}

	if err := m.drainPendingChangeSets(ctx, e, db); err != nil {
		return err
	}

	token, err := db.StartCreateChangeSet(ctx)
	if err != nil {
		return newErr(KindFatal, "starting local changeset", err)
	}

	desc := description
	if max := m.cfg.Push.DescriptionMaxLen; max > 0 && len(desc) > max {
		desc = desc[:max]
	}

	effectiveType := hub.ChangeTypeRegular
	if changeType == nativedb.Schema || token.ChangeType == nativedb.Schema {
		effectiveType = hub.ChangeTypeSchema
	}

	created, err := m.hub.CreateChangeSet(ctx, e.IModelId, hub.NewChangeSetRecord{
		BriefcaseId: e.BriefcaseId,
		Id:          token.Id,
		ParentId:    token.ParentId,
		SeedFileId:  e.FileId,
		FileSize:    token.FileSize,
		Description: desc,
		ChangeType:  effectiveType,
	}, token.Path)
	if err != nil {
		switch {
		case errors.Is(err, hub.ErrChangeSetAlreadyExists):
			// A prior attempt's upload already landed; only code/lock
			// reconciliation failed afterward. Proceed using the hub's
			// authoritative index for the changeset we just tried to
			// recreate (spec §4.G step 5, §7 AlreadyExists handling).
			_, index, resolveErr := m.hub.ResolveChangeSetId(ctx, e.IModelId, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: token.Id})
			if resolveErr != nil {
				return newErr(KindTransientHub, "resolving already-uploaded changeset", resolveErr)
			}
			created = hub.CreatedChangeSetRecord{Id: token.Id, Index: index}
		case hub.IsTransient(err):
			return newErr(KindTransientHub, "uploading changeset", err)
		default:
			return newErr(KindFatal, "uploading changeset", err)
		}
	}

	m.reconcileCodes(ctx, e, db, token.Id, relinquishCodesLocks)

	if err := db.FinishCreateChangeSet(ctx); err != nil {
		return newErr(KindFatal, "finishing local changeset", err)
	}

	oldKey := e.Key()
	m.mu.Lock()
	e.ParentChangeSetId, e.ParentChangeSetIndex = created.Id, created.Index
	e.TargetChangeSetId, e.TargetChangeSetIndex = created.Id, created.Index
	_ = m.idx.Rekey(oldKey, e)
	m.mu.Unlock()

	return nil
}

// pullToLatestLocked resolves the hub's latest changeset index and, if e is
// behind, runs the changeset engine to merge forward before pushing
// (spec §4.G step 1).
func (m *Manager) pullToLatestLocked(ctx context.Context, e *briefcase.Entry, db nativedb.Db) error {
	latestId, latestIndex, err := m.hub.ResolveChangeSetId(ctx, e.IModelId, hub.VersionSpec{Kind: hub.VersionLatest})
	if err != nil {
		return newErr(KindTransientHub, "resolving latest version before push", err)
	}

	m.mu.Lock()
	e.TargetChangeSetId, e.TargetChangeSetIndex = latestId, latestIndex
	m.mu.Unlock()

	if e.CurrentChangeSetIndex() == latestIndex {
		return nil
	}
	if err := m.runChangeSetEngine(ctx, e, db); err != nil {
		return err
	}
	return nil
}

// drainPendingChangeSets retries code reconciliation for any changeset a
// prior push left in the pending set because its codes conflicted
// (spec §4.G: "pending changesets ... download, extract, reconcile
// codes"). A conflict here is sticky on e.ConflictError but does not abort
// the push: the changeset itself was already durably applied.
func (m *Manager) drainPendingChangeSets(ctx context.Context, e *briefcase.Entry, db nativedb.Db) error {
	pending, err := db.GetPendingChangeSets()
	if err != nil {
		return newErr(KindFatal, "listing pending changesets", err)
	}

	for _, id := range pending {
		records, err := m.hub.ListChangeSets(ctx, hub.ChangeSetQuery{IModelId: e.IModelId, UpToAndIncludingId: id})
		if err != nil {
			return newErr(KindTransientHub, "listing pending changeset for reconciliation", err)
		}
		var rec *hub.ChangeSetRecord
		for i := range records {
			if records[i].Id == id {
				rec = &records[i]
				break
			}
		}
		if rec == nil {
			if err := db.RemovePendingChangeSet(id); err != nil {
				return newErr(KindFatal, "clearing stale pending changeset", err)
			}
			continue
		}

		codes, err := db.ExtractCodesFromFile(ctx, []nativedb.ChangeSetToken{{Id: rec.Id, ParentId: rec.ParentId, Index: rec.Index}})
		if err != nil {
			return newErr(KindFatal, "extracting codes from pending changeset", err)
		}

		if err := m.hub.UpdateCodes(ctx, e.IModelId, codes, hub.CodeUpdateOpts{}); err != nil {
			if denied, ok := hub.AsConflictingCodes(err); ok {
				m.mu.Lock()
				e.ConflictError = newErr(KindConflictingCodes, fmt.Sprintf("codes still conflicting: %v", denied), err)
				m.mu.Unlock()
				continue
			}
			return newErr(KindTransientHub, "reconciling pending changeset codes", err)
		}

		if err := db.RemovePendingChangeSet(id); err != nil {
			return newErr(KindFatal, "clearing resolved pending changeset", err)
		}
	}
	return nil
}

// reconcileCodes extracts the codes touched by the just-uploaded local
// changeset and pushes them to the hub (spec §4.G step 6). A conflict adds
// the changeset to the pending set for a future drainPendingChangeSets
// pass rather than failing the push, since the changeset bytes are already
// durably on the hub. relinquishCodesLocks, when requested, best-effort
// releases every code/lock this briefcase holds afterward; failures here
// are logged, never returned, since they must not undo a successful push.
func (m *Manager) reconcileCodes(ctx context.Context, e *briefcase.Entry, db nativedb.Db, changeSetId briefcase.ChangeSetId, relinquishCodesLocks bool) {
	codes, err := db.ExtractCodes(ctx)
	if err != nil {
		m.logger.Warn("push: extracting codes failed, leaving for next drain pass", "key", e.Key(), "err", err)
		if addErr := db.AddPendingChangeSet(changeSetId); addErr != nil {
			m.logger.Warn("push: recording pending changeset failed", "key", e.Key(), "err", addErr)
		}
		return
	}

	if err := m.hub.UpdateCodes(ctx, e.IModelId, codes, hub.CodeUpdateOpts{}); err != nil {
		if denied, ok := hub.AsConflictingCodes(err); ok {
			m.mu.Lock()
			e.ConflictError = newErr(KindConflictingCodes, fmt.Sprintf("codes conflicting on push: %v", denied), err)
			m.mu.Unlock()
		} else {
			m.logger.Warn("push: updating codes failed, leaving for next drain pass", "key", e.Key(), "err", err)
		}
		if addErr := db.AddPendingChangeSet(changeSetId); addErr != nil {
			m.logger.Warn("push: recording pending changeset failed", "key", e.Key(), "err", addErr)
		}
		return
	}

	if relinquishCodesLocks {
		if err := m.hub.DeleteAllCodes(ctx, e.IModelId, e.BriefcaseId); err != nil {
			m.logger.Warn("push: relinquishing codes failed", "key", e.Key(), "err", err)
		}
		if err := m.hub.DeleteAllLocks(ctx, e.IModelId, e.BriefcaseId); err != nil {
			m.logger.Warn("push: relinquishing locks failed", "key", e.Key(), "err", err)
		}
	}
}
