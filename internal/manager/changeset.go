package manager

import (
	"context"
	"fmt"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

// opKind names one step of a changeset engine plan (spec §4.F).
type opKind int

const (
	opReverse opKind = iota
	opReinstate
	opMerge
)

func (k opKind) String() string {
	switch k {
	case opReverse:
		return "reverse"
	case opReinstate:
		return "reinstate"
	case opMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// planOp is one step of a changeset engine plan: move from fromIndex to
// toIndex (exclusive, inclusive respectively) via kind.
type planOp struct {
	kind                opKind
	fromIndex, toIndex int
}

// computePlan derives the ordered sequence of reverse/reinstate/merge
// operations needed to move a briefcase currently at (parentIndex,
// reversedIndex, reversedSet) to targetIndex (spec §4.F). At most one
// reverse-direction step and one forward-direction step are ever needed:
// moving further back than the current visible position is a pure
// Reverse; moving forward within already-applied history is a pure
// Reinstate; moving forward past the high-water mark first reinstates back
// to it (if currently reversed) and then merges new changesets from the
// hub.
func computePlan(parentIndex, reversedIndex int, reversedSet bool, targetIndex int) []planOp {
	currentIndex := parentIndex
	if reversedSet {
		currentIndex = reversedIndex
	}

	switch {
	case targetIndex == currentIndex:
		return nil
	case targetIndex < currentIndex:
		return []planOp{{kind: opReverse, fromIndex: targetIndex, toIndex: currentIndex}}
	case reversedSet && targetIndex <= parentIndex:
		return []planOp{{kind: opReinstate, fromIndex: currentIndex, toIndex: targetIndex}}
	default:
		var ops []planOp
		if reversedSet {
			ops = append(ops, planOp{kind: opReinstate, fromIndex: currentIndex, toIndex: parentIndex})
		}
		ops = append(ops, planOp{kind: opMerge, fromIndex: parentIndex, toIndex: targetIndex})
		return ops
	}
}

// runChangeSetEngine executes every plan step needed to bring e (backed by
// the already-open db) to its TargetChangeSetIndex (spec §4.F). It
// preconditions on db being open read-write with a parent pointer that
// still matches the in-memory entry — a mismatch means some other actor
// mutated the file out from under the manager, which is always fatal.
func (m *Manager) runChangeSetEngine(ctx context.Context, e *briefcase.Entry, db nativedb.Db) error {
	if !db.IsOpen() {
		return newErrWithDebug(KindPrecondition, "changeset engine requires an open briefcase", nil, e)
	}
	if db.GetParentChangeSetId() != e.ParentChangeSetId {
		return newErrWithDebug(KindCorruption, "in-memory parent pointer diverged from briefcase", nil, e)
	}

	plan := computePlan(e.ParentChangeSetIndex, e.ReversedChangeSetIndex, e.ReversedSet, e.TargetChangeSetIndex)
	for _, op := range plan {
		if err := m.runPlanOp(ctx, e, db, op); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) runPlanOp(ctx context.Context, e *briefcase.Entry, db nativedb.Db, op planOp) error {
	records, err := m.listRange(ctx, e.IModelId, op.fromIndex, op.toIndex)
	if err != nil {
		return newErr(KindTransientHub, fmt.Sprintf("listing changesets for %s", op.kind), err)
	}

	paths, err := m.hub.DownloadChangeSets(ctx, records, m.layout.ChangeSetPoolDir(e.IModelId))
	if err != nil {
		if ctx.Err() != nil {
			return newErr(KindUserCancelled, "changeset download cancelled", ctx.Err())
		}
		return newErr(KindTransientHub, fmt.Sprintf("downloading changesets for %s", op.kind), err)
	}

	tokens := make([]nativedb.ChangeSetToken, len(records))
	for i, rec := range records {
		changeType := nativedb.Regular
		if rec.IsSchema {
			changeType = nativedb.Schema
		}
		tokens[i] = nativedb.ChangeSetToken{
			Id:         rec.Id,
			ParentId:   rec.ParentId,
			Index:      rec.Index,
			Path:       paths[i],
			ChangeType: changeType,
			Reverse:    op.kind == opReverse,
		}
	}
	if op.kind == opReverse {
		reverseTokens(tokens)
	}

	var maxFileSize int64
	for _, rec := range records {
		if rec.FileSize > maxFileSize {
			maxFileSize = rec.FileSize
		}
	}

	status, applyErr := m.applyTokens(ctx, e, db, tokens, maxFileSize)

	m.mu.Lock()
	e.ParentChangeSetId, e.ParentChangeSetIndex = db.GetParentChangeSetId(), db.GetParentChangeSetIndex()
	e.ReversedChangeSetId, e.ReversedSet = db.GetReversedChangeSetId()
	e.ReversedChangeSetIndex = db.GetReversedChangeSetIndex()
	m.mu.Unlock()

	if applyErr != nil {
		return newErrWithDebug(KindCorruption, fmt.Sprintf("%s failed", op.kind), applyErr, e)
	}
	if status != nativedb.StatusSuccess {
		return newErrWithDebug(KindCorruption, fmt.Sprintf("%s returned non-success status", op.kind), nil, e)
	}

	for _, tok := range tokens {
		m.hooks.FireChangesetApplied(e, tok.Id)
	}
	return nil
}

// listRange returns every changeset record in (fromIndex, toIndex], sorted
// ascending by index, by listing the iModel's full history and filtering
// client-side. The hub's paging API is index-naive (it filters by
// changeset id, not numeric index), so this is the straightforward way to
// resolve an index range without maintaining a parallel index->id map.
func (m *Manager) listRange(ctx context.Context, iModelId briefcase.IModelId, fromIndex, toIndex int) ([]hub.ChangeSetRecord, error) {
	all, err := m.hub.ListChangeSets(ctx, hub.ChangeSetQuery{IModelId: iModelId, IncludeDownloadURL: true})
	if err != nil {
		return nil, err
	}

	var out []hub.ChangeSetRecord
	for _, cs := range all {
		if cs.Index > fromIndex && cs.Index <= toIndex {
			out = append(out, cs)
		}
	}
	return out, nil
}

func reverseTokens(tokens []nativedb.ChangeSetToken) {
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
}

// applyTokens selects between the synchronous and asynchronous ("invasive":
// close, apply off-thread, reopen) application paths per spec §4.F: any
// token whose file exceeds config.ChangeSet.AsyncThresholdBytes, or that
// carries a schema change, forces the asynchronous path regardless of the
// others in the batch.
func (m *Manager) applyTokens(ctx context.Context, e *briefcase.Entry, db nativedb.Db, tokens []nativedb.ChangeSetToken, maxFileSize int64) (nativedb.ChangeSetStatus, error) {
	if len(tokens) == 0 {
		return nativedb.StatusSuccess, nil
	}

	if needsAsync(tokens, maxFileSize, m.cfg.ChangeSet.AsyncThresholdBytes) {
		return m.applyAsync(ctx, e, db, tokens)
	}
	return db.ApplySync(ctx, tokens, nativedb.ApplyNormal)
}

// needsAsync selects the asynchronous close-apply-reopen path when any
// token carries a schema change, or when the batch's largest file exceeds
// the configured threshold (spec §4.F; default threshold is the 1 MiB
// constant in config.defaultChangeSetAsyncThresholdBytes).
func needsAsync(tokens []nativedb.ChangeSetToken, maxFileSize, thresholdBytes int64) bool {
	if maxFileSize > thresholdBytes {
		return true
	}
	for _, tok := range tokens {
		if tok.ChangeType == nativedb.Schema {
			return true
		}
	}
	return false
}

func (m *Manager) applyAsync(ctx context.Context, e *briefcase.Entry, db nativedb.Db, tokens []nativedb.ChangeSetToken) (nativedb.ChangeSetStatus, error) {
	if err := db.ReadChangeSets(ctx, tokens); err != nil {
		return nativedb.StatusFailure, fmt.Errorf("manager: reading changesets for async apply: %w", err)
	}
	if err := db.CloseBriefcase(ctx); err != nil {
		return nativedb.StatusFailure, fmt.Errorf("manager: closing briefcase for async apply: %w", err)
	}

	type result struct {
		status nativedb.ChangeSetStatus
		err    error
	}
	done := make(chan result, 1)
	db.DoApplyAsync(ctx, nativedb.ApplyNormal, func(status nativedb.ChangeSetStatus, err error) {
		done <- result{status, err}
	})

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{nativedb.StatusFailure, ctx.Err()}
	}

	// Reopen ReadWrite regardless of the entry's requested open mode: the
	// handle this pipeline holds is closed outright once the plan finishes
	// (finishCreate/finishInitialize), and a later OpenBriefcase call opens
	// fresh with e.OpenModeValue, so nothing downstream relies on this
	// intermediate reopen reflecting the caller's requested mode (spec
	// §4.E finishCreate step 5).
	if err := db.ReopenBriefcase(ctx, briefcase.ReadWrite); err != nil {
		if res.err == nil {
			res.err = fmt.Errorf("manager: reopening briefcase after async apply: %w", err)
		}
	}

	return res.status, res.err
}
