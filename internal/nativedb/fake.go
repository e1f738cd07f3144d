package nativedb

import (
	"context"
	"fmt"
	"sync"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// Fake is an in-memory Db used throughout this module's test suite. It
// tracks enough state to make the manager's changeset engine and push
// loop observably correct without a real storage engine, grounded on the
// teacher's pattern of hand-written fakes standing in for graph.Client in
// internal/sync's tests (e.g. engine_test.go's mock engineRunner).
type Fake struct {
	mu sync.Mutex

	open     bool
	pathname string
	mode     briefcase.OpenMode

	dbGuid      briefcase.IModelId
	projectGuid briefcase.ContextId
	briefcaseId briefcase.BriefcaseId

	parentId    briefcase.ChangeSetId
	parentIndex int

	reversedId    briefcase.ChangeSetId
	reversedIndex int
	reversed      bool

	pendingTxns bool
	pending     []briefcase.ChangeSetId

	stagedToken *CreateChangeSetToken
	nextLocalID int

	// StagedFileSize overrides the size StartCreateChangeSet reports for the
	// changeset it stages, letting push tests exercise large-upload paths
	// without writing real bytes to disk.
	StagedFileSize int64

	// ApplyErr, when non-nil, is returned by the next ApplySync/
	// DoApplyAsync call instead of succeeding, then cleared.
	ApplyErr error
	// AsyncApplied records tokens applied via the async path, for
	// assertions in tests exercising spec scenario 6.
	AsyncApplied []ChangeSetToken
}

// NewFake creates a Fake seeded at version zero for the given identity.
func NewFake(dbGuid briefcase.IModelId, projectGuid briefcase.ContextId, briefcaseId briefcase.BriefcaseId) *Fake {
	return &Fake{dbGuid: dbGuid, projectGuid: projectGuid, briefcaseId: briefcaseId}
}

// SeedAt sets the fake's parent changeset pointer directly, simulating a
// briefcase that already has history applied (used to seed "adopt from
// disk" test fixtures).
func (f *Fake) SeedAt(id briefcase.ChangeSetId, index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parentId, f.parentIndex = id, index
}

func (f *Fake) Open(_ context.Context, pathname string, mode briefcase.OpenMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open, f.pathname, f.mode = true, pathname, mode
	return nil
}

func (f *Fake) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *Fake) GetParentChangeSetId() briefcase.ChangeSetId {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parentId
}

func (f *Fake) GetParentChangeSetIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parentIndex
}

func (f *Fake) GetReversedChangeSetId() (briefcase.ChangeSetId, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reversedId, f.reversed
}

func (f *Fake) GetReversedChangeSetIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reversedIndex
}

func (f *Fake) GetBriefcaseId() briefcase.BriefcaseId {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.briefcaseId
}

func (f *Fake) GetDbGuid() briefcase.IModelId {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dbGuid
}

func (f *Fake) QueryProjectGuid() briefcase.ContextId {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projectGuid
}

func (f *Fake) HasPendingTxns() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingTxns
}

// SetPendingTxns lets tests simulate a briefcase with uncommitted local
// work, exercising spec §4.E's "never auto-delete" failure policy.
func (f *Fake) SetPendingTxns(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingTxns = v
}

func (f *Fake) ResetBriefcaseId(id briefcase.BriefcaseId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.briefcaseId = id
	return nil
}

// defaultStagedFileSize is the FileSize a Fake reports for a staged
// changeset when the test hasn't set StagedFileSize.
const defaultStagedFileSize = 4096

func (f *Fake) StartCreateChangeSet(_ context.Context) (*CreateChangeSetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextLocalID++
	size := f.StagedFileSize
	if size == 0 {
		size = defaultStagedFileSize
	}
	tok := &CreateChangeSetToken{
		Id:       briefcase.ChangeSetId(fmt.Sprintf("local-%d-%d", f.briefcaseId, f.nextLocalID)),
		ParentId: f.parentId,
		Path:     fmt.Sprintf("%s.changeset", f.pathname),
		FileSize: size,
	}
	f.stagedToken = tok
	return tok, nil
}

func (f *Fake) FinishCreateChangeSet(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stagedToken = nil
	return nil
}

func (f *Fake) AbandonCreateChangeSet(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stagedToken = nil
	return nil
}

func (f *Fake) AddPendingChangeSet(id briefcase.ChangeSetId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, id)
	return nil
}

func (f *Fake) RemovePendingChangeSet(id briefcase.ChangeSetId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending[:0]
	for _, p := range f.pending {
		if p != id {
			out = append(out, p)
		}
	}
	f.pending = out
	return nil
}

func (f *Fake) GetPendingChangeSets() ([]briefcase.ChangeSetId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]briefcase.ChangeSetId, len(f.pending))
	copy(out, f.pending)
	return out, nil
}

func (f *Fake) ExtractCodes(_ context.Context) ([]byte, error) {
	return []byte(`[]`), nil
}

func (f *Fake) ExtractCodesFromFile(_ context.Context, _ []ChangeSetToken) ([]byte, error) {
	return []byte(`[]`), nil
}

// applyLocked advances the fake's parent/reversed pointers for a single
// token, modeling the semantics each operation implies. Callers must hold
// f.mu.
func (f *Fake) applyLocked(tok ChangeSetToken) {
	if tok.Reverse {
		f.reversed = true
		f.reversedId, f.reversedIndex = tok.ParentId, tok.Index-1
		return
	}
	f.parentId, f.parentIndex = tok.Id, tok.Index
	if f.reversed {
		f.reversedId, f.reversedIndex, f.reversed = "", 0, false
	}
}

func (f *Fake) ApplySync(_ context.Context, tokens []ChangeSetToken, _ ApplyOption) (ChangeSetStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ApplyErr != nil {
		err := f.ApplyErr
		f.ApplyErr = nil
		return StatusFailure, err
	}

	for _, tok := range tokens {
		f.applyLocked(tok)
	}
	return StatusSuccess, nil
}

func (f *Fake) ReadChangeSets(_ context.Context, tokens []ChangeSetToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AsyncApplied = append(f.AsyncApplied[:0], tokens...)
	return nil
}

func (f *Fake) CloseBriefcase(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *Fake) DoApplyAsync(_ context.Context, _ ApplyOption, cb AsyncApplyCallback) {
	f.mu.Lock()
	err := f.ApplyErr
	f.ApplyErr = nil
	tokens := f.AsyncApplied
	f.mu.Unlock()

	if err != nil {
		cb(StatusFailure, err)
		return
	}

	f.mu.Lock()
	for _, tok := range tokens {
		f.applyLocked(tok)
	}
	f.mu.Unlock()

	cb(StatusSuccess, nil)
}

func (f *Fake) ReopenBriefcase(_ context.Context, mode briefcase.OpenMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open, f.mode = true, mode
	return nil
}

var _ Db = (*Fake)(nil)
