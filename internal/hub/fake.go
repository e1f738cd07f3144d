package hub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// Fake is an in-memory Capability double for manager tests, mirroring the
// shape of nativedb.Fake: no network, deterministic, mutex-guarded state
// a test can seed and inspect directly.
type Fake struct {
	mu sync.Mutex

	changeSets  []ChangeSetRecord
	checkpoints []CheckpointRecord

	nextBriefcaseId briefcase.BriefcaseId
	owned           map[briefcase.BriefcaseId]string // briefcaseId -> userId
	fileIds         map[briefcase.BriefcaseId]string

	codes map[briefcase.IModelId][]byte

	// Err, when set, is returned by the next call and then cleared, letting
	// tests inject a single transient failure (spec §8 scenario: push with
	// transient conflict).
	Err error

	// ConflictOnUpdateCodes, when set, makes the next UpdateCodes call
	// return ErrConflictingCodes carrying these codes as denied, then
	// clears itself, independent of Err. Targets the conflict specifically
	// at code reconciliation without the earlier calls in a push attempt
	// (ResolveChangeSetId, CreateChangeSet) also observing a failure.
	ConflictOnUpdateCodes []string
}

// NewFake creates an empty Fake hub.
func NewFake() *Fake {
	return &Fake{
		nextBriefcaseId: briefcase.BriefcaseIdMin,
		owned:           make(map[briefcase.BriefcaseId]string),
		fileIds:         make(map[briefcase.BriefcaseId]string),
		codes:           make(map[briefcase.IModelId][]byte),
	}
}

// SeedChangeSet registers a changeset a test can later list/download.
func (f *Fake) SeedChangeSet(rec ChangeSetRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeSets = append(f.changeSets, rec)
}

// SeedCheckpoint registers a checkpoint a test can later resolve/download.
func (f *Fake) SeedCheckpoint(rec CheckpointRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints = append(f.checkpoints, rec)
}

func (f *Fake) takeErr() error {
	err := f.Err
	f.Err = nil
	return err
}

func (f *Fake) ResolveChangeSetId(ctx context.Context, iModelId briefcase.IModelId, v VersionSpec) (briefcase.ChangeSetId, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return "", 0, err
	}

	if v.Kind == VersionFirst || len(f.changeSets) == 0 {
		return "", 0, nil
	}

	switch v.Kind {
	case VersionLatest:
		last := f.changeSets[len(f.changeSets)-1]
		return last.Id, last.Index, nil
	case VersionAsOfChangeSet:
		for _, cs := range f.changeSets {
			if cs.Id == v.ChangeSetId {
				return cs.Id, cs.Index, nil
			}
		}
		return "", 0, &Error{StatusCode: 404, Message: "changeset not found", Err: ErrVersionNotFound}
	default:
		return "", 0, &Error{StatusCode: 404, Message: "named version not found", Err: ErrVersionNotFound}
	}
}

func (f *Fake) ListChangeSets(ctx context.Context, q ChangeSetQuery) ([]ChangeSetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}

	afterIndex := -1
	for _, cs := range f.changeSets {
		if cs.Id == q.AfterId {
			afterIndex = cs.Index
			break
		}
	}

	var out []ChangeSetRecord
	for _, cs := range f.changeSets {
		if cs.Index <= afterIndex {
			continue
		}
		out = append(out, cs)
		if q.UpToAndIncludingId != "" && cs.Id == q.UpToAndIncludingId {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *Fake) DownloadChangeSets(ctx context.Context, recs []ChangeSetRecord, dir string) ([]string, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	paths := make([]string, len(recs))
	for i, rec := range recs {
		dest := filepath.Join(dir, rec.FileName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("hub fake: mkdir: %w", err)
		}
		if err := os.WriteFile(dest, []byte("changeset:"+string(rec.Id)), 0o644); err != nil {
			return nil, fmt.Errorf("hub fake: write changeset: %w", err)
		}
		paths[i] = dest
	}
	return paths, nil
}

func (f *Fake) CreateChangeSet(ctx context.Context, iModelId briefcase.IModelId, rec NewChangeSetRecord, filePath string) (CreatedChangeSetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return CreatedChangeSetRecord{}, err
	}

	for _, cs := range f.changeSets {
		if cs.Id == rec.Id {
			return CreatedChangeSetRecord{}, &Error{StatusCode: 409, Message: "changeset exists", Err: ErrChangeSetAlreadyExists}
		}
	}

	index := 1
	if len(f.changeSets) > 0 {
		index = f.changeSets[len(f.changeSets)-1].Index + 1
	}

	f.changeSets = append(f.changeSets, ChangeSetRecord{
		Id:       rec.Id,
		ParentId: rec.ParentId,
		Index:    index,
		FileSize: rec.FileSize,
		IsSchema: rec.ChangeType == ChangeTypeSchema,
		FileName: string(rec.Id) + ".changeset",
	})

	return CreatedChangeSetRecord{Id: rec.Id, Index: index}, nil
}

func (f *Fake) NearestCheckpoint(ctx context.Context, q CheckpointQuery) (CheckpointRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return CheckpointRecord{}, err
	}

	var best CheckpointRecord
	found := false
	for _, cp := range f.checkpoints {
		if cp.MergedIndex <= q.BeforeOrAtIndex && (!found || cp.MergedIndex > best.MergedIndex) {
			best = cp
			found = true
		}
	}
	if !found {
		return CheckpointRecord{}, &Error{StatusCode: 404, Message: "no checkpoint", Err: ErrVersionNotFound}
	}
	return best, nil
}

func (f *Fake) DownloadCheckpoint(ctx context.Context, rec CheckpointRecord, path string, progress ProgressFunc) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("hub fake: mkdir: %w", err)
	}
	if progress != nil {
		progress(rec.FileSize, rec.FileSize)
	}
	return os.WriteFile(path, []byte("checkpoint:"+rec.FileId), 0o644)
}

func (f *Fake) BriefcasesForUser(ctx context.Context, iModelId briefcase.IModelId) ([]briefcase.BriefcaseId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var out []briefcase.BriefcaseId
	for id := range f.owned {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *Fake) AcquireBriefcase(ctx context.Context, iModelId briefcase.IModelId) (BriefcaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return BriefcaseRecord{}, err
	}

	id := f.nextBriefcaseId
	f.nextBriefcaseId++
	fileId := fmt.Sprintf("file-%d", id)
	f.owned[id] = "fake-user"
	f.fileIds[id] = fileId

	return BriefcaseRecord{BriefcaseId: id, FileId: fileId, UserId: "fake-user"}, nil
}

func (f *Fake) BriefcaseFileId(ctx context.Context, iModelId briefcase.IModelId, id briefcase.BriefcaseId) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return "", err
	}
	fileId, ok := f.fileIds[id]
	if !ok {
		return "", &Error{StatusCode: 404, Message: "briefcase not found", Err: ErrBriefcaseNotFound}
	}
	return fileId, nil
}

func (f *Fake) ReleaseBriefcase(ctx context.Context, iModelId briefcase.IModelId, id briefcase.BriefcaseId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	delete(f.owned, id)
	delete(f.fileIds, id)
	return nil
}

func (f *Fake) UpdateCodes(ctx context.Context, iModelId briefcase.IModelId, codesJSON []byte, opts CodeUpdateOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	if denied := f.ConflictOnUpdateCodes; len(denied) > 0 {
		f.ConflictOnUpdateCodes = nil
		return &Error{StatusCode: 409, Message: "conflicting codes", Err: ErrConflictingCodes, DeniedCodes: denied}
	}
	if len(opts.DeniedCodes) > 0 && !opts.ContinueOnConflict {
		return &Error{StatusCode: 409, Message: "conflicting codes", Err: ErrConflictingCodes, DeniedCodes: opts.DeniedCodes}
	}
	f.codes[iModelId] = codesJSON
	return nil
}

func (f *Fake) DeleteAllCodes(ctx context.Context, iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	delete(f.codes, iModelId)
	return nil
}

func (f *Fake) DeleteAllLocks(ctx context.Context, iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) error {
	return f.takeErr()
}

func (f *Fake) CreateIModel(ctx context.Context, contextId briefcase.ContextId, name string) (briefcase.IModelId, error) {
	if err := f.takeErr(); err != nil {
		return "", err
	}
	return briefcase.IModelId(fmt.Sprintf("imodel-%s-%s", contextId, name)), nil
}

var _ Capability = (*Fake)(nil)
