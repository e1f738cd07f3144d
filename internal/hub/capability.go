package hub

import (
	"context"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// Capability is the single collaborator interface internal/manager
// depends on, collapsing the hub client's surface into the capability set
// named in spec §9: "model these as a single capability set ... supplied
// as a configured collaborator; choose the concrete implementation at
// process init." *Client (HTTP) and *Fake (tests) both implement it.
type Capability interface {
	// ResolveChangeSetId resolves a VersionSpec to a concrete changeset id
	// and index (spec §4.E step 1). VersionFirst resolves to ("", 0)
	// without a hub call (spec §8 boundary behavior).
	ResolveChangeSetId(ctx context.Context, iModelId briefcase.IModelId, v VersionSpec) (briefcase.ChangeSetId, int, error)

	// ListChangeSets lists changesets matching q, ordered by index
	// ascending (spec §6 changeSets.get).
	ListChangeSets(ctx context.Context, q ChangeSetQuery) ([]ChangeSetRecord, error)
	// DownloadChangeSets fetches the files named by recs into dir,
	// returning local paths in the same order (spec §6 changeSets.download).
	DownloadChangeSets(ctx context.Context, recs []ChangeSetRecord, dir string) ([]string, error)
	// CreateChangeSet uploads a locally staged changeset (spec §6
	// changeSets.create, §4.G step 5).
	CreateChangeSet(ctx context.Context, iModelId briefcase.IModelId, rec NewChangeSetRecord, filePath string) (CreatedChangeSetRecord, error)

	// NearestCheckpoint returns the nearest preceding checkpoint to
	// beforeOrAtIndex, or ErrVersionNotFound if none exists (spec §4.E.
	// finishCreate step 1, §6 checkpoints.get).
	NearestCheckpoint(ctx context.Context, q CheckpointQuery) (CheckpointRecord, error)
	// DownloadCheckpoint fetches rec to path with progress and cooperative
	// cancellation (spec §6 checkpoints.download, §5 cancellation).
	DownloadCheckpoint(ctx context.Context, rec CheckpointRecord, path string, progress ProgressFunc) error

	// BriefcasesForUser lists briefcaseIds the current user already owns
	// for iModelId (spec §4.E PullAndPush step 1).
	BriefcasesForUser(ctx context.Context, iModelId briefcase.IModelId) ([]briefcase.BriefcaseId, error)
	// AcquireBriefcase acquires a fresh briefcaseId from the hub (spec §4.E
	// PullAndPush step 4, §4.D invariant 4).
	AcquireBriefcase(ctx context.Context, iModelId briefcase.IModelId) (BriefcaseRecord, error)
	// BriefcaseFileId resolves the hub-side fileId for an already-acquired
	// briefcaseId (spec §4.E.finishInitialize step 2).
	BriefcaseFileId(ctx context.Context, iModelId briefcase.IModelId, id briefcase.BriefcaseId) (string, error)
	// ReleaseBriefcase relinquishes a hub-issued briefcaseId (spec §4.H).
	ReleaseBriefcase(ctx context.Context, iModelId briefcase.IModelId, id briefcase.BriefcaseId) error

	// UpdateCodes reconciles codes with the hub, returning a
	// ConflictingCodes-classified error on conflict (spec §6 codes.update,
	// §4.G step 6).
	UpdateCodes(ctx context.Context, iModelId briefcase.IModelId, codesJSON []byte, opts CodeUpdateOpts) error
	// DeleteAllCodes best-effort relinquishes all codes for a briefcaseId
	// (spec §6 codes.deleteAll, §4.G step 6).
	DeleteAllCodes(ctx context.Context, iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) error
	// DeleteAllLocks best-effort relinquishes all locks for a briefcaseId
	// (spec §6 locks.deleteAll, §4.G step 6).
	DeleteAllLocks(ctx context.Context, iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) error

	// CreateIModel provisions a brand-new iModel (spec §6 iModels.create).
	CreateIModel(ctx context.Context, contextId briefcase.ContextId, name string) (briefcase.IModelId, error)
}
