package hub

import "github.com/briefcasehub/briefcase-manager/internal/briefcase"

// VersionKind selects how a target changeset id is resolved (spec §4.E
// step 1).
type VersionKind int

const (
	VersionFirst VersionKind = iota
	VersionLatest
	VersionNamed
	VersionAsOfChangeSet
)

// VersionSpec identifies the version a caller requested a briefcase at.
type VersionSpec struct {
	Kind        VersionKind
	Name        string                 // for VersionNamed
	ChangeSetId briefcase.ChangeSetId // for VersionAsOfChangeSet
}

// ChangeSetRecord is the hub's representation of one changeset.
type ChangeSetRecord struct {
	Id         briefcase.ChangeSetId
	ParentId   briefcase.ChangeSetId
	Index      int
	FileSize   int64
	IsSchema   bool
	DownloadURL string
	FileName   string
}

// ChangeSetQuery filters ChangeSets.Get (spec §6).
type ChangeSetQuery struct {
	IModelId        briefcase.IModelId
	AfterId         briefcase.ChangeSetId // exclusive
	UpToAndIncludingId briefcase.ChangeSetId // inclusive
	IncludeDownloadURL bool
}

// CheckpointRecord is a sealed full-database snapshot served by the hub to
// bootstrap briefcases (spec §6, glossary).
type CheckpointRecord struct {
	FileId            string
	DownloadURL       string
	MergedChangeSetId briefcase.ChangeSetId
	MergedIndex       int
	FileSize          int64
}

// CheckpointQuery filters Checkpoints.Get: the nearest checkpoint at or
// before BeforeOrAtIndex (spec §4.E.finishCreate step 1).
type CheckpointQuery struct {
	IModelId       briefcase.IModelId
	BeforeOrAtId   briefcase.ChangeSetId
	BeforeOrAtIndex int
}

// BriefcaseRecord is the hub's record of an acquired briefcaseId.
type BriefcaseRecord struct {
	BriefcaseId briefcase.BriefcaseId
	FileId      string
	UserId      string
}

// ChangeType mirrors nativedb.ChangeType at the hub boundary, to avoid a
// dependency from hub -> nativedb (hub is a leaf consumed by manager,
// nativedb is a sibling leaf).
type ChangeType int

const (
	ChangeTypeRegular ChangeType = iota
	ChangeTypeSchema
)

// NewChangeSetRecord is the payload ChangeSets.Create uploads (spec §4.G
// step 4).
type NewChangeSetRecord struct {
	BriefcaseId  briefcase.BriefcaseId
	Id           briefcase.ChangeSetId
	ParentId     briefcase.ChangeSetId
	SeedFileId   string
	FileSize     int64
	Description  string
	ChangeType   ChangeType
}

// CreatedChangeSetRecord is the hub's authoritative response to
// ChangeSets.Create, carrying the assigned id/index (spec §6).
type CreatedChangeSetRecord struct {
	Id    briefcase.ChangeSetId
	Index int
}

// CodeUpdateOpts controls Codes.Update's conflict handling (spec §6).
type CodeUpdateOpts struct {
	DeniedCodes     []string
	ContinueOnConflict bool
}

// ProgressFunc reports byte-level download progress (spec §4.E step 2).
type ProgressFunc func(bytesDone, bytesTotal int64)
