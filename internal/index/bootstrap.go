package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

// DbFactory constructs a fresh nativedb.Db handle, mirroring the teacher's
// injectable-factory idiom (Orchestrator.engineFactory) so bootstrap can be
// tested against nativedb.Fake without touching a real engine.
type DbFactory func() nativedb.Db

// Bootstrap rebuilds idx by scanning layout's cache directory tree without
// a hub (spec §4.I). It is run once on first use when no hub is available.
// Validation failures close and skip the offending briefcase rather than
// deleting it, per spec §4.I.
func Bootstrap(ctx context.Context, idx *Index, layout *briefcase.Layout, newDb DbFactory, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	versionDir := layout.VersionDir()
	iModelDirs, err := os.ReadDir(versionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("index: bootstrap: reading version dir: %w", err)
	}

	for _, iModelEnt := range iModelDirs {
		if !iModelEnt.IsDir() {
			continue
		}
		iModelId := briefcase.IModelId(iModelEnt.Name())
		if err := bootstrapIModel(ctx, idx, layout, iModelId, newDb, logger); err != nil {
			return err
		}
	}

	return nil
}

func bootstrapIModel(ctx context.Context, idx *Index, layout *briefcase.Layout, iModelId briefcase.IModelId, newDb DbFactory, logger *slog.Logger) error {
	bcDir := filepath.Join(layout.IModelDir(iModelId), "bc")
	modeDirs, err := os.ReadDir(bcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("index: bootstrap: reading %s: %w", bcDir, err)
	}

	for _, modeEnt := range modeDirs {
		if !modeEnt.IsDir() {
			continue
		}
		mode, ok := parseSyncModeDir(modeEnt.Name())
		if !ok {
			logger.Warn("bootstrap: unrecognized sync-mode directory, skipping", "dir", modeEnt.Name())
			continue
		}

		subDir := filepath.Join(bcDir, modeEnt.Name())
		briefcaseDirs, err := os.ReadDir(subDir)
		if err != nil {
			return fmt.Errorf("index: bootstrap: reading %s: %w", subDir, err)
		}

		for _, bEnt := range briefcaseDirs {
			if !bEnt.IsDir() {
				continue
			}
			pathname := filepath.Join(subDir, bEnt.Name(), "bc.bim")
			bootstrapOne(ctx, idx, iModelId, mode, bEnt.Name(), pathname, newDb, logger)
		}
	}

	return nil
}

func parseSyncModeDir(name string) (briefcase.SyncMode, bool) {
	switch name {
	case "FixedVersion":
		return briefcase.FixedVersion, true
	case "PullOnly":
		return briefcase.PullOnly, true
	case "PullAndPush":
		return briefcase.PullAndPush, true
	default:
		return 0, false
	}
}

func bootstrapOne(ctx context.Context, idx *Index, iModelId briefcase.IModelId, mode briefcase.SyncMode, dirName, pathname string, newDb DbFactory, logger *slog.Logger) {
	if _, err := os.Stat(pathname); err != nil {
		return
	}

	openMode := briefcase.Readonly
	if mode != briefcase.FixedVersion {
		openMode = briefcase.ReadWrite
	}

	db := newDb()
	if err := db.Open(ctx, pathname, openMode); err != nil {
		logger.Warn("bootstrap: failed to open briefcase, skipping", "path", pathname, "err", err)
		return
	}
	defer db.Close(ctx)

	dbGuid := db.GetDbGuid()
	if dbGuid != iModelId {
		logger.Warn("bootstrap: dbGuid mismatch, skipping", "path", pathname, "dbGuid", dbGuid, "dir", iModelId)
		return
	}

	briefcaseId := db.GetBriefcaseId()
	parentId := db.GetParentChangeSetId()
	parentIndex := db.GetParentChangeSetIndex()
	reversedId, reversed := db.GetReversedChangeSetId()
	reversedIndex := db.GetReversedChangeSetIndex()

	currentId := parentId
	if reversed {
		currentId = reversedId
	}

	if mode == briefcase.FixedVersion {
		if !changeSetDirMatches(dirName, currentId) {
			logger.Warn("bootstrap: FixedVersion dir name mismatch, skipping", "path", pathname, "dir", dirName, "currentId", currentId)
			return
		}
		if !briefcaseId.IsStandalone() {
			logger.Warn("bootstrap: FixedVersion briefcaseId not Standalone, skipping", "path", pathname, "briefcaseId", briefcaseId)
			return
		}
	} else {
		if dirName != briefcaseId.String() {
			logger.Warn("bootstrap: briefcaseId dir name mismatch, skipping", "path", pathname, "dir", dirName, "briefcaseId", briefcaseId)
			return
		}
	}
	if briefcaseId == briefcase.DeprecatedStandalone {
		logger.Warn("bootstrap: briefcase uses the deprecated standalone id", "path", pathname)
	}

	e := &briefcase.Entry{
		Pathname:               pathname,
		IModelId:               iModelId,
		ContextId:              db.QueryProjectGuid(),
		BriefcaseId:            briefcaseId,
		SyncMode:               mode,
		ParentChangeSetId:      parentId,
		ParentChangeSetIndex:   parentIndex,
		ReversedChangeSetId:    reversedId,
		ReversedChangeSetIndex: reversedIndex,
		ReversedSet:            reversed,
		TargetChangeSetId:      currentId,
		TargetChangeSetIndex:   parentIndex,
		IsOpen:                 false,
		DownloadStatus:         briefcase.Complete,
		OpenModeValue:          briefcase.DefaultOpenMode(mode),
		Future:                 briefcase.NewDownloadFuture(),
	}
	if reversed {
		e.TargetChangeSetIndex = reversedIndex
	}
	e.Future.Resolve(briefcase.PropsFromEntry(e), nil)

	if err := idx.Insert(e); err != nil {
		logger.Warn("bootstrap: duplicate entry, skipping", "path", pathname, "err", err)
	}
}

// changeSetDirMatches implements spec §4.I's "'first' meaning empty" rule
// for a FixedVersion directory name.
func changeSetDirMatches(dirName string, currentId briefcase.ChangeSetId) bool {
	if currentId.IsVersionZero() {
		return dirName == "first"
	}
	return dirName == string(currentId)
}
