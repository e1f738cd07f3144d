package manager

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// Delete removes the briefcase at key from the index, the hub (if it holds
// a hub-issued briefcaseId), and disk (spec §4.H, §6 delete). It requires
// the entry be Complete or Error and not open.
func (m *Manager) Delete(ctx context.Context, key briefcase.Key) error {
	m.mu.Lock()
	e, found := m.idx.Lookup(key)
	if !found {
		m.mu.Unlock()
		return newErr(KindNotFound, "no entry for key", nil)
	}
	if e.IsOpen {
		m.mu.Unlock()
		return newErrWithDebug(KindPrecondition, "cannot delete an open briefcase", nil, e)
	}
	if e.DownloadStatus != briefcase.Complete && e.DownloadStatus != briefcase.Error {
		m.mu.Unlock()
		return newErrWithDebug(KindPrecondition, "cannot delete a briefcase mid-download", nil, e)
	}
	if err := m.idx.Remove(key); err != nil {
		m.mu.Unlock()
		return newErr(KindFatal, "removing entry from index", err)
	}
	m.mu.Unlock()

	return m.deleteEntryFiles(ctx, e)
}

func (m *Manager) deleteEntryFiles(ctx context.Context, e *briefcase.Entry) error {
	if e.SyncMode != briefcase.FixedVersion && e.BriefcaseId.IsValidHubId() {
		if err := m.hub.ReleaseBriefcase(ctx, e.IModelId, e.BriefcaseId); err != nil {
			m.logger.Warn("delete: releasing hub briefcase failed, continuing with local cleanup", "key", e.Key(), "err", err)
		}
	}

	dir := filepath.Dir(e.Pathname)
	if err := os.RemoveAll(dir); err != nil {
		return newErrWithDebug(KindFatal, "removing briefcase directory", err, e)
	}
	if err := briefcase.RemoveEmptyParents(filepath.Dir(dir), m.layout.VersionDir()); err != nil {
		return newErrWithDebug(KindFatal, "removing empty parent directories", err, e)
	}
	return nil
}

// PurgeCache closes and deletes every indexed briefcase across every
// iModel, then sweeps the on-disk cache for anything the index never knew
// about (spec §4.H purgeCache, §6). It is best-effort per-entry: one
// entry's failure is logged and does not stop the sweep.
func (m *Manager) PurgeCache(ctx context.Context) error {
	for _, e := range m.idx.All() {
		m.mu.Lock()
		isOpen := e.IsOpen
		var closeErr error
		if isOpen {
			closeErr = m.closeLocked(ctx, e)
		}
		m.mu.Unlock()
		if closeErr != nil {
			m.logger.Warn("purge: closing open briefcase failed, skipping", "key", e.Key(), "err", closeErr)
			continue
		}
		if err := m.Delete(ctx, e.Key()); err != nil {
			m.logger.Warn("purge: deleting indexed entry failed", "key", e.Key(), "err", err)
		}
	}

	versionDir := m.layout.VersionDir()
	iModelDirs, err := os.ReadDir(versionDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return newErr(KindFatal, "reading cache root during purge", err)
	}

	for _, ent := range iModelDirs {
		if !ent.IsDir() {
			continue
		}
		iModelId := briefcase.IModelId(ent.Name())
		iModelDir := filepath.Join(versionDir, ent.Name())
		m.releaseOrphanedBriefcases(ctx, iModelId, iModelDir)
		if err := os.RemoveAll(iModelDir); err != nil {
			m.logger.Warn("purge: removing leftover iModel directory failed", "dir", iModelDir, "err", err)
		}
	}

	return nil
}

// releaseOrphanedBriefcases walks iModelDir's bc/<syncMode>/<briefcaseId>
// tree for PullOnly/PullAndPush folders the index never knew about (e.g.
// left behind by a crash before Delete ran) and releases each one's hub
// reservation before the caller removes the directory wholesale. FixedVersion
// folders are never hub-reserved and are skipped.
func (m *Manager) releaseOrphanedBriefcases(ctx context.Context, iModelId briefcase.IModelId, iModelDir string) {
	bcDir := filepath.Join(iModelDir, "bc")
	modeDirs, err := os.ReadDir(bcDir)
	if err != nil {
		return
	}

	for _, modeEnt := range modeDirs {
		if !modeEnt.IsDir() {
			continue
		}
		mode, ok := parseSyncModeDirName(modeEnt.Name())
		if !ok || mode == briefcase.FixedVersion {
			continue
		}

		subDir := filepath.Join(bcDir, modeEnt.Name())
		briefcaseDirs, err := os.ReadDir(subDir)
		if err != nil {
			continue
		}
		for _, bEnt := range briefcaseDirs {
			if !bEnt.IsDir() {
				continue
			}
			n, err := strconv.ParseUint(bEnt.Name(), 10, 32)
			if err != nil {
				continue
			}
			briefcaseId := briefcase.BriefcaseId(n)
			if !briefcaseId.IsValidHubId() {
				continue
			}
			if err := m.hub.ReleaseBriefcase(ctx, iModelId, briefcaseId); err != nil {
				m.logger.Warn("purge: releasing orphaned hub briefcase failed, continuing with cleanup", "iModelId", iModelId, "briefcaseId", briefcaseId, "err", err)
			}
		}
	}
}

// parseSyncModeDirName parses one of the bc/ subdirectory names the layout
// package writes (mirroring index.parseSyncModeDir, which isn't exported).
func parseSyncModeDirName(name string) (briefcase.SyncMode, bool) {
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
