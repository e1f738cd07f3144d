package briefcase

import (
	"fmt"
	"os"
	"path/filepath"
)

// LayoutVersion is the cache directory layout's major/minor revision
// (spec §4.A). A non-matching major version causes the whole versioned
// subdirectory to be wiped on startup; minor bumps may migrate in place.
type LayoutVersion struct {
	Major int
	Minor int
}

// String renders the versioned subdirectory name, e.g. "v1_0".
func (v LayoutVersion) String() string {
	return fmt.Sprintf("v%d_%d", v.Major, v.Minor)
}

// Layout resolves deterministic on-disk paths under a cache root for one
// layout version (spec §4.A).
type Layout struct {
	root    string
	version LayoutVersion
}

// NewLayout creates a Layout rooted at cacheRoot for the given version.
func NewLayout(cacheRoot string, version LayoutVersion) *Layout {
	return &Layout{root: cacheRoot, version: version}
}

// VersionDir is "<cacheRoot>/v<major>_<minor>".
func (l *Layout) VersionDir() string {
	return filepath.Join(l.root, l.version.String())
}

// IModelDir is "<versionDir>/<iModelId>".
func (l *Layout) IModelDir(iModelId IModelId) string {
	return filepath.Join(l.VersionDir(), string(iModelId))
}

// ChangeSetPoolDir is the shared, append-only changeset blob pool for one
// iModel: "<iModelId>/csets/".
func (l *Layout) ChangeSetPoolDir(iModelId IModelId) string {
	return filepath.Join(l.IModelDir(iModelId), "csets")
}

// changeSetPathComponent replaces the empty changeSetId with the literal
// "first" per spec §4.A.
func changeSetPathComponent(id ChangeSetId) string {
	if id.IsVersionZero() {
		return "first"
	}
	return string(id)
}

// FixedVersionDir is "<iModelId>/bc/FixedVersion/<changeSetIdOrFirst>/".
func (l *Layout) FixedVersionDir(iModelId IModelId, targetChangeSetId ChangeSetId) string {
	return filepath.Join(l.IModelDir(iModelId), "bc", "FixedVersion", changeSetPathComponent(targetChangeSetId))
}

// VariableVersionDir is "<iModelId>/bc/<syncMode>/<briefcaseId>/" for
// PullOnly and PullAndPush.
func (l *Layout) VariableVersionDir(iModelId IModelId, mode SyncMode, briefcaseId BriefcaseId) string {
	return filepath.Join(l.IModelDir(iModelId), "bc", mode.String(), briefcaseId.String())
}

// BriefcaseDir resolves the directory for the given identity tuple,
// dispatching on sync mode the way spec §4.A's path table does.
func (l *Layout) BriefcaseDir(iModelId IModelId, mode SyncMode, briefcaseId BriefcaseId, targetChangeSetId ChangeSetId) string {
	if mode == FixedVersion {
		return l.FixedVersionDir(iModelId, targetChangeSetId)
	}
	return l.VariableVersionDir(iModelId, mode, briefcaseId)
}

// BriefcasePathname is "<briefcaseDir>/bc.bim".
func (l *Layout) BriefcasePathname(iModelId IModelId, mode SyncMode, briefcaseId BriefcaseId, targetChangeSetId ChangeSetId) string {
	return filepath.Join(l.BriefcaseDir(iModelId, mode, briefcaseId, targetChangeSetId), "bc.bim")
}

const dirPerm = 0o755

// EnsureDir creates dir and all missing parents idempotently (spec §4.A:
// "Directory creation is idempotent and recursive").
func (l *Layout) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("briefcase: ensure dir %s: %w", dir, err)
	}
	return nil
}

// ReconcileVersionDirs deletes any sibling versioned directory under root
// whose major version doesn't match l's, and ensures l's own version
// directory exists (spec §4.A: "if a non-matching major-version
// subdirectory exists it is deleted wholesale; minor-version bumps may
// migrate in place").
func (l *Layout) ReconcileVersionDirs() error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return l.EnsureDir(l.VersionDir())
		}
		return fmt.Errorf("briefcase: reading cache root %s: %w", l.root, err)
	}

	wantMajorPrefix := fmt.Sprintf("v%d_", l.version.Major)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !isVersionDirName(name) {
			continue
		}
		if name == l.version.String() {
			continue // in-place minor migration target, never deleted.
		}
		if len(name) >= len(wantMajorPrefix) && name[:len(wantMajorPrefix)] == wantMajorPrefix {
			continue // same major, different minor: left alone, migrated in place.
		}
		if err := os.RemoveAll(filepath.Join(l.root, name)); err != nil {
			return fmt.Errorf("briefcase: removing stale layout dir %s: %w", name, err)
		}
	}

	return l.EnsureDir(l.VersionDir())
}

func isVersionDirName(name string) bool {
	if len(name) < 2 || name[0] != 'v' {
		return false
	}
	for _, r := range name[1:] {
		if r == '_' || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

// RemoveEmptyParents recursively removes dir and its empty ancestors, up
// to but not including stopAt, matching spec §4.H's "delete briefcase's
// folder, then recursively delete empty parent directories" behavior.
func RemoveEmptyParents(dir, stopAt string) error {
	for dir != stopAt && dir != "." && dir != string(filepath.Separator) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				dir = filepath.Dir(dir)
				continue
			}
			return fmt.Errorf("briefcase: reading dir %s: %w", dir, err)
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("briefcase: removing empty dir %s: %w", dir, err)
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
