package briefcase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_BriefcasePathname(t *testing.T) {
	l := NewLayout("/cache", LayoutVersion{Major: 1, Minor: 0})

	tests := []struct {
		name        string
		mode        SyncMode
		briefcaseId BriefcaseId
		targetId    ChangeSetId
		want        string
	}{
		{
			name:     "fixed version uses target changeset id",
			mode:     FixedVersion,
			targetId: "cs3",
			want:     "/cache/v1_0/im1/bc/FixedVersion/cs3/bc.bim",
		},
		{
			name:     "fixed version at version zero uses literal first",
			mode:     FixedVersion,
			targetId: "",
			want:     "/cache/v1_0/im1/bc/FixedVersion/first/bc.bim",
		},
		{
			name:        "pull only uses briefcase id",
			mode:        PullOnly,
			briefcaseId: 9,
			want:        "/cache/v1_0/im1/bc/PullOnly/9/bc.bim",
		},
		{
			name:        "pull and push uses briefcase id",
			mode:        PullAndPush,
			briefcaseId: 9,
			want:        "/cache/v1_0/im1/bc/PullAndPush/9/bc.bim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.BriefcasePathname("im1", tt.mode, tt.briefcaseId, tt.targetId)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayout_ChangeSetPoolDir_SharedAcrossSyncModes(t *testing.T) {
	l := NewLayout("/cache", LayoutVersion{Major: 1, Minor: 0})
	assert.Equal(t, "/cache/v1_0/im1/csets", l.ChangeSetPoolDir("im1"))
}

func TestLayout_ReconcileVersionDirs_DeletesNonMatchingMajor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "v0_3"), dirPerm))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "v1_2"), dirPerm))

	l := NewLayout(root, LayoutVersion{Major: 1, Minor: 0})
	require.NoError(t, l.ReconcileVersionDirs())

	_, err := os.Stat(filepath.Join(root, "v0_3"))
	assert.True(t, os.IsNotExist(err), "non-matching major version dir must be removed")

	_, err = os.Stat(filepath.Join(root, "v1_2"))
	assert.NoError(t, err, "same-major different-minor dir is migrated in place, not deleted")

	_, err = os.Stat(filepath.Join(root, "v1_0"))
	assert.NoError(t, err, "current version dir must be created")
}

func TestLayout_EnsureDir_Idempotent(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root, LayoutVersion{Major: 1, Minor: 0})

	dir := l.FixedVersionDir("im1", "cs1")
	require.NoError(t, l.EnsureDir(dir))
	require.NoError(t, l.EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRemoveEmptyParents(t *testing.T) {
	root := t.TempDir()
	leaf := filepath.Join(root, "im1", "bc", "PullOnly", "7")
	require.NoError(t, os.MkdirAll(leaf, dirPerm))

	require.NoError(t, RemoveEmptyParents(leaf, root))

	_, err := os.Stat(filepath.Join(root, "im1"))
	assert.True(t, os.IsNotExist(err), "all empty ancestors up to root must be removed")
	_, err = os.Stat(root)
	assert.NoError(t, err, "stopAt itself must survive")
}

func TestRemoveEmptyParents_StopsAtNonEmptyDir(t *testing.T) {
	root := t.TempDir()
	leaf := filepath.Join(root, "im1", "bc", "PullAndPush", "7")
	require.NoError(t, os.MkdirAll(leaf, dirPerm))

	sibling := filepath.Join(root, "im1", "bc", "PullOnly", "3")
	require.NoError(t, os.MkdirAll(sibling, dirPerm))

	require.NoError(t, RemoveEmptyParents(leaf, root))

	_, err := os.Stat(filepath.Join(root, "im1", "bc"))
	assert.NoError(t, err, "bc dir has a non-empty sibling branch and must survive")
	_, err = os.Stat(filepath.Join(root, "im1", "bc", "PullAndPush"))
	assert.True(t, os.IsNotExist(err))
}
