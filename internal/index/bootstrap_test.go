package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("bim"), 0o644))
}

func TestBootstrap_FixedVersionAtFirst(t *testing.T) {
	root := t.TempDir()
	layout := briefcase.NewLayout(root, briefcase.LayoutVersion{Major: 1, Minor: 0})
	pathname := layout.BriefcasePathname("im1", briefcase.FixedVersion, briefcase.Standalone, "")
	touchFile(t, pathname)

	fake := nativedb.NewFake("im1", "ctx1", briefcase.Standalone)

	idx := New()
	newDb := func() nativedb.Db { return fake }
	require.NoError(t, Bootstrap(context.Background(), idx, layout, newDb, nil))

	e, ok := idx.FindFixedVersion("im1", "")
	require.True(t, ok)
	assert.Equal(t, briefcase.Complete, e.DownloadStatus)
	assert.False(t, e.IsOpen)
	assert.False(t, fake.IsOpen())
}

func TestBootstrap_PullAndPushAtBriefcaseId(t *testing.T) {
	root := t.TempDir()
	layout := briefcase.NewLayout(root, briefcase.LayoutVersion{Major: 1, Minor: 0})
	pathname := layout.BriefcasePathname("im1", briefcase.PullAndPush, 42, "")
	touchFile(t, pathname)

	fake := nativedb.NewFake("im1", "ctx1", 42)
	fake.SeedAt("cs7", 7)

	idx := New()
	newDb := func() nativedb.Db { return fake }
	require.NoError(t, Bootstrap(context.Background(), idx, layout, newDb, nil))

	e, ok := idx.FindVariableVersion("im1", 42, briefcase.PullAndPush)
	require.True(t, ok)
	assert.Equal(t, briefcase.ChangeSetId("cs7"), e.ParentChangeSetId)
}

func TestBootstrap_DbGuidMismatchSkipped(t *testing.T) {
	root := t.TempDir()
	layout := briefcase.NewLayout(root, briefcase.LayoutVersion{Major: 1, Minor: 0})
	pathname := layout.BriefcasePathname("im1", briefcase.FixedVersion, briefcase.Standalone, "")
	touchFile(t, pathname)

	fake := nativedb.NewFake("wrong-imodel", "ctx1", briefcase.Standalone)

	idx := New()
	newDb := func() nativedb.Db { return fake }
	require.NoError(t, Bootstrap(context.Background(), idx, layout, newDb, nil))

	assert.Empty(t, idx.All())
}

func TestBootstrap_FixedVersionWrongDirNameSkipped(t *testing.T) {
	root := t.TempDir()
	layout := briefcase.NewLayout(root, briefcase.LayoutVersion{Major: 1, Minor: 0})
	pathname := layout.BriefcasePathname("im1", briefcase.FixedVersion, briefcase.Standalone, "cs5")
	touchFile(t, pathname)

	// fake reports a different current changeset than the directory name implies.
	fake := nativedb.NewFake("im1", "ctx1", briefcase.Standalone)
	fake.SeedAt("cs9", 9)

	idx := New()
	newDb := func() nativedb.Db { return fake }
	require.NoError(t, Bootstrap(context.Background(), idx, layout, newDb, nil))

	assert.Empty(t, idx.All())
}

func TestBootstrap_NoCacheDirIsNoop(t *testing.T) {
	root := t.TempDir()
	layout := briefcase.NewLayout(root, briefcase.LayoutVersion{Major: 1, Minor: 0})

	idx := New()
	newDb := func() nativedb.Db { return nativedb.NewFake("im1", "ctx1", briefcase.Standalone) }
	require.NoError(t, Bootstrap(context.Background(), idx, layout, newDb, nil))
	assert.Empty(t, idx.All())
}
