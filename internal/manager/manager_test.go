package manager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/config"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/index"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

// testHarness wires a Manager against an in-memory hub.Fake and a factory of
// trackingFake handles, used by every test in this package.
type testHarness struct {
	mgr    *Manager
	hub    *hub.Fake
	layout *briefcase.Layout

	mu  sync.Mutex
	dbs map[string]*nativedb.Fake // pathname -> fake, shared across Open calls on the same path
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	root := t.TempDir()
	layout := briefcase.NewLayout(root, briefcase.LayoutVersion{Major: 1, Minor: 0})
	hubFake := hub.NewFake()

	h := &testHarness{hub: hubFake, layout: layout, dbs: make(map[string]*nativedb.Fake)}

	cfg := config.DefaultConfig()
	h.mgr = New(index.New(), layout, hubFake, func() nativedb.Db { return &trackingFake{h: h} }, nil, cfg, nil)
	return h
}

// decodeIModelId recovers the iModelId path component the layout encoded
// into pathname, the way a real native engine would recover it by reading
// the file's own header instead of being told out of band.
func (h *testHarness) decodeIModelId(pathname string) briefcase.IModelId {
	rel, err := filepath.Rel(h.layout.VersionDir(), pathname)
	if err != nil {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 0 {
		return ""
	}
	return briefcase.IModelId(parts[0])
}

// trackingFake wraps nativedb.Fake, registering itself into the harness's
// by-pathname map on first Open (and reusing whatever fake a test may have
// pre-seeded at that path for adopt-from-disk fixtures) so a test can
// inspect the state a background goroutine left behind.
type trackingFake struct {
	*nativedb.Fake
	h *testHarness
}

func (tf *trackingFake) Open(ctx context.Context, pathname string, mode briefcase.OpenMode) error {
	if tf.Fake == nil {
		tf.h.mu.Lock()
		existing, ok := tf.h.dbs[pathname]
		if !ok {
			existing = nativedb.NewFake(tf.h.decodeIModelId(pathname), "", briefcase.Standalone)
			tf.h.dbs[pathname] = existing
		}
		tf.h.mu.Unlock()
		tf.Fake = existing
	}
	return tf.Fake.Open(ctx, pathname, mode)
}

// seedIModel populates the fake hub with a checkpoint at version zero and a
// chain of n changesets after it, for the given iModel.
func seedIModel(h *hub.Fake, iModelId briefcase.IModelId, n int) []briefcase.ChangeSetId {
	h.SeedCheckpoint(hub.CheckpointRecord{FileId: "cp-" + string(iModelId), MergedChangeSetId: "", MergedIndex: 0})

	var parent briefcase.ChangeSetId
	var ids []briefcase.ChangeSetId
	for i := 1; i <= n; i++ {
		id := briefcase.ChangeSetId(string(rune('a'+i-1)) + "-cs")
		h.SeedChangeSet(hub.ChangeSetRecord{Id: id, ParentId: parent, Index: i, FileSize: 1024, FileName: string(id) + ".changeset"})
		ids = append(ids, id)
		parent = id
	}
	return ids
}

func TestRequestDownload_FirstDownloadFixedVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := seedIModel(h.hub, "im1", 2)

	props, future, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.FixedVersion, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: ids[1]})
	require.NoError(t, err)
	assert.Equal(t, briefcase.NotStarted, props.DownloadStatus)

	final, err := future.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, briefcase.Complete, final.DownloadStatus)
	assert.Equal(t, ids[1], final.ParentChangeSetId)
	require.NoError(t, h.mgr.Wait())
}

func TestRequestDownload_ReuseReturnsSameFuture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := seedIModel(h.hub, "im1", 1)

	_, future1, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.FixedVersion, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: ids[0]})
	require.NoError(t, err)
	_, err = future1.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, h.mgr.Wait())

	props2, future2, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.FixedVersion, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: ids[0]})
	require.NoError(t, err)
	assert.Equal(t, briefcase.Complete, props2.DownloadStatus)
	assert.Same(t, future1, future2, "a reused entry must hand back its own tracked future, not a detached snapshot")

	final, err := future2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, props2, final)
}

func TestRequestDownload_AdoptFromDisk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := seedIModel(h.hub, "im1", 1)

	pathname := h.layout.BriefcasePathname("im1", briefcase.FixedVersion, briefcase.Standalone, ids[0])
	require.NoError(t, h.layout.EnsureDir(h.layout.FixedVersionDir("im1", ids[0])))
	require.NoError(t, os.WriteFile(pathname, []byte("orphan"), 0o644))

	orphan := nativedb.NewFake("im1", "ctx1", briefcase.Standalone)
	orphan.SeedAt(ids[0], 1)
	h.mu.Lock()
	h.dbs[pathname] = orphan
	h.mu.Unlock()
	require.NoError(t, orphan.Open(ctx, pathname, briefcase.Readonly))
	require.NoError(t, orphan.Close(ctx))

	_, future, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.FixedVersion, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: ids[0]})
	require.NoError(t, err)
	final, err := future.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, briefcase.Complete, final.DownloadStatus)
	assert.Equal(t, ids[0], final.ParentChangeSetId)

	got, found := h.mgr.FindBriefcaseByKey(briefcase.MakeKey("im1", briefcase.Standalone, ids[0], briefcase.FixedVersion))
	require.True(t, found)
	assert.Equal(t, ids[0], got.ParentChangeSetId)
}

func TestRequestDownload_ConcurrentPullAndPushAcquiresOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedIModel(h.hub, "im1", 0)

	const n = 8
	var wg sync.WaitGroup
	briefcaseIds := make([]briefcase.BriefcaseId, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, future, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.PullAndPush, hub.VersionSpec{Kind: hub.VersionLatest})
			if err != nil {
				errs[i] = err
				return
			}
			final, waitErr := future.Wait(ctx)
			if waitErr != nil {
				errs[i] = waitErr
				return
			}
			briefcaseIds[i] = final.BriefcaseId
		}(i)
	}
	wg.Wait()
	require.NoError(t, h.mgr.Wait())

	for i, err := range errs {
		require.NoErrorf(t, err, "request %d", i)
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, briefcaseIds[0], briefcaseIds[i], "every concurrent PullAndPush request for the same iModel must land on the same hub briefcaseId")
	}

	owned, err := h.hub.BriefcasesForUser(ctx, "im1")
	require.NoError(t, err)
	assert.Len(t, owned, 1, "acquireMu must prevent more than one hub briefcaseId from being acquired")
}
