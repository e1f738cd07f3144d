package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

func TestComputePlan(t *testing.T) {
	tests := []struct {
		name                          string
		parentIndex, reversedIndex    int
		reversedSet                   bool
		targetIndex                   int
		want                          []planOp
	}{
		{
			name:        "already at target is a no-op",
			parentIndex: 5, targetIndex: 5,
			want: nil,
		},
		{
			name:        "target behind parent is a pure reverse",
			parentIndex: 5, targetIndex: 2,
			want: []planOp{{kind: opReverse, fromIndex: 2, toIndex: 5}},
		},
		{
			name:        "target behind current reversed position is a pure reverse",
			parentIndex: 5, reversedIndex: 3, reversedSet: true, targetIndex: 1,
			want: []planOp{{kind: opReverse, fromIndex: 1, toIndex: 3}},
		},
		{
			name:        "target above reversed position but at or below parent is a pure reinstate",
			parentIndex: 5, reversedIndex: 2, reversedSet: true, targetIndex: 5,
			want: []planOp{{kind: opReinstate, fromIndex: 2, toIndex: 5}},
		},
		{
			name:        "target above parent while not reversed is a pure merge",
			parentIndex: 5, targetIndex: 9,
			want: []planOp{{kind: opMerge, fromIndex: 5, toIndex: 9}},
		},
		{
			name:        "target above parent while reversed reinstates to parent then merges",
			parentIndex: 5, reversedIndex: 2, reversedSet: true, targetIndex: 9,
			want: []planOp{
				{kind: opReinstate, fromIndex: 2, toIndex: 5},
				{kind: opMerge, fromIndex: 5, toIndex: 9},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computePlan(tt.parentIndex, tt.reversedIndex, tt.reversedSet, tt.targetIndex)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNeedsAsync(t *testing.T) {
	regular := []nativedb.ChangeSetToken{{ChangeType: nativedb.Regular}}
	schema := []nativedb.ChangeSetToken{{ChangeType: nativedb.Schema}}

	assert.False(t, needsAsync(regular, 1024, 1048576))
	assert.True(t, needsAsync(regular, 2*1048576, 1048576))
	assert.True(t, needsAsync(schema, 1024, 1048576))
}

func TestChangeSetEngine_LargeChangeSetTriggersAsyncPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.hub.SeedCheckpoint(hub.CheckpointRecord{FileId: "cp-im1", MergedChangeSetId: "", MergedIndex: 0})
	h.hub.SeedChangeSet(hub.ChangeSetRecord{Id: "big-cs", Index: 1, FileSize: 2 * 1048576, FileName: "big-cs.changeset"})

	_, future, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.FixedVersion, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: "big-cs"})
	require.NoError(t, err)
	final, err := future.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, briefcase.Complete, final.DownloadStatus)

	pathname := h.layout.BriefcasePathname("im1", briefcase.FixedVersion, briefcase.Standalone, "big-cs")
	h.mu.Lock()
	fake := h.dbs[pathname]
	h.mu.Unlock()
	require.NotNil(t, fake)
	assert.NotEmpty(t, fake.AsyncApplied, "a changeset over the threshold must go through the async close/apply/reopen path")
	assert.False(t, fake.IsOpen(), "finishCreate closes the handle once the entry reaches Complete")
}

func TestChangeSetEngine_SmallChangeSetUsesSyncPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := seedIModel(h.hub, "im1", 1)

	_, future, _, err := h.mgr.RequestDownload(ctx, "ctx1", "im1", briefcase.FixedVersion, hub.VersionSpec{Kind: hub.VersionAsOfChangeSet, ChangeSetId: ids[0]})
	require.NoError(t, err)
	final, err := future.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, briefcase.Complete, final.DownloadStatus)

	pathname := h.layout.BriefcasePathname("im1", briefcase.FixedVersion, briefcase.Standalone, ids[0])
	h.mu.Lock()
	fake := h.dbs[pathname]
	h.mu.Unlock()
	require.NotNil(t, fake)
	assert.Empty(t, fake.AsyncApplied, "a changeset under the threshold must apply synchronously")
}
