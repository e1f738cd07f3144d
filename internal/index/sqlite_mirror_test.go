package index

import (
	"context"
	"testing"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteMirror_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	m, err := OpenSQLiteMirror(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer m.Close()

	e := &briefcase.Entry{
		Pathname:          "/cache/v1_0/im1/bc/FixedVersion/first/bc.bim",
		IModelId:          "im1",
		BriefcaseId:       briefcase.Standalone,
		SyncMode:          briefcase.FixedVersion,
		TargetChangeSetId: "",
		DownloadStatus:    briefcase.Complete,
	}
	require.NoError(t, m.Save(ctx, e))

	recs, err := m.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, e.Key(), recs[0].Key)
	assert.Equal(t, briefcase.Complete, recs[0].DownloadStatus)

	require.NoError(t, m.Delete(ctx, e.Key()))
	recs, err = m.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteMirror_SaveUpsertsOnRepeatKey(t *testing.T) {
	ctx := context.Background()
	m, err := OpenSQLiteMirror(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer m.Close()

	e := &briefcase.Entry{
		IModelId:          "im1",
		BriefcaseId:       briefcase.Standalone,
		SyncMode:          briefcase.FixedVersion,
		TargetChangeSetId: "",
		DownloadStatus:    briefcase.Initializing,
	}
	require.NoError(t, m.Save(ctx, e))

	e.DownloadStatus = briefcase.Complete
	require.NoError(t, m.Save(ctx, e))

	recs, err := m.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, briefcase.Complete, recs[0].DownloadStatus)
}
