package index

import (
	"testing"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEntry(iModelId briefcase.IModelId, target briefcase.ChangeSetId) *briefcase.Entry {
	return &briefcase.Entry{
		IModelId:          iModelId,
		BriefcaseId:       briefcase.Standalone,
		SyncMode:          briefcase.FixedVersion,
		TargetChangeSetId: target,
	}
}

func pullAndPushEntry(iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) *briefcase.Entry {
	return &briefcase.Entry{
		IModelId:    iModelId,
		BriefcaseId: briefcaseId,
		SyncMode:    briefcase.PullAndPush,
	}
}

func TestInsertAndLookup(t *testing.T) {
	idx := New()
	e := fixedEntry("im1", "cs1")
	require.NoError(t, idx.Insert(e))

	got, ok := idx.Lookup(e.Key())
	require.True(t, ok)
	assert.Same(t, e, got)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	idx := New()
	e := fixedEntry("im1", "cs1")
	require.NoError(t, idx.Insert(e))

	err := idx.Insert(fixedEntry("im1", "cs1"))
	require.Error(t, err)
}

func TestRemoveAbsentFails(t *testing.T) {
	idx := New()
	err := idx.Remove(briefcase.Key("nope"))
	require.Error(t, err)
}

func TestRemoveThenLookupMisses(t *testing.T) {
	idx := New()
	e := fixedEntry("im1", "cs1")
	require.NoError(t, idx.Insert(e))
	require.NoError(t, idx.Remove(e.Key()))

	_, ok := idx.Lookup(e.Key())
	assert.False(t, ok)
}

func TestFindFixedVersion(t *testing.T) {
	idx := New()
	e := fixedEntry("im1", "cs5")
	require.NoError(t, idx.Insert(e))

	got, ok := idx.FindFixedVersion("im1", "cs5")
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = idx.FindFixedVersion("im1", "cs6")
	assert.False(t, ok)
}

func TestFindVariableVersion(t *testing.T) {
	idx := New()
	e := pullAndPushEntry("im1", 7)
	require.NoError(t, idx.Insert(e))

	got, ok := idx.FindVariableVersion("im1", 7, briefcase.PullAndPush)
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = idx.FindVariableVersion("im1", 7, briefcase.PullOnly)
	assert.False(t, ok)
}

func TestFindAnyOwnedBriefcase(t *testing.T) {
	idx := New()
	e := pullAndPushEntry("im1", 9)
	require.NoError(t, idx.Insert(e))

	got, ok := idx.FindAnyOwnedBriefcase("im1", []briefcase.BriefcaseId{3, 9, 12})
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = idx.FindAnyOwnedBriefcase("im1", []briefcase.BriefcaseId{3, 12})
	assert.False(t, ok)
}

func TestRekeyMovesEntryAndUpdatesKeyFields(t *testing.T) {
	idx := New()
	e := fixedEntry("im1", "cs1")
	oldKey := e.Key()
	require.NoError(t, idx.Insert(e))

	e.TargetChangeSetId = "cs2"
	require.NoError(t, idx.Rekey(oldKey, e))

	_, ok := idx.Lookup(oldKey)
	assert.False(t, ok)
	got, ok := idx.Lookup(e.Key())
	require.True(t, ok)
	assert.Same(t, e, got)
}

func TestRekeyNoopWhenKeyUnchanged(t *testing.T) {
	idx := New()
	e := fixedEntry("im1", "cs1")
	key := e.Key()
	require.NoError(t, idx.Insert(e))

	require.NoError(t, idx.Rekey(key, e))
	got, ok := idx.Lookup(key)
	require.True(t, ok)
	assert.Same(t, e, got)
}

func TestLookupPredicateAndAll(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(fixedEntry("im1", "cs1")))
	require.NoError(t, idx.Insert(fixedEntry("im2", "cs1")))

	matches := idx.LookupPredicate(func(e *briefcase.Entry) bool { return e.IModelId == "im1" })
	assert.Len(t, matches, 1)
	assert.Len(t, idx.All(), 2)
}
