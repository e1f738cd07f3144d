package briefcase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_CurrentChangeSetId(t *testing.T) {
	e := &Entry{ParentChangeSetId: "csP"}
	assert.Equal(t, ChangeSetId("csP"), e.CurrentChangeSetId())

	e.ReversedSet = true
	e.ReversedChangeSetId = "csR"
	assert.Equal(t, ChangeSetId("csR"), e.CurrentChangeSetId())
}

func TestEntry_Key_RecomputesFromCurrentFields(t *testing.T) {
	e := &Entry{IModelId: "im1", BriefcaseId: 4, TargetChangeSetId: "cs9", SyncMode: PullAndPush}
	assert.Equal(t, Key("im1:4"), e.Key())

	e.BriefcaseId = 5
	assert.Equal(t, Key("im1:5"), e.Key(), "Key must reflect current fields, not a cached value")
}

func TestDownloadFuture_ResolveOnce(t *testing.T) {
	f := NewDownloadFuture()
	f.Resolve(Props{Pathname: "/a"}, nil)
	f.Resolve(Props{Pathname: "/b"}, errors.New("ignored"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	props, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/a", props.Pathname, "second Resolve must be a no-op")
}

func TestDownloadFuture_WaitRespectsContext(t *testing.T) {
	f := NewDownloadFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownloadFuture_WaitBlocksUntilResolved(t *testing.T) {
	f := NewDownloadFuture()

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Resolve(Props{Pathname: "/done"}, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	props, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/done", props.Pathname)
}

func TestEntry_Debug_DoesNotPanicOnNilFuture(t *testing.T) {
	e := &Entry{IModelId: "im1", SyncMode: FixedVersion, TargetChangeSetId: "cs1"}
	d := e.Debug()
	assert.Equal(t, Key("im1:cs1"), d.Key)
}
