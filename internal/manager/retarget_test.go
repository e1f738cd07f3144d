package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

func TestRetarget_RejectsReadonlyFixedVersionEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := seedIModel(h.hub, "im1", 2)
	e := downloadFixedVersion(t, h, "im1", ids[0])
	require.Equal(t, briefcase.Readonly, e.OpenModeValue)

	err := h.mgr.ReverseChanges(ctx, e.Key(), ids[0])
	require.Error(t, err, "reversing a readonly FixedVersion briefcase must be rejected")
	var merr *Error
	require.True(t, asManagerError(err, &merr))
	assert.Equal(t, KindPrecondition, merr.Kind)

	err = h.mgr.ReinstateChanges(ctx, e.Key(), ids[1])
	require.Error(t, err, "reinstating a readonly FixedVersion briefcase must be rejected")
}
