package briefcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeKey(t *testing.T) {
	tests := []struct {
		name        string
		iModelId    IModelId
		briefcaseId BriefcaseId
		targetId    ChangeSetId
		mode        SyncMode
		want        Key
	}{
		{
			name:     "fixed version keys by target changeset, not briefcase id",
			iModelId: "im1",
			targetId: "cs3",
			mode:     FixedVersion,
			want:     "im1:cs3",
		},
		{
			name:        "pull only keys by briefcase id",
			iModelId:    "im1",
			briefcaseId: 7,
			targetId:    "cs3",
			mode:        PullOnly,
			want:        "im1:7",
		},
		{
			name:        "pull and push keys by briefcase id",
			iModelId:    "im1",
			briefcaseId: 7,
			targetId:    "cs9",
			mode:        PullAndPush,
			want:        "im1:7",
		},
		{
			name:     "fixed version at version zero",
			iModelId: "im1",
			targetId: "",
			mode:     FixedVersion,
			want:     "im1:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MakeKey(tt.iModelId, tt.briefcaseId, tt.targetId, tt.mode)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMakeKey_TwoEntriesNeverShareKey(t *testing.T) {
	// Invariant 3: distinct (iModelId, briefcaseId-or-target, mode) tuples
	// never collide under MakeKey.
	k1 := MakeKey("im1", 2, "csA", PullAndPush)
	k2 := MakeKey("im1", 3, "csA", PullAndPush)
	assert.NotEqual(t, k1, k2)

	k3 := MakeKey("im1", Standalone, "csA", FixedVersion)
	k4 := MakeKey("im1", Standalone, "csB", FixedVersion)
	assert.NotEqual(t, k3, k4)
}
