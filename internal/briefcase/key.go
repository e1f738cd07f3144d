package briefcase

import "fmt"

// Key is the deterministic cache key used to index briefcase entries
// (spec §3). Two entries never share a Key (invariant 3).
type Key string

// MakeKey computes the cache key for the given identity tuple, following
// spec §3's two formulas:
//
//	FixedVersion             -> "<iModelId>:<targetChangeSetId>"
//	PullOnly / PullAndPush   -> "<iModelId>:<briefcaseId>"
func MakeKey(iModelId IModelId, briefcaseId BriefcaseId, targetChangeSetId ChangeSetId, mode SyncMode) Key {
	if mode == FixedVersion {
		return Key(fmt.Sprintf("%s:%s", iModelId, targetChangeSetId))
	}
	return Key(fmt.Sprintf("%s:%s", iModelId, briefcaseId))
}
