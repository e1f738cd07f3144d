// Package index implements the control-plane index of local briefcase
// entries (spec §4.C) and its supporting durable/offline layers (§4.I,
// §4.O).
package index

import (
	"fmt"
	"sync"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// Index is the keyed container of briefcase entries (spec §4.C). It guards
// its map with its own RWMutex, so every method is safe to call whether or
// not the caller holds the control-plane lock (internal/manager.mu); the
// manager calls it both ways.
type Index struct {
	mu      sync.RWMutex
	entries map[briefcase.Key]*briefcase.Entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{entries: make(map[briefcase.Key]*briefcase.Entry)}
}

// Insert adds e under its current key, failing if the key already exists
// (spec §4.C).
func (idx *Index) Insert(e *briefcase.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := e.Key()
	if _, exists := idx.entries[key]; exists {
		return fmt.Errorf("index: key %q already present", key)
	}
	idx.entries[key] = e
	return nil
}

// Remove deletes the entry at key, failing if absent (spec §4.C).
func (idx *Index) Remove(key briefcase.Key) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.entries[key]; !exists {
		return fmt.Errorf("index: key %q not present", key)
	}
	delete(idx.entries, key)
	return nil
}

// Rekey moves the entry from oldKey to its current (recomputed) key,
// needed by the push loop when a key formula depends on a field the push
// just changed (spec §4.G step 8, §4.C "symmetry" note).
func (idx *Index) Rekey(oldKey briefcase.Key, e *briefcase.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.entries[oldKey]; !exists {
		return fmt.Errorf("index: rekey source %q not present", oldKey)
	}
	newKey := e.Key()
	if newKey == oldKey {
		return nil
	}
	if _, exists := idx.entries[newKey]; exists {
		return fmt.Errorf("index: rekey target %q already present", newKey)
	}
	delete(idx.entries, oldKey)
	idx.entries[newKey] = e
	return nil
}

// Lookup returns the entry at key, if any.
func (idx *Index) Lookup(key briefcase.Key) (*briefcase.Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	return e, ok
}

// LookupPredicate returns every entry for which pred is true, in no
// particular order (spec §4.C "lookup-by-predicate").
func (idx *Index) LookupPredicate(pred func(*briefcase.Entry) bool) []*briefcase.Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*briefcase.Entry
	for _, e := range idx.entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry currently indexed, in no particular order.
func (idx *Index) All() []*briefcase.Entry {
	return idx.LookupPredicate(func(*briefcase.Entry) bool { return true })
}

// FindFixedVersion finds the FixedVersion entry for
// (iModelId, targetChangeSetId), the first typed finder in spec §4.C.
func (idx *Index) FindFixedVersion(iModelId briefcase.IModelId, targetChangeSetId briefcase.ChangeSetId) (*briefcase.Entry, bool) {
	matches := idx.LookupPredicate(func(e *briefcase.Entry) bool {
		return e.SyncMode == briefcase.FixedVersion &&
			e.IModelId == iModelId &&
			e.TargetChangeSetId == targetChangeSetId
	})
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// FindVariableVersion finds the entry for (iModelId, briefcaseId, syncMode),
// the second typed finder in spec §4.C (PullOnly/PullAndPush entries).
func (idx *Index) FindVariableVersion(iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId, mode briefcase.SyncMode) (*briefcase.Entry, bool) {
	matches := idx.LookupPredicate(func(e *briefcase.Entry) bool {
		return e.SyncMode == mode &&
			e.IModelId == iModelId &&
			e.BriefcaseId == briefcaseId
	})
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// FindAnyOwnedBriefcase returns the first PullAndPush entry for iModelId
// whose briefcaseId is in hubBriefcaseIds, the third typed finder in spec
// §4.C ("for PullAndPush reuse").
func (idx *Index) FindAnyOwnedBriefcase(iModelId briefcase.IModelId, hubBriefcaseIds []briefcase.BriefcaseId) (*briefcase.Entry, bool) {
	owned := make(map[briefcase.BriefcaseId]struct{}, len(hubBriefcaseIds))
	for _, id := range hubBriefcaseIds {
		owned[id] = struct{}{}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, e := range idx.entries {
		if e.IModelId != iModelId || e.SyncMode != briefcase.PullAndPush {
			continue
		}
		if _, ok := owned[e.BriefcaseId]; ok {
			return e, true
		}
	}
	return nil, false
}
