package manager

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/config"
	"github.com/briefcasehub/briefcase-manager/internal/events"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/index"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

// Manager is the briefcase manager's control plane (spec §4.D-§4.I). It
// owns the in-memory index, the on-disk layout, the hub collaborator, the
// native-engine factory, and the event hooks registry, and serializes every
// mutation to an entry's lifecycle through mu, mirroring the teacher's
// Orchestrator, which centralizes all mutable sync state behind one mutex
// rather than spreading locks across collaborators.
type Manager struct {
	// mu serializes every control-plane mutation: index insert/remove/rekey,
	// entry field writes, and open/close transitions (spec §5).
	mu sync.Mutex

	// acquireMu serializes the "acquire a fresh hub briefcaseId" sequence
	// (index lookup -> hub acquire -> index insert) so two
	// concurrent requests for the same iModel never both acquire a hub
	// briefcase when one could have been reused (spec §4.D).
	acquireMu sync.Mutex

	idx    *index.Index
	layout *briefcase.Layout
	hub    hub.Capability
	newDb  index.DbFactory
	hooks  *events.Hooks
	cfg    *config.Config
	logger *slog.Logger

	// workers tracks every background finishInitialize/finishCreate
	// goroutine a requestDownload call launched, so Wait can block for a
	// graceful shutdown the way the teacher's TransferManager drains its
	// dispatch pool before returning from Sync.
	workers errgroup.Group

	// openDbs tracks caller-opened handles from OpenBriefcase, so
	// CloseBriefcase and purgeCache can close what a caller left open
	// without requiring every entry to carry a live Db reference in its
	// DebugProjection-safe value-object form.
	openDbs map[briefcase.Key]nativedb.Db
}

// New constructs a Manager. hooks and logger may be nil, defaulting to an
// empty registry and slog.Default respectively.
func New(idx *index.Index, layout *briefcase.Layout, cap hub.Capability, newDb index.DbFactory, hooks *events.Hooks, cfg *config.Config, logger *slog.Logger) *Manager {
	if hooks == nil {
		hooks = events.New(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		idx:     idx,
		layout:  layout,
		hub:     cap,
		newDb:   newDb,
		hooks:   hooks,
		cfg:     cfg,
		logger:  logger,
		openDbs: make(map[briefcase.Key]nativedb.Db),
	}
}

// Wait blocks until every in-flight background download/initialize
// goroutine launched by requestDownload has finished. Each goroutine
// delivers its result, error included, to its own DownloadFuture and
// returns nil, so Wait returns nil; it is for shutdown sequencing, not for
// observing individual results.
func (m *Manager) Wait() error {
	return m.workers.Wait()
}

// singleton guards the process-wide Manager lifecycle spec.md §9 describes:
// the in-memory index, cache-root layout, and acquisition mutex are
// process-singletons tied to Initialize/Shutdown, and reinitializing
// without an intervening Shutdown is forbidden.
var (
	singletonMu sync.Mutex
	singleton   *Manager
)

// Initialize constructs the process-singleton Manager and records it, so a
// later Shutdown can find it. It fails if a Manager is already active.
func Initialize(idx *index.Index, layout *briefcase.Layout, cap hub.Capability, newDb index.DbFactory, hooks *events.Hooks, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		return nil, newErr(KindPrecondition, "manager already initialized; call Shutdown first", nil)
	}
	singleton = New(idx, layout, cap, newDb, hooks, cfg, logger)
	return singleton, nil
}

// Shutdown waits for every in-flight background operation on the
// process-singleton Manager to finish and then clears it. After Shutdown
// returns, any handle a caller retained to the Manager or its entries must
// be treated as invalid; a later Initialize call starts a fresh instance.
func Shutdown() error {
	singletonMu.Lock()
	m := singleton
	singleton = nil
	singletonMu.Unlock()
	if m == nil {
		return newErr(KindPrecondition, "manager not initialized", nil)
	}
	return m.Wait()
}

// findBriefcaseByKey returns the entry for key, if any (spec §6: public
// surface read accessor).
func (m *Manager) findBriefcaseByKey(key briefcase.Key) (*briefcase.Entry, bool) {
	return m.idx.Lookup(key)
}

// getBriefcases returns every currently indexed entry's debug projection
// (spec §6 getBriefcases).
func (m *Manager) getBriefcases() []briefcase.DebugProjection {
	entries := m.idx.All()
	out := make([]briefcase.DebugProjection, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Debug())
	}
	return out
}
