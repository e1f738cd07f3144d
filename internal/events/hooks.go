// Package events implements the synchronous subscriber hooks described in
// SPEC_FULL.md §4.L / §9: onBeforeClose, onAfterOpen, onChangesetApplied,
// and onBeforeVersionUpdate. Subscribers are plain closures, following the
// teacher's preference for injected functions over a generic pub/sub
// library (see internal/manager's factory-injection pattern, grounded on
// the teacher's Orchestrator.engineFactory/tokenSourceFn).
package events

import (
	"log/slog"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// BeforeCloseFunc is invoked just before a briefcase's NativeDb handle is
// closed.
type BeforeCloseFunc func(e *briefcase.Entry)

// AfterOpenFunc is invoked just after a briefcase's NativeDb handle is
// (re)opened.
type AfterOpenFunc func(e *briefcase.Entry)

// ChangesetAppliedFunc is invoked after each changeset is successfully
// applied during the changeset engine's plan execution (spec §4.F).
type ChangesetAppliedFunc func(e *briefcase.Entry, changeSetId briefcase.ChangeSetId)

// BeforeVersionUpdateFunc is invoked before the changeset engine begins
// moving a briefcase to a new target version.
type BeforeVersionUpdateFunc func(e *briefcase.Entry, targetId briefcase.ChangeSetId)

// Hooks is a process-wide registry of subscribers for the four documented
// points. No ordering between subscribers of the same kind is promised
// (spec §9). A panicking subscriber is recovered and logged so it cannot
// abort the core transition it was attached to.
type Hooks struct {
	logger *slog.Logger

	beforeClose         []BeforeCloseFunc
	afterOpen           []AfterOpenFunc
	changesetApplied    []ChangesetAppliedFunc
	beforeVersionUpdate []BeforeVersionUpdateFunc
}

// New creates an empty Hooks registry.
func New(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{logger: logger}
}

// OnBeforeClose registers a BeforeClose subscriber.
func (h *Hooks) OnBeforeClose(fn BeforeCloseFunc) { h.beforeClose = append(h.beforeClose, fn) }

// OnAfterOpen registers an AfterOpen subscriber.
func (h *Hooks) OnAfterOpen(fn AfterOpenFunc) { h.afterOpen = append(h.afterOpen, fn) }

// OnChangesetApplied registers a ChangesetApplied subscriber.
func (h *Hooks) OnChangesetApplied(fn ChangesetAppliedFunc) {
	h.changesetApplied = append(h.changesetApplied, fn)
}

// OnBeforeVersionUpdate registers a BeforeVersionUpdate subscriber.
func (h *Hooks) OnBeforeVersionUpdate(fn BeforeVersionUpdateFunc) {
	h.beforeVersionUpdate = append(h.beforeVersionUpdate, fn)
}

func (h *Hooks) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("event subscriber panicked, ignoring", "hook", name, "recover", r)
		}
	}()
	fn()
}

// FireBeforeClose invokes every BeforeClose subscriber.
func (h *Hooks) FireBeforeClose(e *briefcase.Entry) {
	for _, fn := range h.beforeClose {
		fn := fn
		h.guard("onBeforeClose", func() { fn(e) })
	}
}

// FireAfterOpen invokes every AfterOpen subscriber.
func (h *Hooks) FireAfterOpen(e *briefcase.Entry) {
	for _, fn := range h.afterOpen {
		fn := fn
		h.guard("onAfterOpen", func() { fn(e) })
	}
}

// FireChangesetApplied invokes every ChangesetApplied subscriber.
func (h *Hooks) FireChangesetApplied(e *briefcase.Entry, changeSetId briefcase.ChangeSetId) {
	for _, fn := range h.changesetApplied {
		fn := fn
		h.guard("onChangesetApplied", func() { fn(e, changeSetId) })
	}
}

// FireBeforeVersionUpdate invokes every BeforeVersionUpdate subscriber.
func (h *Hooks) FireBeforeVersionUpdate(e *briefcase.Entry, targetId briefcase.ChangeSetId) {
	for _, fn := range h.beforeVersionUpdate {
		fn := fn
		h.guard("onBeforeVersionUpdate", func() { fn(e, targetId) })
	}
}
