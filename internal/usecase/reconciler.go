// Package usecase contains application business logic.
package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// Reconciler merges raw per-path records, lock truth, and staleness windows
// into one canonical state per project. Pure: it never mutates the input
// snapshot and performs no I/O.
type Reconciler struct {
	thinkingStale  time.Duration
	readyIdleStale time.Duration
}

// NewReconciler creates a reconciler with the given staleness thresholds.
func NewReconciler(thinkingStale, readyIdleStale time.Duration) *Reconciler {
	return &Reconciler{
		thinkingStale:  thinkingStale,
		readyIdleStale: readyIdleStale,
	}
}

// Reconcile derives canonical states keyed by project path. Projects with no
// matching record get no entry.
func (r *Reconciler) Reconcile(
	records map[string]domain.SessionRecord,
	projects []domain.Project,
	now time.Time,
) map[string]domain.CanonicalState {
	out := make(map[string]domain.CanonicalState, len(projects))

	for _, project := range projects {
		cs, ok := r.reconcileProject(records, project, now)
		if ok {
			out[project.Path] = cs
		}
	}
	return out
}

func (r *Reconciler) reconcileProject(
	records map[string]domain.SessionRecord,
	project domain.Project,
	now time.Time,
) (domain.CanonicalState, bool) {
	sourcePath, ok := selectCandidate(records, project.Path)
	if !ok {
		return domain.CanonicalState{}, false
	}

	cs := domain.CanonicalState{
		Record:     records[sourcePath],
		SourcePath: sourcePath,
	}

	// Lock inheritance: a child path can be stale relative to the parent's
	// lock truth.
	if !cs.Record.IsLocked {
		if root, exists := records[project.Path]; exists && root.IsLocked {
			cs.Record.IsLocked = true
			cs.LockInherited = true
		}
	}

	thinking := r.effectiveThinking(&cs, now)
	r.derive(&cs, thinking, now)
	return cs, true
}

// selectCandidate picks the record for the project path or its freshest
// strict sub-path. Candidates are visited in lexicographic path order so
// timestamp ties break deterministically.
func selectCandidate(records map[string]domain.SessionRecord, projectPath string) (string, bool) {
	prefix := projectPath + "/"

	candidates := make([]string, 0, 2)
	for path := range records {
		if path == projectPath || strings.HasPrefix(path, prefix) {
			candidates = append(candidates, path)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)

	best := candidates[0]
	bestTS := recordTimestamp(records[best])
	for _, path := range candidates[1:] {
		ts := recordTimestamp(records[path])
		if ts != nil && (bestTS == nil || ts.After(*bestTS)) {
			best = path
			bestTS = ts
		}
	}
	return best, true
}

// recordTimestamp prefers context.updatedAt, falling back to stateChangedAt.
func recordTimestamp(rec domain.SessionRecord) *time.Time {
	if rec.Context != nil {
		ts := rec.Context.UpdatedAt
		return &ts
	}
	return rec.StateChangedAt
}

// effectiveThinking applies the thinking-staleness gate: a stale or
// untimestamped thinking flag counts as false for this cycle only.
func (r *Reconciler) effectiveThinking(cs *domain.CanonicalState, now time.Time) bool {
	if cs.Record.Thinking == nil || !*cs.Record.Thinking {
		return false
	}
	if domain.IsStale(recordTimestamp(cs.Record), r.thinkingStale, now) {
		cs.ThinkingOverridden = true
		return false
	}
	return true
}

// derive applies the derivation table, first match wins.
func (r *Reconciler) derive(cs *domain.CanonicalState, thinking bool, now time.Time) {
	rec := &cs.Record
	locked := rec.IsLocked
	inFlight := rec.State == domain.StateWorking || rec.State == domain.StateCompacting

	switch {
	case thinking:
		rec.State = domain.StateWorking
		rec.Thinking = boolPtr(true)

	case !locked && inFlight:
		// The process that set this state is presumed gone.
		rec.State = domain.StateReady
		if rec.Thinking != nil {
			rec.Thinking = boolPtr(false)
		}

	case locked && inFlight:
		// Trust the lock.

	case locked && rec.State == domain.StateIdle:
		// A lock proves the agent is attached; never report idle under it.
		rec.State = domain.StateReady
		cs.Promoted = true

	case !locked && rec.State == domain.StateReady &&
		rec.StateChangedAt != nil &&
		domain.IsStale(rec.StateChangedAt, r.readyIdleStale, now):
		rec.State = domain.StateIdle
		cs.AgedOut = true
	}
}

func boolPtr(b bool) *bool { return &b }
