package usecase

import (
	"sort"
	"time"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// Notifier is a pure edge-detector over per-project session states. It
// holds only the previous-cycle snapshot and the live flash map; both are
// single-writer from the tick loop.
type Notifier struct {
	flashDuration time.Duration

	prev    map[string]domain.SessionState
	flashes map[string]domain.Flash
}

// NewNotifier creates a notifier emitting flashes of the given duration.
func NewNotifier(flashDuration time.Duration) *Notifier {
	return &Notifier{
		flashDuration: flashDuration,
		prev:          make(map[string]domain.SessionState),
		flashes:       make(map[string]domain.Flash),
	}
}

// Observe diffs states against the previous cycle and returns the flashes
// emitted this cycle. Transitions into ready, waiting, or compacting flash;
// transitions into working or idle emit nothing. The first sighting of a
// project is not a transition.
func (n *Notifier) Observe(states map[string]domain.CanonicalState, now time.Time) []domain.Flash {
	var emitted []domain.Flash

	next := make(map[string]domain.SessionState, len(states))
	for path, cs := range states {
		cur := cs.Record.State
		next[path] = cur

		prev, seen := n.prev[path]
		if !seen || prev == cur {
			continue
		}
		if !flashesOn(cur) {
			continue
		}
		flash := domain.Flash{
			ProjectPath: path,
			State:       cur,
			ExpiresAt:   now.Add(n.flashDuration),
		}
		n.flashes[path] = flash
		emitted = append(emitted, flash)
	}
	n.prev = next

	n.prune(now)
	sort.Slice(emitted, func(i, j int) bool {
		return emitted[i].ProjectPath < emitted[j].ProjectPath
	})
	return emitted
}

// ActiveFlashes returns all unexpired flashes, sorted by project path.
func (n *Notifier) ActiveFlashes(now time.Time) []domain.Flash {
	n.prune(now)
	out := make([]domain.Flash, 0, len(n.flashes))
	for _, f := range n.flashes {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProjectPath < out[j].ProjectPath
	})
	return out
}

func (n *Notifier) prune(now time.Time) {
	for path, f := range n.flashes {
		if !f.Active(now) {
			delete(n.flashes, path)
		}
	}
}

func flashesOn(state domain.SessionState) bool {
	switch state {
	case domain.StateReady, domain.StateWaiting, domain.StateCompacting:
		return true
	}
	return false
}
