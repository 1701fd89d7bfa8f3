package usecase

import (
	"sort"
	"time"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// Classifier maps canonical states into activity bands and orders the
// project list for display.
type Classifier struct {
	coolingGrace time.Duration
}

// NewClassifier creates a classifier with the given cooling grace window.
func NewClassifier(coolingGrace time.Duration) *Classifier {
	return &Classifier{coolingGrace: coolingGrace}
}

// Classify bands a single project's state. A nil state means no session.
func (c *Classifier) Classify(cs *domain.CanonicalState, now time.Time) domain.ActivityBand {
	if cs == nil {
		return domain.BandIdle
	}
	switch cs.Record.State {
	case domain.StateWorking, domain.StateWaiting, domain.StateCompacting, domain.StateReady:
		return domain.BandActive
	case domain.StateIdle:
		if !domain.IsStale(cs.Record.StateChangedAt, c.coolingGrace, now) {
			return domain.BandCooling
		}
	}
	return domain.BandIdle
}

// ClassifyAll bands every project in states; projects absent from states
// band as idle.
func (c *Classifier) ClassifyAll(
	projects []domain.Project,
	states map[string]domain.CanonicalState,
	now time.Time,
) map[string]domain.ActivityBand {
	bands := make(map[string]domain.ActivityBand, len(projects))
	for _, p := range projects {
		if cs, ok := states[p.Path]; ok {
			bands[p.Path] = c.Classify(&cs, now)
		} else {
			bands[p.Path] = domain.BandIdle
		}
	}
	return bands
}

// OrderProjects applies the persisted custom order, then stably partitions
// active-or-cooling projects ahead of idle ones. Projects without a stored
// position sort after positioned ones, by name.
func (c *Classifier) OrderProjects(
	projects []domain.Project,
	bands map[string]domain.ActivityBand,
	positions map[string]int,
) []domain.Project {
	ordered := make([]domain.Project, len(projects))
	copy(ordered, projects)

	sort.SliceStable(ordered, func(i, j int) bool {
		pi, iok := positions[ordered[i].Path]
		pj, jok := positions[ordered[j].Path]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		case jok:
			return false
		default:
			return ordered[i].Name < ordered[j].Name
		}
	})

	// Stable partition: active-or-cooling first, relative order preserved.
	front := make([]domain.Project, 0, len(ordered))
	back := make([]domain.Project, 0, len(ordered))
	for _, p := range ordered {
		if bands[p.Path] == domain.BandActive || bands[p.Path] == domain.BandCooling {
			front = append(front, p)
		} else {
			back = append(back, p)
		}
	}
	return append(front, back...)
}
