// Package daemon implements the dashboard's periodic reconcile loop.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/petekp/claude-hud-sub006/internal/domain"
	"github.com/petekp/claude-hud-sub006/internal/usecase"
)

// OrderProvider supplies the persisted custom project order.
type OrderProvider interface {
	Positions() (map[string]int, error)
}

// PollerConfig holds poll loop configuration.
type PollerConfig struct {
	TickInterval time.Duration // default 1s
}

// DefaultPollerConfig returns default poll loop configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{TickInterval: time.Second}
}

// Poller drives reconciliation at a fixed tick. Each pass is synchronous,
// in-memory work over an already-fetched snapshot; the only I/O is the
// record snapshot read. An optional wake channel (record-dir change events)
// triggers an early pass between ticks.
type Poller struct {
	config     PollerConfig
	projects   []domain.Project
	source     domain.RecordSource
	reconciler *usecase.Reconciler
	classifier *usecase.Classifier
	notifier   *usecase.Notifier
	orders     OrderProvider
	presenter  domain.FramePresenter
	wake       <-chan struct{}
	logger     *zap.Logger
}

// NewPoller creates a poll loop over the given projects.
func NewPoller(
	config PollerConfig,
	projects []domain.Project,
	source domain.RecordSource,
	reconciler *usecase.Reconciler,
	classifier *usecase.Classifier,
	notifier *usecase.Notifier,
	orders OrderProvider,
	presenter domain.FramePresenter,
	wake <-chan struct{},
	logger *zap.Logger,
) *Poller {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		config:     config,
		projects:   projects,
		source:     source,
		reconciler: reconciler,
		classifier: classifier,
		notifier:   notifier,
		orders:     orders,
		presenter:  presenter,
		wake:       wake,
		logger:     logger,
	}
}

// Run starts the poll loop. Blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poll loop started",
		zap.Int("projects", len(p.projects)),
		zap.Duration("tick", p.config.TickInterval))

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	p.pass(time.Now())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopping")
			return ctx.Err()

		case <-ticker.C:
			p.pass(time.Now())

		case _, ok := <-p.wake:
			if !ok {
				p.wake = nil
				continue
			}
			p.pass(time.Now())
		}
	}
}

// Pass runs one reconcile pass immediately. Exposed for one-shot commands.
func (p *Poller) Pass(now time.Time) domain.Frame {
	return p.pass(now)
}

func (p *Poller) pass(now time.Time) domain.Frame {
	records, err := p.source.Snapshot()
	if err != nil {
		p.logger.Warn("record snapshot failed", zap.Error(err))
		records = map[string]domain.SessionRecord{}
	}

	states := p.reconciler.Reconcile(records, p.projects, now)
	bands := p.classifier.ClassifyAll(p.projects, states, now)

	positions := map[string]int{}
	if p.orders != nil {
		if pos, err := p.orders.Positions(); err == nil {
			positions = pos
		} else {
			p.logger.Debug("order store read failed", zap.Error(err))
		}
	}
	ordered := p.classifier.OrderProjects(p.projects, bands, positions)

	p.notifier.Observe(states, now)

	frame := domain.Frame{
		At:       now,
		Projects: ordered,
		States:   states,
		Bands:    bands,
		Flashes:  p.notifier.ActiveFlashes(now),
	}
	if p.presenter != nil {
		p.presenter.Present(frame)
	}
	return frame
}
