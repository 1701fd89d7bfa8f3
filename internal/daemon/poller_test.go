package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petekp/claude-hud-sub006/internal/domain"
	"github.com/petekp/claude-hud-sub006/internal/usecase"
)

type fakeSource struct {
	mu      sync.Mutex
	records map[string]domain.SessionRecord
	err     error
	calls   int
}

func (f *fakeSource) Snapshot() (map[string]domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.SessionRecord, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out, nil
}

type capturePresenter struct {
	mu     sync.Mutex
	frames []domain.Frame
}

func (p *capturePresenter) Present(frame domain.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
}

func (p *capturePresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

type fixedOrders struct {
	positions map[string]int
	err       error
}

func (o *fixedOrders) Positions() (map[string]int, error) {
	return o.positions, o.err
}

func newTestPoller(source *fakeSource, orders OrderProvider, presenter domain.FramePresenter, wake <-chan struct{}, tick time.Duration) *Poller {
	projects := []domain.Project{
		{Path: "/p/a", Name: "a"},
		{Path: "/p/b", Name: "b"},
	}
	return NewPoller(
		PollerConfig{TickInterval: tick},
		projects,
		source,
		usecase.NewReconciler(30*time.Second, 120*time.Second),
		usecase.NewClassifier(8*time.Second),
		usecase.NewNotifier(1400*time.Millisecond),
		orders,
		presenter,
		wake,
		nil,
	)
}

func TestPass(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	changed := now.Add(-time.Minute)

	t.Run("frame carries states bands and ordering", func(t *testing.T) {
		source := &fakeSource{records: map[string]domain.SessionRecord{
			"/p/b": {State: domain.StateWorking, StateChangedAt: &changed},
		}}
		presenter := &capturePresenter{}
		p := newTestPoller(source, &fixedOrders{}, presenter, nil, time.Second)

		frame := p.Pass(now)
		assert.Equal(t, now, frame.At)
		require.Len(t, frame.Projects, 2)
		// Active project b is partitioned ahead of idle a. The unlocked
		// working record demotes to ready on the way through.
		assert.Equal(t, "/p/b", frame.Projects[0].Path)
		assert.Equal(t, domain.StateReady, frame.States["/p/b"].Record.State)
		assert.Equal(t, domain.BandActive, frame.Bands["/p/b"])
		assert.Equal(t, domain.BandIdle, frame.Bands["/p/a"])
		assert.Equal(t, 1, presenter.count())
	})

	t.Run("snapshot error degrades to an empty frame", func(t *testing.T) {
		source := &fakeSource{err: errors.New("disk gone")}
		p := newTestPoller(source, &fixedOrders{}, &capturePresenter{}, nil, time.Second)

		frame := p.Pass(now)
		assert.Empty(t, frame.States)
		assert.Equal(t, domain.BandIdle, frame.Bands["/p/a"])
		assert.Equal(t, domain.BandIdle, frame.Bands["/p/b"])
	})

	t.Run("order store error falls back to name order", func(t *testing.T) {
		source := &fakeSource{}
		orders := &fixedOrders{err: errors.New("locked")}
		p := newTestPoller(source, orders, &capturePresenter{}, nil, time.Second)

		frame := p.Pass(now)
		require.Len(t, frame.Projects, 2)
		assert.Equal(t, "a", frame.Projects[0].Name)
	})

	t.Run("flash appears on an observed transition", func(t *testing.T) {
		source := &fakeSource{records: map[string]domain.SessionRecord{
			"/p/a": {State: domain.StateIdle, StateChangedAt: &changed},
		}}
		p := newTestPoller(source, &fixedOrders{}, &capturePresenter{}, nil, time.Second)

		p.Pass(now)

		source.mu.Lock()
		source.records["/p/a"] = domain.SessionRecord{State: domain.StateReady, StateChangedAt: &now}
		source.mu.Unlock()

		frame := p.Pass(now.Add(time.Second))
		require.Len(t, frame.Flashes, 1)
		assert.Equal(t, "/p/a", frame.Flashes[0].ProjectPath)
		assert.Equal(t, domain.StateReady, frame.Flashes[0].State)
	})
}

func TestRun(t *testing.T) {
	t.Run("runs an immediate pass and stops on cancel", func(t *testing.T) {
		source := &fakeSource{}
		presenter := &capturePresenter{}
		p := newTestPoller(source, &fixedOrders{}, presenter, nil, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Run(ctx) }()

		require.Eventually(t, func() bool { return presenter.count() >= 1 },
			2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not stop on cancel")
		}
	})

	t.Run("wake signal triggers an early pass", func(t *testing.T) {
		source := &fakeSource{}
		presenter := &capturePresenter{}
		wake := make(chan struct{}, 1)
		p := newTestPoller(source, &fixedOrders{}, presenter, wake, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		require.Eventually(t, func() bool { return presenter.count() >= 1 },
			2*time.Second, 10*time.Millisecond)

		wake <- struct{}{}
		require.Eventually(t, func() bool { return presenter.count() >= 2 },
			2*time.Second, 10*time.Millisecond)
	})

	t.Run("closed wake channel does not spin the loop", func(t *testing.T) {
		source := &fakeSource{}
		presenter := &capturePresenter{}
		wake := make(chan struct{})
		close(wake)
		p := newTestPoller(source, &fixedOrders{}, presenter, wake, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		require.Eventually(t, func() bool { return presenter.count() >= 1 },
			2*time.Second, 10*time.Millisecond)
		time.Sleep(100 * time.Millisecond)
		assert.LessOrEqual(t, presenter.count(), 2)
	})
}
