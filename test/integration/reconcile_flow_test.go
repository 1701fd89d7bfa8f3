//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/petekp/claude-hud-sub006/internal/daemon"
	"github.com/petekp/claude-hud-sub006/internal/domain"
	"github.com/petekp/claude-hud-sub006/internal/infra"
	"github.com/petekp/claude-hud-sub006/internal/usecase"
)

var _ = Describe("Reconcile Flow", func() {
	var (
		stateDir string
		orderDB  string
		projects []domain.Project
		poller   *daemon.Poller
		store    *infra.OrderStore
		now      time.Time
	)

	writeRecord := func(name string, record map[string]interface{}) {
		data, err := json.Marshal(record)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(stateDir, name), data, 0644)).To(Succeed())
	}

	BeforeEach(func() {
		tmpDir, err := os.MkdirTemp("", "hud-integration-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		stateDir = filepath.Join(tmpDir, "state", "sessions")
		Expect(os.MkdirAll(stateDir, 0755)).To(Succeed())
		orderDB = filepath.Join(tmpDir, "order.db")

		projects = []domain.Project{
			{Path: "/home/u/alpha", Name: "alpha"},
			{Path: "/home/u/beta", Name: "beta"},
		}

		store, err = infra.OpenOrderStore(orderDB)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { store.Close() })

		source := infra.NewFileRecordSource(stateDir, nil)
		poller = daemon.NewPoller(
			daemon.DefaultPollerConfig(),
			projects,
			source,
			usecase.NewReconciler(30*time.Second, 120*time.Second),
			usecase.NewClassifier(8*time.Second),
			usecase.NewNotifier(1400*time.Millisecond),
			store,
			nil,
			nil,
			nil,
		)

		now = time.Now()
	})

	Describe("a pass over published records", func() {
		It("derives states, bands, and ordering from disk", func() {
			writeRecord("a.json", map[string]interface{}{
				"path":             "/home/u/alpha",
				"state":            "working",
				"state_changed_at": now.Add(-time.Minute).Format(time.RFC3339),
			})
			Expect(os.WriteFile(filepath.Join(stateDir, "a.lock"), []byte("/home/u/alpha\n"), 0644)).To(Succeed())
			Expect(store.Set([]string{"/home/u/beta", "/home/u/alpha"})).To(Succeed())

			frame := poller.Pass(now)

			Expect(frame.States).To(HaveKey("/home/u/alpha"))
			Expect(frame.States["/home/u/alpha"].Record.State).To(Equal(domain.StateWorking))
			Expect(frame.Bands["/home/u/alpha"]).To(Equal(domain.BandActive))
			Expect(frame.Bands["/home/u/beta"]).To(Equal(domain.BandIdle))

			// Active alpha is partitioned ahead despite beta's lower position.
			Expect(frame.Projects[0].Path).To(Equal("/home/u/alpha"))
			Expect(frame.Projects[1].Path).To(Equal("/home/u/beta"))
		})

		It("applies lock inheritance from lock files", func() {
			writeRecord("a.json", map[string]interface{}{
				"path":             "/home/u/alpha",
				"state":            "idle",
				"state_changed_at": now.Add(-time.Hour).Format(time.RFC3339),
			})
			Expect(os.WriteFile(filepath.Join(stateDir, "a.lock"), []byte("/home/u/alpha\n"), 0644)).To(Succeed())

			frame := poller.Pass(now)

			// A locked session is in use, so idle is promoted to ready.
			state := frame.States["/home/u/alpha"]
			Expect(state.Record.State).To(Equal(domain.StateReady))
			Expect(state.Promoted).To(BeTrue())
			Expect(state.Record.IsLocked).To(BeTrue())
		})

		It("ages an unlocked ready record into idle", func() {
			writeRecord("a.json", map[string]interface{}{
				"path":             "/home/u/alpha",
				"state":            "ready",
				"state_changed_at": now.Add(-10 * time.Minute).Format(time.RFC3339),
			})

			frame := poller.Pass(now)

			state := frame.States["/home/u/alpha"]
			Expect(state.Record.State).To(Equal(domain.StateIdle))
			Expect(state.AgedOut).To(BeTrue())
			Expect(frame.Bands["/home/u/alpha"]).To(Equal(domain.BandIdle))
		})

		It("flashes on a transition between passes", func() {
			writeRecord("a.json", map[string]interface{}{
				"path":             "/home/u/alpha",
				"state":            "working",
				"state_changed_at": now.Format(time.RFC3339),
			})
			poller.Pass(now)

			writeRecord("a.json", map[string]interface{}{
				"path":             "/home/u/alpha",
				"state":            "waiting",
				"state_changed_at": now.Add(time.Second).Format(time.RFC3339),
			})
			frame := poller.Pass(now.Add(time.Second))

			Expect(frame.Flashes).To(HaveLen(1))
			Expect(frame.Flashes[0].ProjectPath).To(Equal("/home/u/alpha"))
			Expect(frame.Flashes[0].State).To(Equal(domain.StateWaiting))

			// The flash outlives its trigger but not its duration.
			frame = poller.Pass(now.Add(2 * time.Second))
			Expect(frame.Flashes).To(HaveLen(1))
			frame = poller.Pass(now.Add(5 * time.Second))
			Expect(frame.Flashes).To(BeEmpty())
		})

		It("picks the newest record among worktrees under a project", func() {
			writeRecord("old.json", map[string]interface{}{
				"path":             "/home/u/alpha/wt-old",
				"state":            "idle",
				"state_changed_at": now.Add(-time.Hour).Format(time.RFC3339),
			})
			writeRecord("new.json", map[string]interface{}{
				"path":             "/home/u/alpha/wt-new",
				"state":            "working",
				"state_changed_at": now.Add(-time.Minute).Format(time.RFC3339),
			})

			frame := poller.Pass(now)

			state := frame.States["/home/u/alpha"]
			Expect(state.SourcePath).To(Equal("/home/u/alpha/wt-new"))
			// Without a lock the in-flight record reads as ready.
			Expect(state.Record.State).To(Equal(domain.StateReady))
		})
	})
})
