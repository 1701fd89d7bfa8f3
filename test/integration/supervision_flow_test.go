//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/petekp/claude-hud-sub006/internal/domain"
	"github.com/petekp/claude-hud-sub006/internal/infra"
	"github.com/petekp/claude-hud-sub006/internal/usecase"
)

// scriptedRunner replays canned launchctl results keyed by subcommand and
// records every invocation.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]struct {
		out  string
		code int
		err  error
	}
	calls [][]string
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{results: map[string]struct {
		out  string
		code int
		err  error
	}{}}
}

func (r *scriptedRunner) script(subcommand, out string, code int, err error) {
	r.results[subcommand] = struct {
		out  string
		code int
		err  error
	}{out, code, err}
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(args) > 0 {
		if res, ok := r.results[args[0]]; ok {
			return res.out, res.code, res.err
		}
	}
	return "", 0, nil
}

func (r *scriptedRunner) sawSubcommand(subcommand string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.calls {
		if len(call) > 1 && call[1] == subcommand {
			return true
		}
	}
	return false
}

// serveHealth runs a one-shot fake agent on socketPath.
func serveHealth(socketPath, response string) (func(), error) {
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 4096)
				if _, err := conn.Read(buf); err != nil {
					return
				}
				conn.Write([]byte(response + "\n"))
			}(conn)
		}
	}()
	return func() { listener.Close() }, nil
}

var _ = Describe("Supervision Flow", func() {
	var (
		tmpDir     string
		binaryPath string
		socketPath string
		runner     *scriptedRunner
		writer     *infra.LaunchdDescriptorWriter
		supervisor *usecase.Supervisor
	)

	const label = "com.claudehud.agent.integration"

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "hud-supervision-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		binaryPath = filepath.Join(tmpDir, "claude-hud-agent")
		Expect(os.WriteFile(binaryPath, []byte("#!/bin/sh\n"), 0755)).To(Succeed())
		socketPath = filepath.Join(tmpDir, "agent.sock")

		runner = newScriptedRunner()
		writer = infra.NewDescriptorWriter(infra.DescriptorConfig{
			Label:      label,
			InstallDir: filepath.Join(tmpDir, "LaunchAgents"),
			LogDir:     filepath.Join(tmpDir, "logs"),
		})

		supervisor = usecase.NewSupervisor(
			usecase.SupervisorConfig{
				BinaryCandidates: []string{binaryPath},
				AgentBinaryName:  "claude-hud-agent",
				SocketPath:       socketPath,
				ProbeTimeout:     200 * time.Millisecond,
				HealthRetries:    2,
				HealthRetryDelay: 50 * time.Millisecond,
			},
			writer,
			infra.NewServiceRegistrar(runner, label),
			infra.NewJobController(runner, label, writer.Path()),
			infra.NewHealthProbe(),
			nil,
			nil,
			nil,
		)
	})

	Describe("EnsureRunning", func() {
		Context("when bootstrap succeeds and the agent answers", func() {
			It("writes the descriptor and stops at the native path", func() {
				stop, err := serveHealth(socketPath, `{"ok":true,"data":{"status":"ok","pid":99,"version":"1.2.3"}}`)
				Expect(err).NotTo(HaveOccurred())
				DeferCleanup(stop)

				Expect(supervisor.EnsureRunning(context.Background())).To(Succeed())

				_, err = os.Stat(writer.Path())
				Expect(err).NotTo(HaveOccurred())
				Expect(runner.sawSubcommand("bootstrap")).To(BeTrue())
				Expect(runner.sawSubcommand("load")).To(BeFalse())
			})
		})

		Context("when bootstrap is unavailable", func() {
			It("falls back to legacy load and start", func() {
				runner.script("bootstrap", "Unknown subcommand: bootstrap", 1, errExit(1))
				runner.script("list", "Could not find service", 113, errExit(113))

				Expect(supervisor.EnsureRunning(context.Background())).To(Succeed())

				Expect(runner.sawSubcommand("load")).To(BeTrue())
				Expect(runner.sawSubcommand("start")).To(BeTrue())
			})
		})

		Context("when bootstrap needs approval", func() {
			It("surfaces an approval error without touching the legacy path", func() {
				runner.script("bootstrap", "Bootstrap failed: 125: Operation not permitted", 125, errExit(125))

				err := supervisor.EnsureRunning(context.Background())

				var approval *domain.ApprovalRequiredError
				Expect(errors.As(err, &approval)).To(BeTrue())
				Expect(approval.Message).To(ContainSubstring("Operation not permitted"))
				Expect(runner.sawSubcommand("load")).To(BeFalse())
			})
		})

		Context("when registration succeeds but the agent never answers", func() {
			It("falls through to the legacy path", func() {
				runner.script("list", "Could not find service", 113, errExit(113))

				Expect(supervisor.EnsureRunning(context.Background())).To(Succeed())

				Expect(runner.sawSubcommand("bootstrap")).To(BeTrue())
				Expect(runner.sawSubcommand("load")).To(BeTrue())
			})
		})
	})

	Describe("Disable", func() {
		It("unregisters, unloads, and removes the descriptor", func() {
			stop, err := serveHealth(socketPath, `{"ok":true,"data":{"status":"ok"}}`)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(stop)

			Expect(supervisor.EnsureRunning(context.Background())).To(Succeed())
			Expect(supervisor.Disable(context.Background())).To(Succeed())

			Expect(runner.sawSubcommand("bootout")).To(BeTrue())
			_, err = os.Stat(writer.Path())
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("Status", func() {
		It("reports health detail from a live probe", func() {
			stop, err := serveHealth(socketPath, `{"ok":true,"data":{"status":"ok","pid":4242,"version":"1.2.3"}}`)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(stop)

			runner.script("list", `{"PID" = 4242;}`, 0, nil)

			status := supervisor.Status(context.Background())
			Expect(status.Enabled).To(BeTrue())
			Expect(status.Healthy).To(BeTrue())
			Expect(status.PID).NotTo(BeNil())
			Expect(*status.PID).To(Equal(4242))
			Expect(*status.Version).To(Equal("1.2.3"))
		})

		It("reports not enabled when nothing is registered", func() {
			runner.script("list", "Could not find service", 113, errExit(113))

			status := supervisor.Status(context.Background())
			Expect(status.Enabled).To(BeFalse())
			Expect(status.Healthy).To(BeFalse())
			Expect(status.Message).To(Equal("agent not enabled"))
		})
	})
})

func errExit(code int) error { return fmt.Errorf("exit status %d", code) }
