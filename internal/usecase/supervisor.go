package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// SupervisorConfig holds supervision tunables.
type SupervisorConfig struct {
	// BinaryCandidates is the ordered list of agent binary locations.
	BinaryCandidates []string

	// AgentBinaryName is used for process lookup in Status.
	AgentBinaryName string

	SocketPath       string
	ProbeTimeout     time.Duration
	HealthRetries    int
	HealthRetryDelay time.Duration

	// LegacyDescriptorPath is the prior version's descriptor, cleaned up
	// once the native path is confirmed healthy.
	LegacyDescriptorPath string
}

// Supervisor orchestrates agent install, enable, and disable. It prefers
// the native managed-service API and falls back to the legacy service
// manager, gating trust in either on an actual health probe.
type Supervisor struct {
	cfg       SupervisorConfig
	writer    domain.DescriptorWriter
	registrar domain.ServiceRegistrar
	jobs      domain.JobController
	probe     domain.HealthProbe
	inspector domain.ProcessInspector
	telemetry domain.TelemetrySink
	logger    *zap.Logger

	group singleflight.Group
}

// NewSupervisor wires a supervisor from its collaborators.
func NewSupervisor(
	cfg SupervisorConfig,
	writer domain.DescriptorWriter,
	registrar domain.ServiceRegistrar,
	jobs domain.JobController,
	probe domain.HealthProbe,
	inspector domain.ProcessInspector,
	telemetry domain.TelemetrySink,
	logger *zap.Logger,
) *Supervisor {
	if telemetry == nil {
		telemetry = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HealthRetries <= 0 {
		cfg.HealthRetries = 6
	}
	if cfg.HealthRetryDelay <= 0 {
		cfg.HealthRetryDelay = 200 * time.Millisecond
	}
	return &Supervisor{
		cfg:       cfg,
		writer:    writer,
		registrar: registrar,
		jobs:      jobs,
		probe:     probe,
		inspector: inspector,
		telemetry: telemetry,
		logger:    logger,
	}
}

type nopSink struct{}

func (nopSink) Report(string, map[string]string) {}

// EnsureRunning installs, registers, and health-gates the agent. Concurrent
// calls (two app launches racing) collapse into one.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	_, err, _ := s.group.Do("ensure", func() (interface{}, error) {
		return nil, s.ensureRunning(ctx)
	})
	return err
}

func (s *Supervisor) ensureRunning(ctx context.Context) error {
	binary, err := s.resolveBinary()
	if err != nil {
		return err
	}

	// The descriptor write is idempotent, so it happens up front: both the
	// native and legacy paths register the same job file.
	descriptorPath, changed, err := s.writer.Write(binary)
	if err != nil {
		return err
	}
	s.logger.Debug("descriptor written",
		zap.String("path", descriptorPath),
		zap.Bool("changed", changed))

	result := s.registrar.Register(ctx, descriptorPath)
	switch result.Outcome {
	case domain.RegistrationSuccess:
		if s.waitHealthy(ctx) {
			s.cleanupLegacyDescriptor()
			s.logger.Info("agent registered and healthy")
			return nil
		}
		// Registration "succeeding" does not guarantee the process is
		// answering requests; fall through to the legacy path.
		s.telemetry.Report("daemon_native_unhealthy", map[string]string{
			"retries": strconv.Itoa(s.cfg.HealthRetries),
		})
		s.logger.Warn("native registration succeeded but agent is unhealthy, using legacy path")

	case domain.RegistrationRequiresApproval:
		// Needs a human action outside the program's control.
		return &domain.ApprovalRequiredError{Message: result.Message}

	case domain.RegistrationFailed:
		s.telemetry.Report("daemon_registration_failed", map[string]string{
			"message": result.Message,
		})
		s.logger.Warn("native registration failed, using legacy path",
			zap.String("message", result.Message))

	case domain.RegistrationUnavailable:
		s.logger.Debug("native registration unavailable, using legacy path",
			zap.String("message", result.Message))
	}

	return s.legacyInstall(ctx, changed)
}

// legacyInstall drives the legacy service manager: load if absent, reload
// on change when safe, and start with one forceful escalation.
func (s *Supervisor) legacyInstall(ctx context.Context, changed bool) error {
	info, err := s.jobs.Inspect(ctx)
	if err != nil {
		s.telemetry.Report("daemon_job_inspect_failed", map[string]string{
			"error": err.Error(),
		})
		info = domain.JobInfo{}
	}

	if !info.Loaded {
		if err := s.jobs.Load(ctx); err != nil {
			s.telemetry.Report("daemon_job_load_failed", map[string]string{
				"error": err.Error(),
			})
			return fmt.Errorf("could not load agent service: %v", err)
		}
	} else if changed && !info.Running {
		// Reload to pick up the new descriptor. Never disrupt a running,
		// unchanged job.
		_ = s.jobs.Unload(ctx)
		if err := s.jobs.Load(ctx); err != nil {
			s.telemetry.Report("daemon_job_reload_failed", map[string]string{
				"error": err.Error(),
			})
			return fmt.Errorf("could not reload agent service: %v", err)
		}
	}

	info, err = s.jobs.Inspect(ctx)
	if err == nil && info.Running && !changed {
		// Already running with an unchanged descriptor; avoid thrash on a
		// tight polling loop.
		return nil
	}

	if err := s.jobs.Start(ctx); err != nil {
		s.telemetry.Report("daemon_start_failed", map[string]string{
			"error": err.Error(),
		})
		if kerr := s.jobs.Kickstart(ctx); kerr != nil {
			s.telemetry.Report("daemon_kickstart_failed", map[string]string{
				"error": kerr.Error(),
			})
			return fmt.Errorf("could not start agent service: %v", kerr)
		}
	}

	s.logger.Info("agent service started via legacy path")
	return nil
}

// Disable mirrors install: native unregistration, then unconditional legacy
// cleanup. Already-absent is success throughout.
func (s *Supervisor) Disable(ctx context.Context) error {
	if err := s.registrar.Unregister(ctx); err != nil {
		s.telemetry.Report("daemon_unregister_failed", map[string]string{
			"error": err.Error(),
		})
	}
	if err := s.jobs.Unload(ctx); err != nil {
		s.telemetry.Report("daemon_unload_failed", map[string]string{
			"error": err.Error(),
		})
	}
	if err := s.writer.Remove(); err != nil {
		return err
	}
	s.logger.Info("agent disabled")
	return nil
}

// Status builds a fresh supervision snapshot. Never cached.
func (s *Supervisor) Status(ctx context.Context) domain.DaemonStatus {
	status := domain.DaemonStatus{}

	info, err := s.jobs.Inspect(ctx)
	if err == nil {
		status.Enabled = info.Loaded
	}

	health, healthy := s.probe.Status(ctx, s.cfg.SocketPath, s.cfg.ProbeTimeout)
	status.Healthy = healthy

	switch {
	case healthy:
		status.Message = "agent healthy"
		if health.PID > 0 {
			pid := health.PID
			status.PID = &pid
		}
		if health.Version != "" {
			version := health.Version
			status.Version = &version
		}
	case status.Enabled:
		status.Message = "agent enabled but not responding"
	default:
		status.Message = "agent not enabled"
	}

	// Fall back to the service manager's pid, then a process scan.
	if status.PID == nil && info.PID > 0 {
		pid := info.PID
		status.PID = &pid
	}
	if status.PID == nil && s.inspector != nil && s.cfg.AgentBinaryName != "" {
		if pid, ok := s.inspector.FindByName(s.cfg.AgentBinaryName); ok {
			status.PID = &pid
		}
	}
	return status
}

// waitHealthy polls the probe up to HealthRetries times with a fixed delay.
// Sequential, bounded; each attempt is independent.
func (s *Supervisor) waitHealthy(ctx context.Context) bool {
	for attempt := 0; attempt < s.cfg.HealthRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(s.cfg.HealthRetryDelay):
			}
		}
		if s.probe.Check(ctx, s.cfg.SocketPath, s.cfg.ProbeTimeout) {
			return true
		}
	}
	return false
}

// resolveBinary returns the first existing candidate. No retry: a missing
// binary is a packaging problem, not a transient one.
func (s *Supervisor) resolveBinary() (string, error) {
	for _, candidate := range s.cfg.BinaryCandidates {
		if candidate == "" {
			continue
		}
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0111 == 0 {
			continue
		}
		return filepath.Clean(candidate), nil
	}
	return "", fmt.Errorf("%w: looked in %d locations", domain.ErrAgentNotInstalled, len(s.cfg.BinaryCandidates))
}

// cleanupLegacyDescriptor removes a descriptor left by a prior version.
// Best effort; the native registration owns the job from here.
func (s *Supervisor) cleanupLegacyDescriptor() {
	if s.cfg.LegacyDescriptorPath == "" {
		return
	}
	if err := os.Remove(s.cfg.LegacyDescriptorPath); err != nil && !os.IsNotExist(err) {
		s.logger.Debug("could not remove legacy descriptor",
			zap.String("path", s.cfg.LegacyDescriptorPath),
			zap.Error(err))
	}
}
