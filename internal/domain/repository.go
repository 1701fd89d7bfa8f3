package domain

import (
	"context"
	"time"
)

// DescriptorWriter builds and installs the agent's service descriptor.
// Implementation: launchd plist rendered from a template, written atomically.
type DescriptorWriter interface {
	// Write renders the descriptor for binaryPath and installs it only if
	// its serialized form differs from what is on disk.
	Write(binaryPath string) (path string, changed bool, err error)

	// Remove deletes the descriptor. Absence counts as success.
	Remove() error

	// Path returns the descriptor install path.
	Path() string
}

// HealthProbe checks agent liveness over the local IPC socket.
// No retry logic lives here; retry policy belongs to the supervisor.
type HealthProbe interface {
	// Check returns true iff the agent answered a well-formed healthy
	// response within timeout. Failures are never errors.
	Check(ctx context.Context, socketPath string, timeout time.Duration) bool

	// Status is Check plus the optional pid/version detail from the response.
	Status(ctx context.Context, socketPath string, timeout time.Duration) (AgentHealth, bool)
}

// ServiceRegistrar wraps the OS-native managed-service API.
type ServiceRegistrar interface {
	// Register attempts native registration of the descriptor.
	Register(ctx context.Context, descriptorPath string) RegistrationResult

	// Unregister removes the native registration. Absence counts as success.
	Unregister(ctx context.Context) error
}

// JobController wraps the legacy service-manager CLI for the agent job.
type JobController interface {
	// Inspect queries the service manager for current job status.
	Inspect(ctx context.Context) (JobInfo, error)

	// Load registers the descriptor with the service manager.
	Load(ctx context.Context) error

	// Unload deregisters the job. Absence counts as success.
	Unload(ctx context.Context) error

	// Start issues a non-disruptive start of the loaded job.
	Start(ctx context.Context) error

	// Kickstart forcefully restarts the job. Last resort after Start fails.
	Kickstart(ctx context.Context) error
}

// RecordSource produces the raw per-path session records plus lock truth.
// Owned by the agent; this core only reads snapshots.
type RecordSource interface {
	// Snapshot returns all current records keyed by session path.
	Snapshot() (map[string]SessionRecord, error)
}

// ProcessInspector handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessInspector interface {
	// FindByName returns the pid of the first process matching name.
	FindByName(name string) (int, bool)

	// IsRunning checks if a pid exists and is running.
	IsRunning(pid int) bool
}

// CommandRunner executes external commands. Injected so supervision logic
// is testable without touching launchctl.
type CommandRunner interface {
	// Run executes name with args and returns combined output and exit code.
	// err is non-nil only when the command could not be started or exited
	// non-zero; exitCode is -1 when the command never ran.
	Run(ctx context.Context, name string, args ...string) (output string, exitCode int, err error)
}

// TelemetrySink receives non-fatal supervision events, fire-and-forget.
// Implementations must never let their own failure affect control flow.
type TelemetrySink interface {
	Report(event string, fields map[string]string)
}

// FramePresenter consumes one reconciled frame per tick.
type FramePresenter interface {
	Present(frame Frame)
}
