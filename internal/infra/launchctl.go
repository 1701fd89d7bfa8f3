package infra

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// launchctlListPID matches the PID line of `launchctl list <label>` output.
var launchctlListPID = regexp.MustCompile(`"PID"\s*=\s*(\d+)`)

// LaunchctlController implements domain.JobController by shelling out to
// the legacy launchctl load/unload/start interface.
// Note: `launchctl load` is deprecated but still works on macOS; the modern
// bootstrap path lives in LaunchctlRegistrar.
type LaunchctlController struct {
	runner         domain.CommandRunner
	label          string
	descriptorPath string
	uid            int
}

// NewJobController creates a controller for the job described at
// descriptorPath with the given label.
func NewJobController(runner domain.CommandRunner, label, descriptorPath string) *LaunchctlController {
	return &LaunchctlController{
		runner:         runner,
		label:          label,
		descriptorPath: descriptorPath,
		uid:            os.Getuid(),
	}
}

// Inspect queries launchctl for the job. A non-zero exit means not loaded.
func (c *LaunchctlController) Inspect(ctx context.Context) (domain.JobInfo, error) {
	out, code, err := c.runner.Run(ctx, "launchctl", "list", c.label)
	if code == -1 {
		return domain.JobInfo{}, fmt.Errorf("launchctl not available: %w", err)
	}
	if code != 0 {
		return domain.JobInfo{}, nil
	}

	info := domain.JobInfo{Loaded: true}
	if m := launchctlListPID.FindStringSubmatch(out); m != nil {
		if pid, err := strconv.Atoi(m[1]); err == nil && pid > 0 {
			info.PID = pid
			info.Running = true
		}
	}
	return info, nil
}

// Load registers the descriptor with launchd.
func (c *LaunchctlController) Load(ctx context.Context) error {
	out, _, err := c.runner.Run(ctx, "launchctl", "load", "-w", c.descriptorPath)
	if err != nil {
		return fmt.Errorf("launchctl load failed: %s", firstLine(out, err))
	}
	return nil
}

// Unload deregisters the job; an already-absent job counts as success.
func (c *LaunchctlController) Unload(ctx context.Context) error {
	out, code, err := c.runner.Run(ctx, "launchctl", "unload", c.descriptorPath)
	if err == nil || code > 0 {
		// Non-zero exit here means the job was not loaded.
		return nil
	}
	return fmt.Errorf("launchctl unload failed: %s", firstLine(out, err))
}

// Start issues a non-disruptive start of the loaded job.
func (c *LaunchctlController) Start(ctx context.Context) error {
	out, _, err := c.runner.Run(ctx, "launchctl", "start", c.label)
	if err != nil {
		return fmt.Errorf("launchctl start failed: %s", firstLine(out, err))
	}
	return nil
}

// Kickstart forcefully restarts the job. Last resort after Start fails.
func (c *LaunchctlController) Kickstart(ctx context.Context) error {
	target := fmt.Sprintf("gui/%d/%s", c.uid, c.label)
	out, _, err := c.runner.Run(ctx, "launchctl", "kickstart", "-k", target)
	if err != nil {
		return fmt.Errorf("launchctl kickstart failed: %s", firstLine(out, err))
	}
	return nil
}

func firstLine(out string, err error) string {
	for i := 0; i < len(out); i++ {
		if out[i] == '\n' {
			out = out[:i]
			break
		}
	}
	if out == "" {
		return err.Error()
	}
	return out
}

// Ensure LaunchctlController implements domain.JobController.
var _ domain.JobController = (*LaunchctlController)(nil)
