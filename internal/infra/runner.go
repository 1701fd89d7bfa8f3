package infra

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// ExecRunner implements domain.CommandRunner with os/exec.
type ExecRunner struct{}

// NewCommandRunner creates a real command runner.
func NewCommandRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args, returning combined output and exit code.
// exitCode is -1 when the command never ran (e.g. binary not found).
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := strings.TrimRight(buf.String(), "\n")
	if err == nil {
		return output, 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return output, exitErr.ExitCode(), err
	}
	return output, -1, err
}

// Ensure ExecRunner implements domain.CommandRunner.
var _ domain.CommandRunner = ExecRunner{}
