package infra

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// LaunchctlRegistrar implements domain.ServiceRegistrar with the modern
// `launchctl bootstrap` / `bootout` interface. Bootstrap survives app
// updates and needs no privileged socket control, but can require the user
// to approve the background item in System Settings.
type LaunchctlRegistrar struct {
	runner domain.CommandRunner
	label  string
	uid    int
}

// NewServiceRegistrar creates a registrar for the given job label.
func NewServiceRegistrar(runner domain.CommandRunner, label string) *LaunchctlRegistrar {
	return &LaunchctlRegistrar{runner: runner, label: label, uid: os.Getuid()}
}

// Register bootstraps the descriptor into the user's gui domain.
func (r *LaunchctlRegistrar) Register(ctx context.Context, descriptorPath string) domain.RegistrationResult {
	target := fmt.Sprintf("gui/%d", r.uid)
	out, code, err := r.runner.Run(ctx, "launchctl", "bootstrap", target, descriptorPath)
	if code == -1 {
		return domain.RegistrationResult{
			Outcome: domain.RegistrationUnavailable,
			Message: fmt.Sprintf("launchctl not available: %v", err),
		}
	}
	if code == 0 {
		return domain.RegistrationResult{Outcome: domain.RegistrationSuccess}
	}

	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "already bootstrapped"),
		strings.Contains(lower, "service already loaded"):
		return domain.RegistrationResult{Outcome: domain.RegistrationSuccess}
	case strings.Contains(lower, "not privileged"),
		strings.Contains(lower, "requires approval"),
		strings.Contains(lower, "operation not permitted"):
		msg := strings.TrimSpace(out)
		if msg == "" {
			msg = "background item requires approval in System Settings"
		}
		return domain.RegistrationResult{Outcome: domain.RegistrationRequiresApproval, Message: msg}
	case strings.Contains(lower, "unknown subcommand"),
		strings.Contains(lower, "usage: launchctl"):
		// Old launchctl without bootstrap support.
		return domain.RegistrationResult{Outcome: domain.RegistrationUnavailable, Message: strings.TrimSpace(out)}
	default:
		msg := strings.TrimSpace(out)
		if msg == "" {
			msg = fmt.Sprintf("launchctl bootstrap exited %d", code)
		}
		return domain.RegistrationResult{Outcome: domain.RegistrationFailed, Message: msg}
	}
}

// Unregister removes the native registration; absence counts as success.
func (r *LaunchctlRegistrar) Unregister(ctx context.Context) error {
	target := fmt.Sprintf("gui/%d/%s", r.uid, r.label)
	out, code, err := r.runner.Run(ctx, "launchctl", "bootout", target)
	if err == nil || code > 0 {
		// Non-zero exit means the service was not bootstrapped.
		return nil
	}
	return fmt.Errorf("launchctl bootout failed: %s", firstLine(out, err))
}

// Ensure LaunchctlRegistrar implements domain.ServiceRegistrar.
var _ domain.ServiceRegistrar = (*LaunchctlRegistrar)(nil)
