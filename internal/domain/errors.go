package domain

import (
	"errors"
	"fmt"
)

// ErrAgentNotInstalled means no agent binary was found in any candidate
// location. This is a packaging problem, not transient; never retried.
var ErrAgentNotInstalled = errors.New("agent binary not installed")

// ErrInstall wraps filesystem failures while installing the service
// descriptor. Fatal for the call that hit it.
var ErrInstall = errors.New("descriptor install failed")

// ApprovalRequiredError is returned when native registration needs a human
// action (e.g. approving the login item in system settings). The message is
// surfaced verbatim and blocks further automatic action.
type ApprovalRequiredError struct {
	Message string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("approval required: %s", e.Message)
}
