// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// SessionState is the agent-reported status of a coding session.
type SessionState string

const (
	StateWorking    SessionState = "working"
	StateReady      SessionState = "ready"
	StateWaiting    SessionState = "waiting"
	StateCompacting SessionState = "compacting"
	StateIdle       SessionState = "idle"
)

// Valid reports whether s is one of the five known states.
func (s SessionState) Valid() bool {
	switch s {
	case StateWorking, StateReady, StateWaiting, StateCompacting, StateIdle:
		return true
	}
	return false
}

// ContextInfo carries the timestamp of the last context update for a session.
type ContextInfo struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRecord is one raw per-path signal published by the agent.
// Records are read-only to this core; absence means "no session".
type SessionRecord struct {
	State          SessionState `json:"state"`
	StateChangedAt *time.Time   `json:"state_changed_at,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
	WorkingOn      string       `json:"working_on,omitempty"`
	Context        *ContextInfo `json:"context,omitempty"`
	Thinking       *bool        `json:"thinking,omitempty"`

	// IsLocked is derived from presence-lock files, not the record body.
	IsLocked bool `json:"-"`
}

// Project identifies one dashboard entry. Identity is the normalized
// absolute path; sub-paths are matched by prefix against it.
type Project struct {
	Path string `json:"path" toml:"path"`
	Name string `json:"name" toml:"name"`
}

// CanonicalState is the reconciler's output for one project: the derived
// record plus provenance. Recomputed every cycle, never persisted.
type CanonicalState struct {
	Record     SessionRecord
	SourcePath string // raw record path the derivation started from

	LockInherited      bool // lock truth came from the project root record
	ThinkingOverridden bool // thinking flag suppressed as stale
	AgedOut            bool // ready record aged out to idle
	Promoted           bool // locked record promoted off idle
}

// ActivityBand classifies a project for list ordering.
type ActivityBand int

const (
	BandIdle ActivityBand = iota
	BandCooling
	BandActive
)

func (b ActivityBand) String() string {
	switch b {
	case BandActive:
		return "active"
	case BandCooling:
		return "cooling"
	default:
		return "idle"
	}
}

// DaemonStatus is a fresh snapshot of agent supervision state.
// Never cached across process restarts.
type DaemonStatus struct {
	Enabled bool
	Healthy bool
	Message string
	PID     *int
	Version *string
}

// RegistrationOutcome is the result class of a native service registration.
type RegistrationOutcome int

const (
	RegistrationSuccess RegistrationOutcome = iota
	RegistrationUnavailable
	RegistrationRequiresApproval
	RegistrationFailed
)

// RegistrationResult drives the supervisor's fallback branch.
type RegistrationResult struct {
	Outcome RegistrationOutcome
	Message string
}

// AgentHealth is the optional detail returned by a successful health probe.
type AgentHealth struct {
	PID     int
	Version string
}

// JobInfo describes the service manager's view of the legacy job.
type JobInfo struct {
	Loaded  bool
	PID     int
	Running bool
}

// Flash is a time-boxed transition signal for the presentation layer.
type Flash struct {
	ProjectPath string
	State       SessionState
	ExpiresAt   time.Time
}

// Active reports whether the flash should still be shown at now.
func (f Flash) Active(now time.Time) bool {
	return now.Before(f.ExpiresAt)
}

// Frame is one reconciled snapshot handed to the presenter per tick.
type Frame struct {
	At       time.Time
	Projects []Project // custom order applied, active-or-cooling first
	States   map[string]CanonicalState
	Bands    map[string]ActivityBand
	Flashes  []Flash
}
