package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// GopsutilInspector implements domain.ProcessInspector using gopsutil.
type GopsutilInspector struct{}

// NewProcessInspector creates a new process inspector.
func NewProcessInspector() *GopsutilInspector {
	return &GopsutilInspector{}
}

// FindByName returns the pid of the first process whose name matches
// (case-insensitive). Used to report an agent pid when the probe cannot.
func (GopsutilInspector) FindByName(name string) (int, bool) {
	procs, err := process.Processes()
	if err != nil {
		return 0, false
	}

	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.EqualFold(pname, name) {
			return int(p.Pid), true
		}
	}
	return 0, false
}

// IsRunning checks if a pid exists and is running.
func (GopsutilInspector) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	return proc.Signal(syscall.Signal(0)) == nil
}

// Ensure GopsutilInspector implements domain.ProcessInspector.
var _ domain.ProcessInspector = GopsutilInspector{}
