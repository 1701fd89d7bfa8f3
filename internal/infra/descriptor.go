// Package infra implements infrastructure concerns (launchd, sockets, records).
package infra

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// AgentLabel is the launchd job label for the agent.
const AgentLabel = "com.claudehud.agent"

// LegacyAgentLabel was used by versions before the native registration path.
const LegacyAgentLabel = "com.claudehud.agent-helper"

// Launchd plist template for the agent LaunchAgent (runs as user).
const descriptorTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <true/>

    <key>ThrottleInterval</key>
    <integer>{{.ThrottleSeconds}}</integer>

    <key>ProcessType</key>
    <string>Background</string>

    <key>WorkingDirectory</key>
    <string>{{.WorkingDir}}</string>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>
{{if .Env}}
    <key>EnvironmentVariables</key>
    <dict>
{{range .Env}}        <key>{{.Key}}</key>
        <string>{{.Value}}</string>
{{end}}    </dict>
{{end}}</dict>
</plist>`

type envPair struct {
	Key   string
	Value string
}

type descriptorData struct {
	Label           string
	BinaryPath      string
	ThrottleSeconds int
	WorkingDir      string
	LogPath         string
	ErrorLogPath    string
	Env             []envPair
}

// DescriptorConfig holds the install-time parameters for the job file.
type DescriptorConfig struct {
	Label           string
	InstallDir      string // launchd agents directory
	LogDir          string
	WorkingDir      string
	ThrottleSeconds int
	Env             map[string]string // optional extra environment overrides
}

// LaunchdDescriptorWriter implements domain.DescriptorWriter with a launchd
// plist. Writes are atomic (temp + rename) and skipped when the rendered
// content matches what is on disk byte-for-byte.
type LaunchdDescriptorWriter struct {
	cfg  DescriptorConfig
	path string
}

// NewDescriptorWriter creates a writer installing under cfg.InstallDir.
func NewDescriptorWriter(cfg DescriptorConfig) *LaunchdDescriptorWriter {
	if cfg.Label == "" {
		cfg.Label = AgentLabel
	}
	if cfg.ThrottleSeconds <= 0 {
		cfg.ThrottleSeconds = 10
	}
	return &LaunchdDescriptorWriter{
		cfg:  cfg,
		path: filepath.Join(cfg.InstallDir, cfg.Label+".plist"),
	}
}

// Path returns the descriptor install path.
func (w *LaunchdDescriptorWriter) Path() string {
	return w.path
}

// Write renders the descriptor for binaryPath and installs it only when the
// content changed. Returns the descriptor path and whether a write happened.
func (w *LaunchdDescriptorWriter) Write(binaryPath string) (string, bool, error) {
	content, err := w.render(binaryPath)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrInstall, err)
	}

	if err := os.MkdirAll(w.cfg.InstallDir, 0755); err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrInstall, err)
	}
	if err := os.MkdirAll(w.cfg.LogDir, 0755); err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrInstall, err)
	}

	existing, err := os.ReadFile(w.path)
	if err == nil && bytes.Equal(existing, content) {
		return w.path, false, nil
	}

	if err := atomicWrite(w.path, content, 0644); err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrInstall, err)
	}
	return w.path, true, nil
}

// Remove deletes the descriptor; a missing file counts as success.
func (w *LaunchdDescriptorWriter) Remove() error {
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", domain.ErrInstall, err)
	}
	return nil
}

func (w *LaunchdDescriptorWriter) render(binaryPath string) ([]byte, error) {
	rev, err := binaryRevision(binaryPath)
	if err != nil {
		return nil, err
	}

	env := map[string]string{"CLAUDE_HUD_AGENT_REV": rev}
	for k, v := range w.cfg.Env {
		env[k] = v
	}
	pairs := make([]envPair, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, envPair{Key: k, Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

	workingDir := w.cfg.WorkingDir
	if workingDir == "" {
		workingDir = filepath.Dir(binaryPath)
	}

	data := descriptorData{
		Label:           w.cfg.Label,
		BinaryPath:      binaryPath,
		ThrottleSeconds: w.cfg.ThrottleSeconds,
		WorkingDir:      workingDir,
		LogPath:         filepath.Join(w.cfg.LogDir, "agent.log"),
		ErrorLogPath:    filepath.Join(w.cfg.LogDir, "agent.error.log"),
		Env:             pairs,
	}

	tmpl, err := template.New("descriptor").Parse(descriptorTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

// binaryRevision derives a token from the binary's size and mtime so a
// swapped binary changes the descriptor content and forces a reload.
func binaryRevision(binaryPath string) (string, error) {
	info, err := os.Stat(binaryPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", info.Size(), info.ModTime().Unix()), nil
}

// atomicWrite writes data to path via a temp file in the same directory plus
// rename, so concurrent writers converge instead of corrupting the file.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	success = true
	return nil
}

// Ensure LaunchdDescriptorWriter implements domain.DescriptorWriter.
var _ domain.DescriptorWriter = (*LaunchdDescriptorWriter)(nil)
