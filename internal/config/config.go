// Package config holds the product constants and their overlay sources.
// Defaults come first, then an optional TOML file, then environment
// variables. All thresholds are named so tests and the file can tune them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// Environment variables consumed before supervision begins.
const (
	EnvDaemon   = "CLAUDE_HUD_DAEMON"    // enable supervision for this process
	EnvSocket   = "CLAUDE_HUD_SOCKET"    // socket-path override
	EnvDebug    = "CLAUDE_HUD_DEBUG"     // debug-logging override
	EnvLogLevel = "CLAUDE_HUD_LOG_LEVEL" // log-verbosity override
)

// Config is the resolved runtime configuration.
type Config struct {
	// Reconciliation thresholds.
	ThinkingStale  time.Duration // thinking flag older than this is ignored
	ReadyIdleStale time.Duration // unlocked ready records age out after this
	CoolingGrace   time.Duration // idle records stay "cooling" this long
	FlashDuration  time.Duration // transition flash lifetime

	// Supervision.
	ThrottleSeconds  int           // min seconds between automatic restarts
	ProbeTimeout     time.Duration // connect and symmetric read/write timeout
	HealthRetries    int           // probe attempts after native registration
	HealthRetryDelay time.Duration // fixed delay between probe attempts
	DaemonEnabled    bool          // supervision gate, from CLAUDE_HUD_DAEMON

	// Poll loop.
	TickInterval time.Duration

	// Paths.
	BaseDir    string // ~/.claude-hud
	SocketPath string

	// Logging.
	Debug    bool
	LogLevel string

	// Dashboard entries. Paths are normalized to absolute on load.
	Projects []domain.Project
}

// Default returns the product defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".claude-hud")
	return Config{
		ThinkingStale:    30 * time.Second,
		ReadyIdleStale:   120 * time.Second,
		CoolingGrace:     8 * time.Second,
		FlashDuration:    1400 * time.Millisecond,
		ThrottleSeconds:  10,
		ProbeTimeout:     600 * time.Millisecond,
		HealthRetries:    6,
		HealthRetryDelay: 200 * time.Millisecond,
		TickInterval:     time.Second,
		BaseDir:          base,
		SocketPath:       filepath.Join(base, "agent.sock"),
		LogLevel:         "info",
	}
}

// fileConfig is the TOML shape. Durations are seconds (floats allowed)
// so the file stays hand-editable.
type fileConfig struct {
	ThinkingStaleSecs  *float64         `toml:"thinking_stale_secs"`
	ReadyIdleStaleSecs *float64         `toml:"ready_idle_stale_secs"`
	CoolingGraceSecs   *float64         `toml:"cooling_grace_secs"`
	FlashSecs          *float64         `toml:"flash_secs"`
	ThrottleSecs       *int             `toml:"throttle_secs"`
	ProbeTimeoutMillis *int             `toml:"probe_timeout_ms"`
	HealthRetries      *int             `toml:"health_retries"`
	HealthRetryMillis  *int             `toml:"health_retry_ms"`
	TickMillis         *int             `toml:"tick_ms"`
	SocketPath         *string          `toml:"socket_path"`
	LogLevel           *string          `toml:"log_level"`
	Debug              *bool            `toml:"debug"`
	Projects           []domain.Project `toml:"projects"`
}

// Load resolves configuration: defaults, then the TOML file at path (missing
// file is fine), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else {
			applyFile(&cfg, fc)
		}
	}

	applyEnv(&cfg)
	normalizeProjects(&cfg)
	return cfg, nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude-hud", "config.toml")
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.ThinkingStaleSecs != nil {
		cfg.ThinkingStale = secs(*fc.ThinkingStaleSecs)
	}
	if fc.ReadyIdleStaleSecs != nil {
		cfg.ReadyIdleStale = secs(*fc.ReadyIdleStaleSecs)
	}
	if fc.CoolingGraceSecs != nil {
		cfg.CoolingGrace = secs(*fc.CoolingGraceSecs)
	}
	if fc.FlashSecs != nil {
		cfg.FlashDuration = secs(*fc.FlashSecs)
	}
	if fc.ThrottleSecs != nil {
		cfg.ThrottleSeconds = *fc.ThrottleSecs
	}
	if fc.ProbeTimeoutMillis != nil {
		cfg.ProbeTimeout = time.Duration(*fc.ProbeTimeoutMillis) * time.Millisecond
	}
	if fc.HealthRetries != nil {
		cfg.HealthRetries = *fc.HealthRetries
	}
	if fc.HealthRetryMillis != nil {
		cfg.HealthRetryDelay = time.Duration(*fc.HealthRetryMillis) * time.Millisecond
	}
	if fc.TickMillis != nil {
		cfg.TickInterval = time.Duration(*fc.TickMillis) * time.Millisecond
	}
	if fc.SocketPath != nil {
		cfg.SocketPath = *fc.SocketPath
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	if len(fc.Projects) > 0 {
		cfg.Projects = fc.Projects
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSocket); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv(EnvDaemon); v != "" {
		cfg.DaemonEnabled = truthy(v)
	}
	if v := os.Getenv(EnvDebug); v != "" {
		cfg.Debug = truthy(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func normalizeProjects(cfg *Config) {
	for i, p := range cfg.Projects {
		cleaned := filepath.Clean(p.Path)
		if abs, err := filepath.Abs(cleaned); err == nil {
			cleaned = abs
		}
		cfg.Projects[i].Path = cleaned
		if cfg.Projects[i].Name == "" {
			cfg.Projects[i].Name = filepath.Base(cleaned)
		}
	}
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "1"
	}
	return b
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// StateDir is where the agent publishes session records and locks.
func (c Config) StateDir() string {
	return filepath.Join(c.BaseDir, "state", "sessions")
}

// LogDir is where daemon and supervisor logs go.
func (c Config) LogDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// OrderDBPath is the persisted custom project order database.
func (c Config) OrderDBPath() string {
	return filepath.Join(c.BaseDir, "order.db")
}

// BinDir is the preferred agent binary install location.
func (c Config) BinDir() string {
	return filepath.Join(c.BaseDir, "bin")
}
