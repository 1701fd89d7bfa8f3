// Package main is the CLI entry point for hud.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/petekp/claude-hud-sub006/internal/config"
	"github.com/petekp/claude-hud-sub006/internal/daemon"
	"github.com/petekp/claude-hud-sub006/internal/domain"
	"github.com/petekp/claude-hud-sub006/internal/infra"
	"github.com/petekp/claude-hud-sub006/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

const agentBinaryName = "claude-hud-agent"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hud",
	Short: "Live status dashboard core for coding-agent sessions",
	Long: `hud supervises the background agent that observes coding sessions and
reconciles its per-path records into one authoritative status per project.`,
	Version: Version,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install and start the background agent",
	Long: `Installs the agent's service descriptor, registers it with the service
manager (preferring the native registration API), and health-checks it.`,
	RunE: runEnable,
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop and unregister the background agent",
	RunE:  runDisable,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent health and per-project session status",
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the reconcile loop, logging one frame per tick",
	RunE:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	jsonOutput bool
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func runEnable(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, false)
	defer func() { _ = logger.Sync() }()

	supervisor := buildSupervisor(cfg, logger)
	err = supervisor.EnsureRunning(cmd.Context())

	var approval *domain.ApprovalRequiredError
	if errors.As(err, &approval) {
		fmt.Println(approval.Message)
		fmt.Println("\nApprove the background item, then run 'hud enable' again.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("Agent enabled.")
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, false)
	defer func() { _ = logger.Sync() }()

	if err := buildSupervisor(cfg, logger).Disable(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Agent disabled.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, false)
	defer func() { _ = logger.Sync() }()

	supervisor := buildSupervisor(cfg, logger)
	status := supervisor.Status(cmd.Context())

	fmt.Println("\n=== Agent ===")
	fmt.Printf("Enabled: %v\n", status.Enabled)
	fmt.Printf("Healthy: %v\n", status.Healthy)
	fmt.Printf("Message: %s\n", status.Message)
	if status.PID != nil {
		fmt.Printf("PID:     %d\n", *status.PID)
	}
	if status.Version != nil {
		fmt.Printf("Version: %s\n", *status.Version)
	}

	if len(cfg.Projects) == 0 {
		fmt.Println("\nNo projects configured. Add [[projects]] entries to", configPath)
		return nil
	}

	source := infra.NewFileRecordSource(cfg.StateDir(), logger)
	records, err := source.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to read session records: %w", err)
	}

	now := time.Now()
	reconciler := usecase.NewReconciler(cfg.ThinkingStale, cfg.ReadyIdleStale)
	classifier := usecase.NewClassifier(cfg.CoolingGrace)
	states := reconciler.Reconcile(records, cfg.Projects, now)
	bands := classifier.ClassifyAll(cfg.Projects, states, now)

	fmt.Println("\n=== Projects ===")
	for _, p := range cfg.Projects {
		if cs, ok := states[p.Path]; ok {
			fmt.Printf("%-24s %-10s (%s)\n", p.Name, cs.Record.State, bands[p.Path])
		} else {
			fmt.Printf("%-24s %-10s (%s)\n", p.Name, "no session", bands[p.Path])
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, true)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Supervision runs on demand in the background, never on the tick.
	if cfg.DaemonEnabled {
		supervisor := buildSupervisor(cfg, logger)
		go func() {
			if err := supervisor.EnsureRunning(ctx); err != nil {
				logger.Warn("agent supervision failed", zap.Error(err))
			}
		}()
	} else {
		logger.Info("supervision disabled", zap.String("env", config.EnvDaemon))
	}

	source := infra.NewFileRecordSource(cfg.StateDir(), logger)
	wake, err := source.Watch(ctx)
	if err != nil {
		logger.Warn("record watcher unavailable, ticking only", zap.Error(err))
		wake = nil
	}

	var orders daemon.OrderProvider
	if store, err := infra.OpenOrderStore(cfg.OrderDBPath()); err != nil {
		logger.Warn("order store unavailable", zap.Error(err))
	} else {
		defer store.Close()
		orders = store
	}

	poller := daemon.NewPoller(
		daemon.PollerConfig{TickInterval: cfg.TickInterval},
		cfg.Projects,
		source,
		usecase.NewReconciler(cfg.ThinkingStale, cfg.ReadyIdleStale),
		usecase.NewClassifier(cfg.CoolingGrace),
		usecase.NewNotifier(cfg.FlashDuration),
		orders,
		&logPresenter{logger: logger},
		wake,
		logger,
	)

	err = poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("hud %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	}
}

// logPresenter logs one line per frame. The real UI is a separate consumer.
type logPresenter struct {
	logger *zap.Logger
}

func (p *logPresenter) Present(frame domain.Frame) {
	active := 0
	for _, band := range frame.Bands {
		if band == domain.BandActive || band == domain.BandCooling {
			active++
		}
	}
	p.logger.Info("frame",
		zap.Int("projects", len(frame.Projects)),
		zap.Int("sessions", len(frame.States)),
		zap.Int("active", active),
		zap.Int("flashes", len(frame.Flashes)))
}

func buildSupervisor(cfg config.Config, logger *zap.Logger) *usecase.Supervisor {
	runner := infra.NewCommandRunner()

	home, _ := os.UserHomeDir()
	installDir := filepath.Join(home, "Library", "LaunchAgents")

	writer := infra.NewDescriptorWriter(infra.DescriptorConfig{
		Label:           infra.AgentLabel,
		InstallDir:      installDir,
		LogDir:          cfg.LogDir(),
		ThrottleSeconds: cfg.ThrottleSeconds,
		Env:             descriptorEnv(cfg),
	})

	supervisorCfg := usecase.SupervisorConfig{
		BinaryCandidates:     binaryCandidates(cfg),
		AgentBinaryName:      agentBinaryName,
		SocketPath:           cfg.SocketPath,
		ProbeTimeout:         cfg.ProbeTimeout,
		HealthRetries:        cfg.HealthRetries,
		HealthRetryDelay:     cfg.HealthRetryDelay,
		LegacyDescriptorPath: filepath.Join(installDir, infra.LegacyAgentLabel+".plist"),
	}

	return usecase.NewSupervisor(
		supervisorCfg,
		writer,
		infra.NewServiceRegistrar(runner, infra.AgentLabel),
		infra.NewJobController(runner, infra.AgentLabel, writer.Path()),
		infra.NewHealthProbe(),
		infra.NewProcessInspector(),
		infra.NewLogSink(logger),
		logger,
	)
}

// descriptorEnv propagates logging overrides into the agent's environment
// in debug builds only.
func descriptorEnv(cfg config.Config) map[string]string {
	if !cfg.Debug {
		return nil
	}
	env := map[string]string{config.EnvDebug: "1"}
	if cfg.LogLevel != "" {
		env[config.EnvLogLevel] = cfg.LogLevel
	}
	return env
}

// binaryCandidates is the ordered list of agent binary locations.
func binaryCandidates(cfg config.Config) []string {
	candidates := make([]string, 0, 4)
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), agentBinaryName))
	}
	candidates = append(candidates,
		filepath.Join(cfg.BinDir(), agentBinaryName),
		filepath.Join("/usr/local/bin", agentBinaryName),
	)
	if found, err := exec.LookPath(agentBinaryName); err == nil {
		candidates = append(candidates, found)
	}
	return candidates
}

func newLogger(cfg config.Config, toFile bool) *zap.Logger {
	level := zapcore.WarnLevel
	if toFile {
		level = zapcore.InfoLevel
	}
	if cfg.Debug {
		level = zapcore.DebugLevel
	}
	if parsed, err := zapcore.ParseLevel(cfg.LogLevel); err == nil && parsed < level {
		level = parsed
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if toFile {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir(), "hud.log"),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     10, // days
			Compress:   true,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, level)
	return zap.New(core)
}
