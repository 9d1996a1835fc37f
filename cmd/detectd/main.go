// Package main implements the detectd CLI: detector discovery for stabilizer
// circuits, as one-shot commands, an HTTP API, or a file watcher.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fyrsmithlabs/detectd/internal/config"
	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/fyrsmithlabs/detectd/internal/logging"
	"github.com/fyrsmithlabs/detectd/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configPath overrides the default config file lookup.
	configPath string
	// logLevel overrides logging.level from the config.
	logLevel string

	// Build information, set with -ldflags.
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "detectd",
	Short: "Find detectors in stabilizer circuits",
	Long: `detectd analyzes stabilizer circuits written in the stim text format and
finds detectors: sets of measurements whose combined parity is deterministic.

Circuits are split into fragments (resets, unitaries, measurements) and
repeat loops. Flows through each fragment are matched across fragment
boundaries, using a SAT solver when a flow has to be covered by several
others.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/detectd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

// app carries what every command needs, built from the loaded config.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
	svc    *detect.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lcfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(lcfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("problems", h.Problems))
	}

	svc := detect.New(
		detect.WithLogger(logger),
		detect.WithTelemetry(tel),
		detect.WithSearch(cfg.Search),
	)
	return &app{cfg: cfg, logger: logger, tel: tel, svc: svc}, nil
}

// close flushes telemetry and logs. Errors are logged, not returned.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// openInput returns the named file, or stdin for no argument or "-".
func openInput(cmd *cobra.Command, args []string) (string, io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return "stdin", io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	return args[0], f, nil
}
