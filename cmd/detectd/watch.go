package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fyrsmithlabs/detectd/internal/events"
	"github.com/fyrsmithlabs/detectd/internal/monitor"
	"github.com/fyrsmithlabs/detectd/internal/watch"
	"github.com/spf13/cobra"
)

var watchTUI bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "show a live dashboard instead of one line per result")
}

var watchCmd = &cobra.Command{
	Use:   "watch path...",
	Short: "Re-annotate circuits when they change",
	Long: `Watch files or directories and re-annotate every *.stim file that is
written. Each result is written next to its circuit, with ".stim" replaced
by watch.output_suffix. When events.nats_url is set, every result is also
published to NATS under events.subject.

Runs until SIGINT or SIGTERM, or until q is pressed in the --tui dashboard.

Examples:
  detectd watch circuits/
  detectd watch --tui circuits/
  DETECTD_WATCH_MIN_INTERVAL=2s detectd watch memory.stim`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watchTUI && logLevel == "" {
		// Log lines would tear the dashboard.
		logLevel = "error"
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	w, err := watch.New(a.svc, a.logger, a.cfg.Watch)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, path := range args {
		if err := w.Add(path); err != nil {
			return err
		}
	}

	results := w.Results()
	if url := a.cfg.Events.NATSURL; url != "" {
		pub, err := events.Connect(url, a.cfg.Events.Subject, a.logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		results = pub.Forward(ctx, results)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()

	if watchTUI {
		p := tea.NewProgram(
			monitor.NewModel(results, args),
			tea.WithContext(ctx),
			tea.WithInput(cmd.InOrStdin()),
			tea.WithOutput(cmd.OutOrStdout()),
			tea.WithAltScreen(),
		)
		_, tuiErr := p.Run()
		stop()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
			return fmt.Errorf("dashboard failed: %w", tuiErr)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	for res := range results {
		if res.Err != nil {
			fmt.Fprintf(out, "%s: %v\n", res.Path, res.Err)
			continue
		}
		fmt.Fprintf(out, "%s: %d detectors -> %s\n", res.Path, res.Detectors, res.Output)
	}

	if err := <-errCh; err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
