package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	httpapi "github.com/fyrsmithlabs/detectd/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default server.http_host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default server.http_port)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the detectd HTTP API",
	Long: `Serve the detectd HTTP API until SIGINT or SIGTERM.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/v1/fragments
  POST /api/v1/annotate
  POST /api/v1/cover`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := &httpapi.Config{
		Host:    a.cfg.Server.Host,
		Port:    a.cfg.Server.Port,
		Version: version,
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	srv, err := httpapi.NewServer(a.svc, a.tel, a.logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "received shutdown signal",
		zap.Duration("shutdown_timeout", a.cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}
