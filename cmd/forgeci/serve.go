package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgeci/forgeci/pkg/api"
	"github.com/forgeci/forgeci/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook gateway server",
	Long: `Start the forgeci gateway: webhook ingestion endpoints, dispatch
queue hand-off, and the build/test-run ledger database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	srv := api.NewServer(log, cfg)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down gateway server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping gateway server: %w", err)
	}

	return nil
}
