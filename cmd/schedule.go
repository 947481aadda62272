package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/mlbdfs/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the flatten job on its cron schedule",
	Long: `Starts a long running service that flattens the snapshot on the configured
cron schedule. With Redis configured only the elected leader runs the job, and a
slot missed while no instance was up is caught up on start.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	applyLogLevel(cmd, config)

	logger.Info("Configuration loaded")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := engine.NewService(ctx, logger, config)
	if err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		_ = app.Stop()
		return err
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown, the context is cancelled once the scheduler has stopped
	return app.Stop()
}
