// -----------------------------------------------------------------------
// Last Modified: Thursday, 30th July 2026 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vetting-core/internal/app"
	"github.com/ternarybob/vetting-core/internal/common"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and health server",
	Long:  "Starts the vetting/publish/digest cycle scheduler and serves the health and cron-trigger HTTP endpoints until interrupted.",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	common.PrintBanner(config, logger)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start application")
	}

	logger.Info().
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("vetting-core ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")
	common.PrintShutdownBanner(logger)

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}
