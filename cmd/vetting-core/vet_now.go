package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vetting-core/internal/app"
)

var vetNowCmd = &cobra.Command{
	Use:   "vet-now",
	Short: "Run one vetting cycle immediately and exit",
	Run: func(cmd *cobra.Command, args []string) {
		application, err := app.New(config, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize application")
		}
		defer application.Close()

		if err := application.Pipeline.Run(context.Background()); err != nil {
			logger.Error().Err(err).Msg("vetting cycle failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(vetNowCmd)
}
