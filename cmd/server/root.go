package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Fitness AI plans backend",
		Long:          "server runs the Fitness AI HTTP API: sign-in, the plan feed and rate-limited plan posting.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          serveCmd.RunE,
	}

	rootCmd.AddCommand(
		serveCmd,
		newMigrateCmd(),
	)
	return rootCmd
}
