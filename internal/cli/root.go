// Package cli wires configuration, logging and storage into the
// firewatch-server commands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand returns the firewatch-server command tree. Without a
// subcommand it serves.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "firewatch-server",
		Short:         "Re-streams site cameras as annotated MJPEG",
		Long:          `HTTP API and MJPEG streaming for site cameras. Commands: serve, seed, probe, service, version.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./firewatch-server.yaml)")

	root.AddCommand(
		newServeCommand(&cfgFile),
		newSeedCommand(&cfgFile),
		newProbeCommand(&cfgFile),
		newServiceCommand(&cfgFile),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and returns the error (for main to report).
func Execute() error {
	return NewRootCommand().Execute()
}
