package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edirooss/firewatch-server/internal/config"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "firewatch-server %s (commit %s, built %s)\n",
				config.Version, config.GitCommit, config.BuildDate)
		},
	}
}
