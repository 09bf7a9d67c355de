package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/pvbess/app/plugins"
	"github.com/kilianp07/pvbess/pkg/export"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the solvers, forecast providers, metrics sinks and log stores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return export.WriteYAML(cmd.OutOrStdout(), plugins.Available())
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
