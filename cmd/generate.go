package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pvbess/config"
	"github.com/kilianp07/pvbess/core/series"
)

var inputsName string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the synthetic input series to CSV",
	RunE:  generate,
}

func init() {
	generateCmd.Flags().StringVar(&inputsName, "name", "inputs.csv", "file name under the output directory")
	rootCmd.AddCommand(generateCmd)
}

func generate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tbl, err := series.Generate(cfg.Series.Generator(cfg.ScenarioConfig()))
	if err != nil {
		return err
	}
	path, err := writeFile(inputsName, func(w io.Writer) error { return series.WriteCSV(w, tbl) })
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d steps written to %s\n", tbl.Len(), path)
	return nil
}
