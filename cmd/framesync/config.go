package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framesync/framesync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, FRAMESYNC_*
environment variables and flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	source := ui.RenderMuted("# no config file, defaults and environment only")
	if cfg.File != "" {
		source = ui.RenderMuted("# " + cfg.File)
	}
	fmt.Fprintln(w, source)
	_, err = w.Write(out)
	return err
}
