// Command framesync keeps an image library in sync with a git remote.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/framesync/framesync/internal/config"
	"github.com/framesync/framesync/internal/logging"
	"github.com/framesync/framesync/internal/ui"
)

var (
	cfgFile    string
	noColor    bool
	jsonOutput bool

	cfg      *config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "framesync",
	Short: "Sync an image library with a git remote",
	Long: `framesync commits local image changes, pulls remote ones and pushes the
result, resolving divergence so that the remote always wins.

The working set is a git repository holding a content directory of images,
a thumbnail directory mirroring it and a metadata.json describing both.

Configuration is read from framesync.yaml in the working directory or the
user config directory, FRAMESYNC_* environment variables and flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./framesync.yaml, then the user config dir)")
	pf.String("repo", "", "path to the working set")
	pf.String("remote", "", "git remote to sync with")
	pf.String("branch", "", "branch syncs must run on (default: the current branch)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// setup loads the configuration and builds the logger for every command
func setup(cmd *cobra.Command, _ []string) error {
	ui.Init(noColor)

	c, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	l, closer, err := logging.New(logging.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	})
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	cfg, logger, closeLog = c, l, closer
	if c.File != "" {
		logger.Debug("loaded config", "file", c.File)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	_ = closeLog()
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, ui.FailLine(err.Error()))
		}
		os.Exit(exitCode(err))
	}
}
