package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/ui"
)

var renameCmd = &cobra.Command{
	Use:     "rename <image> <new-name>",
	GroupID: "advanced",
	Short:   "Rename an image with its thumbnail and metadata entry",
	Long: `Rename an image in the content directory together with its thumbnail and
its metadata entry. Names are relative to the content directory. The rename
is committed by the next sync.`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}

	from, to := args[0], args[1]
	if err := eng.RenameImage(cmd.Context(), from, to); err != nil {
		if errors.Is(err, engine.ErrBusy) {
			return &exitError{code: exitBusy, err: err}
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.PassLine(fmt.Sprintf("renamed %s to %s", from, to)))
	return nil
}
