package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/framesync/framesync/internal/classify"
	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/ui"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show what a sync would upload and download",
	Long: `Show the images a sync would upload and download, the branch, the time
of the last successful sync and any unresolved conflict.

The remote is fetched first, so download counts are current. Status takes
no lock and can be run while a sync is in progress.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "list every changed image")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}

	report, err := eng.GetStatus(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), report)
	}
	printStatus(cmd.OutOrStdout(), report, statusVerbose)
	return nil
}

func printStatus(w io.Writer, r engine.StatusReport, verbose bool) {
	branch := r.Branch
	if r.IsMainBranch {
		branch += ui.RenderMuted(" (main)")
	}
	fmt.Fprintf(w, "%s %s\n", ui.RenderBold("Branch:   "), branch)

	last := ui.RenderMuted("never")
	if r.LastSyncTimestamp != "" {
		last = r.LastSyncTimestamp
	}
	fmt.Fprintf(w, "%s %s\n", ui.RenderBold("Last sync:"), last)

	fmt.Fprintf(w, "%s %s\n", ui.RenderBold("Upload:   "), describeBucket(r.Upload))
	if verbose {
		printItems(w, r.UploadItems)
	}
	fmt.Fprintf(w, "%s %s\n", ui.RenderBold("Download: "), describeBucket(r.Download))
	if verbose {
		printItems(w, r.DownloadItems)
	}

	if r.Conflict.HasConflicts {
		msg := fmt.Sprintf("conflict: %s", r.Conflict.ConflictType)
		if len(r.Conflict.ConflictedFiles) > 0 {
			msg += " (" + strings.Join(r.Conflict.ConflictedFiles, ", ") + ")"
		}
		fmt.Fprintln(w, ui.WarnLine(msg))
	}
	if r.SyncInProgress {
		fmt.Fprintln(w, ui.RenderAccent(ui.IconInfo)+" sync in progress")
	}
	if !r.HasChanges && !r.Conflict.HasConflicts {
		fmt.Fprintln(w, ui.PassLine("up to date"))
	}
}

// describeBucket renders "3 changes (1 new, 2 modified)"
func describeBucket(b classify.Bucket) string {
	if b.Count == 0 {
		return ui.RenderMuted("no changes")
	}
	var parts []string
	if b.NewImages > 0 {
		parts = append(parts, fmt.Sprintf("%d new", b.NewImages))
	}
	if b.ModifiedImages > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", b.ModifiedImages))
	}
	if b.DeletedImages > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", b.DeletedImages))
	}
	noun := "changes"
	if b.Count == 1 {
		noun = "change"
	}
	s := fmt.Sprintf("%d %s", b.Count, noun)
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	return s
}

func printItems(w io.Writer, items []classify.Item) {
	for _, it := range items {
		var mark string
		switch it.Kind {
		case classify.KindNew:
			mark = ui.RenderPass("+")
		case classify.KindDeleted:
			mark = ui.RenderFail("-")
		case classify.KindRenamed:
			fmt.Fprintf(w, "    %s %s -> %s\n", ui.RenderAccent("→"), it.OrigName, it.Name)
			continue
		default:
			mark = ui.RenderWarn("~")
		}
		fmt.Fprintf(w, "    %s %s\n", mark, it.Name)
	}
}
