package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Commit, pull and push the working set",
	Long: `Run a full sync: validate and commit local image changes, pull the
remote branch and push the result.

When local and remote history diverge the remote wins. Local changes that
were discarded are listed in the output and in the sync log.

Exit status is 75 when another sync holds the lock, 65 when new files were
rejected, 69 when the remote could not be reached and 78 on configuration
errors.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Pull remote commits if the working set is behind and clean",
	Long: `Pull the remote branch, but only when the local branch is strictly behind
it and the working set has no uncommitted changes. Anything else is
reported as skipped and left for a full sync.`,
	Args: cobra.NoArgs,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(syncCmd, pullCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}

	res := eng.PerformFullSync(cmd.Context())

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printSyncResult(cmd.OutOrStdout(), res)
	}

	switch {
	case res.Busy:
		return failed(engine.KindBusy)
	case !res.Success:
		return failed(res.ErrorKind)
	}
	return nil
}

func printSyncResult(w io.Writer, res engine.SyncResult) {
	switch {
	case res.Busy:
		fmt.Fprintln(w, ui.WarnLine("another sync is in progress, try again later"))
		return
	case !res.Success:
		msg := "sync failed"
		if res.ErrorKind != "" {
			msg += " (" + string(res.ErrorKind) + ")"
		}
		fmt.Fprintln(w, ui.FailLine(msg+": "+res.Error))
		for _, rej := range res.ValidationErrors {
			fmt.Fprintf(w, "    %s %s: %s\n", ui.RenderFail("-"), rej.File, rej.Reason)
		}
		if len(res.CleanedUpImages) > 0 {
			fmt.Fprintf(w, "  removed: %s\n", strings.Join(res.CleanedUpImages, ", "))
		}
		return
	}

	if res.Recovered {
		fmt.Fprintln(w, ui.WarnLine("cleared a stale lock left by an earlier sync"))
	}
	if res.Committed {
		fmt.Fprintln(w, ui.PassLine(fmt.Sprintf("committed %s %s", shortHash(res.CommitHash), res.CommitMessage)))
	}
	if res.AutoResolvedConflict {
		fmt.Fprintln(w, ui.WarnLine(fmt.Sprintf("%s resolved in favour of the remote", res.ConflictType)))
		if len(res.LostChangesSummary) > 0 {
			fmt.Fprintln(w, "  discarded local changes:")
			for _, s := range res.LostChangesSummary {
				fmt.Fprintf(w, "    %s %s\n", ui.RenderFail("-"), s)
			}
		}
	}
	if len(res.RemoteChangesSummary) > 0 {
		fmt.Fprintln(w, "  received:")
		for _, s := range res.RemoteChangesSummary {
			fmt.Fprintf(w, "    %s %s\n", ui.RenderPass("+"), s)
		}
	}

	msg := "synced"
	if res.Branch != "" {
		msg += " " + res.Branch
	}
	if res.RemoteCommit != "" {
		msg += " at " + shortHash(res.RemoteCommit)
	}
	fmt.Fprintln(w, ui.PassLine(msg))
}

func runPull(cmd *cobra.Command, _ []string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}

	rep := eng.CheckAndPullIfBehind(cmd.Context())

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	} else {
		printPullReport(cmd.OutOrStdout(), rep)
	}

	if !rep.Success {
		return failed(rep.ErrorKind)
	}
	return nil
}

func printPullReport(w io.Writer, rep engine.PullReport) {
	switch {
	case !rep.Success:
		fmt.Fprintln(w, ui.FailLine("pull failed: "+rep.Error))
	case rep.Skipped:
		fmt.Fprintln(w, ui.WarnLine("pull skipped: "+rep.Reason))
		for _, f := range rep.UncommittedFiles {
			fmt.Fprintf(w, "    %s %s\n", ui.RenderWarn("~"), f)
		}
	case rep.PulledChanges:
		noun := "commits"
		if rep.CommitsReceived == 1 {
			noun = "commit"
		}
		fmt.Fprintln(w, ui.PassLine(fmt.Sprintf("pulled %d %s", rep.CommitsReceived, noun)))
		for _, s := range rep.RemoteChanges {
			fmt.Fprintf(w, "    %s %s\n", ui.RenderPass("+"), s)
		}
	default:
		msg := "already up to date"
		if rep.Message != "" {
			msg = rep.Message
		}
		fmt.Fprintln(w, ui.PassLine(msg))
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
