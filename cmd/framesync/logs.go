package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/ui"
)

var (
	logsSince string
	logsLimit int
	logsYes   bool

	// canPrompt reports whether a confirmation can be asked for
	canPrompt = ui.IsInteractive
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	GroupID: "inspect",
	Short:   "Show the sync log",
	Long: `Show recorded syncs, pulls, lock recoveries and renames, newest first.

--since accepts an RFC 3339 timestamp, a duration such as 36h, or a phrase
such as "yesterday" or "last monday".

Examples:
  framesync logs --limit 10
  framesync logs --since "2 days ago"
  framesync logs --since 2026-01-01T00:00:00Z --json`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every sync log entry",
	Args:  cobra.NoArgs,
	RunE:  runLogsClear,
}

func init() {
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only show entries at or after this time")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0, "show at most this many entries (0 shows all)")
	logsClearCmd.Flags().BoolVarP(&logsYes, "yes", "y", false, "do not ask for confirmation")

	logsCmd.AddCommand(logsClearCmd)
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	if logsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	since, err := parseSince(logsSince, time.Now())
	if err != nil {
		return err
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	entries, err := eng.GetSyncLogs()
	if err != nil {
		return err
	}
	entries = synclog.Filter(entries, since, logsLimit)

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func runLogsClear(cmd *cobra.Command, _ []string) error {
	if !logsYes {
		if !canPrompt() {
			return fmt.Errorf("refusing to clear the sync log without --yes")
		}
		confirmed := false
		err := huh.NewConfirm().
			Title("Delete the entire sync log?").
			Description("Sync history cannot be recovered afterwards.").
			Affirmative("Delete").
			Negative("Keep").
			Value(&confirmed).
			Run()
		if errors.Is(err, huh.ErrUserAborted) {
			confirmed = false
		} else if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("sync log kept"))
			return nil
		}
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	if err := eng.ClearSyncLogs(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.PassLine("sync log cleared"))
	return nil
}

// parseSince turns --since into a time. Empty means no bound.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, text, now.Location()); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(text); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("--since %q: duration must not be negative", text)
		}
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("--since %q: not a time, duration or date phrase", text)
	}
	return r.Time, nil
}

func printEntries(w io.Writer, entries []synclog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no sync log entries"))
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s %-13s %s\n",
			statusIcon(e.Status),
			ui.RenderMuted(e.Timestamp.Local().Format("2006-01-02 15:04:05")),
			e.Operation,
			e.Message,
		)
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", ui.RenderFail(e.Error))
		}
		for _, s := range e.LostChanges {
			fmt.Fprintf(w, "    %s %s\n", ui.RenderFail("-"), s)
		}
	}
}

func statusIcon(s synclog.Status) string {
	switch s {
	case synclog.StatusSuccess:
		return ui.RenderPass(ui.IconPass)
	case synclog.StatusWarning:
		return ui.RenderWarn(ui.IconWarn)
	case synclog.StatusFailure:
		return ui.RenderFail(ui.IconFail)
	}
	return ui.RenderAccent(ui.IconInfo)
}
