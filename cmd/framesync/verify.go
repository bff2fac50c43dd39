package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/ui"
)

var verifyCmd = &cobra.Command{
	Use:     "verify",
	GroupID: "inspect",
	Short:   "Check the working set is set up for syncing",
	Long: `Check the remote, the branch, the git and git-lfs installations, LFS
tracking of images, the git identity and the metadata document. Nothing is
changed.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}

	report := eng.VerifyConfiguration(cmd.Context())

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printConfigReport(cmd.OutOrStdout(), report)
	}

	if !report.IsValid {
		return &exitError{code: exitConfig, err: errSilent}
	}
	return nil
}

func printConfigReport(w io.Writer, r engine.ConfigReport) {
	c := r.Checks

	check(w, c.RemoteURL != "", "remote", orNone(c.RemoteURL))

	branch := orNone(c.CurrentBranch)
	if c.ExpectedBranch != "" {
		branch += ui.RenderMuted(" (expected " + c.ExpectedBranch + ")")
	}
	check(w, c.CurrentBranch != "" && (c.ExpectedBranch == "" || c.CurrentBranch == c.ExpectedBranch), "branch", branch)

	check(w, c.GitVersion != "", "git", orNone(c.GitVersion))
	check(w, c.LFSVersion != "", "git-lfs", orNone(c.LFSVersion))
	check(w, c.LFSTracked, "lfs tracking", yesNo(c.LFSTracked))
	check(w, c.UserConfigured, "git identity", yesNo(c.UserConfigured))
	check(w, c.MetadataValid, "metadata", yesNo(c.MetadataValid))

	if len(r.Errors) > 0 {
		fmt.Fprintln(w)
		for _, e := range r.Errors {
			fmt.Fprintln(w, ui.FailLine(e))
		}
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.PassLine("configuration is valid"))
}

func check(w io.Writer, ok bool, name, value string) {
	icon := ui.RenderPass(ui.IconPass)
	if !ok {
		icon = ui.RenderFail(ui.IconFail)
	}
	fmt.Fprintf(w, "%s %-13s %s\n", icon, name, value)
}

func orNone(s string) string {
	if s == "" {
		return ui.RenderMuted("none")
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
