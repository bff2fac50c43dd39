package sync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/vcs"
)

// VerifyConfiguration checks that the working set can sync. Problems are
// reported, never corrected.
func (e *Engine) VerifyConfiguration(ctx context.Context) ConfigReport {
	rep := ConfigReport{Checks: ConfigChecks{ExpectedBranch: e.cfg.Branch}}
	problem := func(format string, args ...any) {
		rep.Errors = append(rep.Errors, fmt.Sprintf(format, args...))
	}

	if url, err := e.vcs.RemoteURL(ctx, e.cfg.Remote); err != nil {
		problem("remote %q is not configured", e.cfg.Remote)
	} else {
		rep.Checks.RemoteURL = url
	}

	switch branch, err := e.vcs.CurrentRef(ctx); {
	case errors.Is(err, vcs.ErrDetached):
		problem("HEAD is detached, check out %s", e.expectedBranch())
	case err != nil:
		problem("cannot read current branch: %v", err)
	default:
		rep.Checks.CurrentBranch = branch
		if e.cfg.Branch != "" && branch != e.cfg.Branch {
			problem("on branch %q, expected %q", branch, e.cfg.Branch)
		}
	}

	if version, err := e.vcs.Version(ctx); err != nil {
		problem("git is not available: %v", err)
	} else {
		rep.Checks.GitVersion = version
		if !versionAtLeast(version, e.cfg.MinGitVersion) {
			problem("git %s is older than the required %s", version, e.cfg.MinGitVersion)
		}
	}

	tracked, err := lfsTracked(e.cfg.Layout)
	if err != nil {
		problem("cannot read .gitattributes: %v", err)
	}
	rep.Checks.LFSTracked = tracked
	if version, err := e.vcs.LFSVersion(ctx); err == nil {
		rep.Checks.LFSVersion = version
	} else if tracked {
		problem("images are tracked with git-lfs but git-lfs is not installed")
	}

	name, _ := e.vcs.ConfigGet(ctx, "user.name")
	email, _ := e.vcs.ConfigGet(ctx, "user.email")
	rep.Checks.UserConfigured = name != "" && email != ""
	if !rep.Checks.UserConfigured {
		problem("git user.name and user.email must be set")
	}

	doc, err := e.cfg.Layout.ReadMetadata()
	switch {
	case err != nil:
		problem("cannot read %s: %v", e.cfg.Layout.MetadataFile, err)
	case doc == nil:
		rep.Checks.MetadataValid = true
	default:
		if err := library.ValidateMetadata(doc); err != nil {
			problem("%s: %v", e.cfg.Layout.MetadataFile, err)
		} else {
			rep.Checks.MetadataValid = true
		}
	}

	rep.IsValid = len(rep.Errors) == 0
	return rep
}

func (e *Engine) expectedBranch() string {
	if e.cfg.Branch != "" {
		return e.cfg.Branch
	}
	return e.cfg.MainBranch
}

// versionAtLeast compares dotted version strings such as "2.43.0" or
// "2.39.3.windows.1" by their numeric major, minor and patch parts.
func versionAtLeast(version, minimum string) bool {
	v, m := canonicalVersion(version), canonicalVersion(minimum)
	if v == "" || m == "" {
		return false
	}
	return semver.Compare(v, m) >= 0
}

func canonicalVersion(s string) string {
	var parts []string
	for _, p := range strings.Split(strings.TrimPrefix(s, "v"), ".") {
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		if end == 0 {
			break
		}
		parts = append(parts, strings.TrimLeft(p[:end], "0"))
		if parts[len(parts)-1] == "" {
			parts[len(parts)-1] = "0"
		}
		if len(parts) == 3 || end < len(p) {
			break
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return semver.Canonical("v" + strings.Join(parts, "."))
}

// lfsTracked reports whether .gitattributes routes any path through the
// git-lfs filter.
func lfsTracked(layout library.Layout) (bool, error) {
	f, err := os.Open(layout.Abs(".gitattributes"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "filter=lfs") {
			return true, nil
		}
	}
	return false, scanner.Err()
}
