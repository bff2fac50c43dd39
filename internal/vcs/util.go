package vcs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ===================
// Command Execution Utilities
// ===================

// commandEnv pins the locale so output classification sees the English
// messages, and stops git from prompting for credentials on a terminal.
var commandEnv = []string{"LC_ALL=C", "GIT_TERMINAL_PROMPT=0"}

// ExecContext executes a VCS command with timeout and context support.
//
// On failure the returned error is a *CommandError whose Kind is derived
// from the combined stdout and stderr output, and stdout is still returned
// so callers can inspect partial output (merge reports, for example).
//
// Example:
//
//	output, err := ExecContext(ctx, 30*time.Second, repoRoot, "git", "status", "--porcelain")
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error) {
	// Create context with timeout if specified
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), commandEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		output := stdout.String() + stderr.String()
		kind := ClassifyOutput(output)
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		if errors.Is(err, exec.ErrNotFound) {
			kind = ErrVCSNotAvailable
		}
		return stdout.Bytes(), &CommandError{
			Args:   args,
			Output: output,
			Kind:   kind,
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// ===================
// Output Parsing Utilities
// ===================

// ParseLines splits command output into non-empty lines.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// ParseNullSeparated splits NUL-terminated output (the -z flavour of git
// commands) into fields. Fields are not trimmed: file names may carry
// meaningful whitespace.
func ParseNullSeparated(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	fields := strings.Split(string(output), "\x00")
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			result = append(result, f)
		}
	}
	return result
}

// ===================
// String Utilities
// ===================

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// FirstWord returns the first whitespace-separated word from output.
func FirstWord(output []byte) string {
	fields := strings.Fields(TrimOutput(output))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ===================
// Error Utilities
// ===================

// GetExitCode returns the exit code from an error, or -1 if not an exit error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
