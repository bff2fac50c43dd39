package vcs

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []string
	}{
		{
			name:     "empty input",
			input:    []byte(""),
			expected: nil,
		},
		{
			name:     "single line",
			input:    []byte("line1"),
			expected: []string{"line1"},
		},
		{
			name:     "lines with whitespace",
			input:    []byte("  line1  \n  line2  \n  line3  "),
			expected: []string{"line1", "line2", "line3"},
		},
		{
			name:     "empty lines filtered",
			input:    []byte("line1\n\nline2\n\n\nline3"),
			expected: []string{"line1", "line2", "line3"},
		},
		{
			name:     "trailing newline",
			input:    []byte("line1\nline2\n"),
			expected: []string{"line1", "line2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseLines(tt.input)

			if len(result) != len(tt.expected) {
				t.Errorf("Expected %d lines, got %d", len(tt.expected), len(result))
				return
			}

			for i, line := range result {
				if line != tt.expected[i] {
					t.Errorf("Line %d: expected '%s', got '%s'", i, tt.expected[i], line)
				}
			}
		})
	}
}

func TestParseNullSeparated(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []string
	}{
		{
			name:     "empty input",
			input:    nil,
			expected: nil,
		},
		{
			name:     "keeps spaces in names",
			input:    []byte("?? library/sunset beach.jpg\x00"),
			expected: []string{"?? library/sunset beach.jpg"},
		},
		{
			name:     "rename pairs",
			input:    []byte("R  library/new.jpg\x00library/old.jpg\x00 M metadata.json\x00"),
			expected: []string{"R  library/new.jpg", "library/old.jpg", " M metadata.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseNullSeparated(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("Expected %d fields, got %d (%q)", len(tt.expected), len(result), result)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("Field %d: expected %q, got %q", i, tt.expected[i], result[i])
				}
			}
		})
	}
}

func TestFirstWord(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"main", "main"},
		{"  abc123 refs/heads/main\n", "abc123"},
	}

	for _, tt := range tests {
		if got := FirstWord([]byte(tt.input)); got != tt.expected {
			t.Errorf("FirstWord(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestExecContext(t *testing.T) {
	ctx := context.Background()

	output, err := ExecContext(ctx, 5*time.Second, t.TempDir(), "echo", "test")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	result := strings.TrimSpace(string(output))
	if result != "test" {
		t.Errorf("Expected 'test', got '%s'", result)
	}
}

func TestExecContextClassifiesFailure(t *testing.T) {
	ctx := context.Background()

	_, err := ExecContext(ctx, 5*time.Second, t.TempDir(),
		"sh", "-c", "echo 'fatal: unable to access repo: Could not resolve host: example.invalid' >&2; exit 128")
	if err == nil {
		t.Fatal("Expected error")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Expected *CommandError, got %T", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork in chain, got %v", err)
	}
	if GetExitCode(err) != 128 {
		t.Errorf("Expected exit code 128, got %d", GetExitCode(err))
	}
	if !strings.Contains(cmdErr.Output, "Could not resolve host") {
		t.Errorf("Expected stderr in output, got %q", cmdErr.Output)
	}
}

func TestExecContextReturnsStdoutOnFailure(t *testing.T) {
	out, err := ExecContext(context.Background(), 5*time.Second, t.TempDir(),
		"sh", "-c", "echo 'CONFLICT (content): Merge conflict in metadata.json'; exit 1")
	if !errors.Is(err, ErrConflicts) {
		t.Fatalf("Expected ErrConflicts, got %v", err)
	}
	if !strings.Contains(string(out), "metadata.json") {
		t.Errorf("Expected stdout to be returned, got %q", out)
	}
}

func TestExecContextTimeout(t *testing.T) {
	ctx := context.Background()

	_, err := ExecContext(ctx, 100*time.Millisecond, t.TempDir(), "sleep", "2")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("Expected timeout to be retryable")
	}
}

func TestExecContextMissingBinary(t *testing.T) {
	_, err := ExecContext(context.Background(), time.Second, t.TempDir(), "framesync-no-such-binary")
	if !errors.Is(err, ErrVCSNotAvailable) {
		t.Errorf("Expected ErrVCSNotAvailable, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("Expected missing binary to be fatal")
	}
}

func TestGetExitCode(t *testing.T) {
	if code := GetExitCode(nil); code != 0 {
		t.Errorf("Expected exit code 0 for nil error, got %d", code)
	}

	err := exec.Command("sh", "-c", "exit 42").Run()
	if code := GetExitCode(err); code != 42 {
		t.Errorf("Expected exit code 42, got %d", code)
	}

	if code := GetExitCode(errors.New("plain")); code != -1 {
		t.Errorf("Expected -1 for non-exit error, got %d", code)
	}
}
