package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// withProfile forces a color profile for the duration of the test
func withProfile(t *testing.T, p termenv.Profile) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(p)
	lipgloss.SetHasDarkBackground(true)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func TestRenderPlain(t *testing.T) {
	withProfile(t, termenv.Ascii)

	tests := []struct {
		name   string
		render func(string) string
	}{
		{"accent", RenderAccent},
		{"pass", RenderPass},
		{"warn", RenderWarn},
		{"muted", RenderMuted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.render("library/a.jpg"); got != "library/a.jpg" {
				t.Errorf("render = %q, want text unchanged", got)
			}
		})
	}
}

func TestRenderColored(t *testing.T) {
	withProfile(t, termenv.TrueColor)

	got := RenderPass("synced")
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("RenderPass = %q, want ANSI escapes", got)
	}
	if !strings.Contains(got, "synced") {
		t.Errorf("RenderPass = %q, lost the text", got)
	}
}

func TestStatusLines(t *testing.T) {
	withProfile(t, termenv.Ascii)

	if got := PassLine("in sync"); got != "✓ in sync" {
		t.Errorf("PassLine = %q", got)
	}
	if got := WarnLine("discarded 1 change"); got != "⚠ discarded 1 change" {
		t.Errorf("WarnLine = %q", got)
	}
	if got := FailLine("push rejected"); got != "✗ push rejected" {
		t.Errorf("FailLine = %q", got)
	}
}

func TestInitNoColor(t *testing.T) {
	withProfile(t, termenv.TrueColor)

	Init(true)
	if got := RenderFail("x"); got != "x" {
		t.Errorf("RenderFail after Init(true) = %q, want plain", got)
	}
}
