package library

import (
	"path/filepath"
	"testing"
)

func TestLayoutClassifiesPaths(t *testing.T) {
	l := DefaultLayout("/srv/frames")

	tests := []struct {
		path      string
		content   bool
		thumbnail bool
		metadata  bool
	}{
		{"library/sunset.jpg", true, false, false},
		{"library/2024/sunset.jpg", true, false, false},
		{"./library/sunset.jpg", true, false, false},
		{"library/.gitkeep", false, false, false},
		{"library", false, false, false},
		{"thumbs/sunset.jpg", false, true, false},
		{"metadata.json", false, false, true},
		{"./metadata.json", false, false, true},
		{"libraryx/sunset.jpg", false, false, false},
		{"README.md", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := l.IsContent(tt.path); got != tt.content {
				t.Errorf("IsContent() = %v, want %v", got, tt.content)
			}
			if got := l.IsThumbnail(tt.path); got != tt.thumbnail {
				t.Errorf("IsThumbnail() = %v, want %v", got, tt.thumbnail)
			}
			if got := l.IsMetadata(tt.path); got != tt.metadata {
				t.Errorf("IsMetadata() = %v, want %v", got, tt.metadata)
			}
		})
	}
}

func TestNestedThumbnailDirIsNotContent(t *testing.T) {
	l := DefaultLayout("/srv/frames")
	l.ThumbnailDir = "library/.thumbs"

	if l.IsContent("library/.thumbs/sunset.jpg") {
		t.Error("thumbnail inside the content dir counted as content")
	}
	if !l.IsThumbnail("library/.thumbs/sunset.jpg") {
		t.Error("nested thumbnail not recognised")
	}

	l.ThumbnailDir = "library/thumbs"
	if l.IsContent("library/thumbs/sunset.jpg") {
		t.Error("thumbnail inside the content dir counted as content")
	}
}

func TestLayoutPaths(t *testing.T) {
	l := DefaultLayout("/srv/frames")

	if got := l.Name("library/sunset beach.jpg"); got != "sunset beach.jpg" {
		t.Errorf("Name() = %q", got)
	}
	if got := l.ContentPath("sunset.jpg"); got != "library/sunset.jpg" {
		t.Errorf("ContentPath() = %q", got)
	}
	if got := l.ThumbnailPath("sunset.jpg"); got != "thumbs/sunset.jpg" {
		t.Errorf("ThumbnailPath() = %q", got)
	}
	if got := l.Abs("library/sunset.jpg"); got != filepath.Join("/srv/frames", "library", "sunset.jpg") {
		t.Errorf("Abs() = %q", got)
	}
}
