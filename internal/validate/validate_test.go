package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/vcs"
)

type fakeUnstager struct {
	paths []string
}

func (f *fakeUnstager) Unstage(_ context.Context, paths ...string) error {
	f.paths = append(f.paths, paths...)
	return nil
}

func setupLayout(t *testing.T, files map[string]string) library.Layout {
	t.Helper()
	layout := library.DefaultLayout(t.TempDir())
	for rel, content := range files {
		abs := layout.Abs(rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return layout
}

func exists(t *testing.T, layout library.Layout, rel string) bool {
	t.Helper()
	_, err := os.Stat(layout.Abs(rel))
	return err == nil
}

const pointer = "version https://git-lfs.github.com/spec/v1\noid sha256:4d7a\nsize 12345\n"

func TestInspect(t *testing.T) {
	layout := setupLayout(t, map[string]string{
		"library/empty.jpg":   "",
		"library/pointer.jpg": pointer,
		"library/short.jpg":   "\xff\xd8",
		"library/real.jpg":    "\xff\xd8\xff\xe0 plenty of jpeg bytes follow here",
	})
	v := New(layout, &fakeUnstager{}, nil)

	tests := []struct {
		path string
		want string
	}{
		{"library/empty.jpg", ReasonEmpty},
		{"library/pointer.jpg", ReasonLFSPointer},
		{"library/short.jpg", ""},
		{"library/real.jpg", ""},
		{"library/missing.jpg", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := v.Inspect(tt.path)
			if err != nil {
				t.Fatalf("Inspect() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Inspect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	v := New(library.DefaultLayout("/srv"), &fakeUnstager{}, nil)
	status := []vcs.FileStatus{
		{Path: "library/new.jpg", StagedCode: vcs.StatusUntracked, Status: vcs.StatusUntracked},
		{Path: "library/staged.jpg", StagedCode: vcs.StatusAdded, Status: vcs.StatusUnmodified},
		{Path: "library/edited.jpg", StagedCode: vcs.StatusUnmodified, Status: vcs.StatusModified},
		{Path: "thumbs/new.jpg", StagedCode: vcs.StatusUntracked, Status: vcs.StatusUntracked},
		{Path: "metadata.json", StagedCode: vcs.StatusUnmodified, Status: vcs.StatusModified},
	}

	want := []string{"library/new.jpg", "library/staged.jpg"}
	if diff := cmp.Diff(want, v.Candidates(status)); diff != "" {
		t.Errorf("Candidates() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRollsBackRejected(t *testing.T) {
	layout := setupLayout(t, map[string]string{
		"library/good.jpg":    "\xff\xd8\xff real",
		"thumbs/good.jpg":     "\xff\xd8\xff thumb",
		"library/empty.jpg":   "",
		"thumbs/empty.jpg":    "\xff\xd8\xff thumb",
		"library/pointer.jpg": pointer,
		"metadata.json":       `{"images":{"good.jpg":{"tags":["a"]},"empty.jpg":{"tags":["b"]},"pointer.jpg":{}}}`,
	})
	unstager := &fakeUnstager{}
	v := New(layout, unstager, nil)

	status := []vcs.FileStatus{
		{Path: "library/empty.jpg", StagedCode: vcs.StatusAdded, Status: vcs.StatusUnmodified},
		{Path: "library/good.jpg", StagedCode: vcs.StatusUntracked, Status: vcs.StatusUntracked},
		{Path: "library/pointer.jpg", StagedCode: vcs.StatusUntracked, Status: vcs.StatusUntracked},
		{Path: "thumbs/empty.jpg", StagedCode: vcs.StatusAdded, Status: vcs.StatusUnmodified},
	}

	res, err := v.Validate(context.Background(), status)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if res.OK() {
		t.Fatal("Validate() accepted invalid files")
	}
	if res.Checked != 3 {
		t.Errorf("Checked = %d, want 3", res.Checked)
	}

	wantRejected := []Rejection{
		{File: "library/empty.jpg", Reason: ReasonEmpty},
		{File: "library/pointer.jpg", Reason: ReasonLFSPointer},
	}
	if diff := cmp.Diff(wantRejected, res.Rejected); diff != "" {
		t.Errorf("Rejected mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"empty.jpg", "pointer.jpg"}, res.Cleaned); diff != "" {
		t.Errorf("Cleaned mismatch (-want +got):\n%s", diff)
	}

	for _, rel := range []string{"library/empty.jpg", "thumbs/empty.jpg", "library/pointer.jpg"} {
		if exists(t, layout, rel) {
			t.Errorf("%s was not removed", rel)
		}
	}
	for _, rel := range []string{"library/good.jpg", "thumbs/good.jpg"} {
		if !exists(t, layout, rel) {
			t.Errorf("%s was removed", rel)
		}
	}

	doc, err := layout.ReadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"good.jpg"}, library.SortedNames(library.Images(doc))); diff != "" {
		t.Errorf("metadata entries mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"library/empty.jpg", "thumbs/empty.jpg"}, unstager.paths); diff != "" {
		t.Errorf("unstaged paths mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateNoCandidates(t *testing.T) {
	layout := setupLayout(t, map[string]string{"metadata.json": `{"images":{}}`})
	unstager := &fakeUnstager{}

	res, err := New(layout, unstager, nil).Validate(context.Background(), []vcs.FileStatus{
		{Path: "library/edited.jpg", StagedCode: vcs.StatusUnmodified, Status: vcs.StatusModified},
	})
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if !res.OK() || res.Checked != 0 || len(unstager.paths) != 0 {
		t.Errorf("Validate() = %+v, want a no-op", res)
	}
}
