package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/vcs"
)

func untracked(p string) vcs.FileStatus {
	return vcs.FileStatus{Path: p, StagedCode: vcs.StatusUntracked, Status: vcs.StatusUntracked}
}

func worktree(p string, code vcs.StatusCode) vcs.FileStatus {
	return vcs.FileStatus{Path: p, StagedCode: vcs.StatusUnmodified, Status: code}
}

func staged(p string, code vcs.StatusCode) vcs.FileStatus {
	return vcs.FileStatus{Path: p, StagedCode: code, Status: vcs.StatusUnmodified}
}

func renamed(from, to string) vcs.FileStatus {
	return vcs.FileStatus{Path: to, OrigPath: from, StagedCode: vcs.StatusRenamed, Status: vcs.StatusUnmodified}
}

func newClassifier() *Classifier {
	return New(library.DefaultLayout("/srv/frames"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		descs []vcs.FileStatus
		hints []string
		want  Changes
	}{
		{
			name:  "empty",
			descs: nil,
			want:  Changes{},
		},
		{
			name: "thumbnails never count",
			descs: []vcs.FileStatus{
				untracked("library/a.jpg"),
				untracked("thumbs/a.jpg"),
				worktree("thumbs/b.jpg", vcs.StatusModified),
				worktree("thumbs/c.jpg", vcs.StatusDeleted),
			},
			want: Changes{New: 1},
		},
		{
			name: "all kinds",
			descs: []vcs.FileStatus{
				untracked("library/new.jpg"),
				staged("library/staged.jpg", vcs.StatusAdded),
				worktree("library/edited.jpg", vcs.StatusModified),
				worktree("library/gone.jpg", vcs.StatusDeleted),
				renamed("library/old.jpg", "library/fresh.jpg"),
			},
			want: Changes{New: 2, Modified: 1, Deleted: 1, Renamed: 1},
		},
		{
			name: "metadata modified counts once",
			descs: []vcs.FileStatus{
				worktree("metadata.json", vcs.StatusModified),
			},
			want: Changes{Modified: 1},
		},
		{
			name: "metadata created or deleted is ignored",
			descs: []vcs.FileStatus{
				untracked("metadata.json"),
			},
			want: Changes{},
		},
		{
			name: "metadata staged and edited again is still one modification",
			descs: []vcs.FileStatus{
				{Path: "metadata.json", StagedCode: vcs.StatusModified, Status: vcs.StatusModified},
			},
			want: Changes{Modified: 1},
		},
		{
			name: "paths outside the library are ignored",
			descs: []vcs.FileStatus{
				untracked("README.md"),
				worktree(".gitattributes", vcs.StatusModified),
				untracked("library/.gitkeep"),
			},
			want: Changes{},
		},
		{
			name: "hint forces new",
			descs: []vcs.FileStatus{
				staged("library/pulled.jpg", vcs.StatusModified),
			},
			hints: []string{"library/pulled.jpg"},
			want:  Changes{New: 1},
		},
		{
			name: "rename into and out of the library",
			descs: []vcs.FileStatus{
				renamed("inbox/a.jpg", "library/a.jpg"),
				renamed("library/b.jpg", "archive/b.jpg"),
			},
			want: Changes{New: 1, Deleted: 1},
		},
		{
			name: "conflicted image is a modification",
			descs: []vcs.FileStatus{
				{Path: "library/a.jpg", StagedCode: vcs.StatusConflict, Status: vcs.StatusConflict},
			},
			want: Changes{Modified: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newClassifier().Classify(tt.descs, tt.hints...)
			got.Items = nil
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyItems(t *testing.T) {
	got := newClassifier().Classify([]vcs.FileStatus{
		worktree("metadata.json", vcs.StatusModified),
		renamed("library/sunset.jpg", "library/dusk.jpg"),
		untracked("library/a.jpg"),
	})

	// Items are sorted by path
	want := []Item{
		{Kind: KindNew, Path: "library/a.jpg", Name: "a.jpg"},
		{Kind: KindRenamed, Path: "library/dusk.jpg", OrigPath: "library/sunset.jpg", Name: "dusk.jpg", OrigName: "sunset.jpg"},
		{Kind: KindModified, Path: "metadata.json", Name: "metadata.json", Metadata: true},
	}

	if diff := cmp.Diff(want, got.Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
}

func TestWithoutMetadata(t *testing.T) {
	got := newClassifier().Classify([]vcs.FileStatus{
		worktree("metadata.json", vcs.StatusModified),
		worktree("library/a.jpg", vcs.StatusModified),
		renamed("library/b.jpg", "library/c.jpg"),
	}).WithoutMetadata()

	if got.Modified != 1 || got.Renamed != 1 || got.Total() != 2 {
		t.Errorf("WithoutMetadata() = %+v", got)
	}
	for _, item := range got.Items {
		if item.Metadata {
			t.Errorf("metadata item survived: %+v", item)
		}
	}
}

func TestBucket(t *testing.T) {
	c := Changes{New: 2, Modified: 1, Deleted: 3, Renamed: 2}
	b := c.Bucket()

	want := Bucket{Count: 8, NewImages: 2, ModifiedImages: 3, DeletedImages: 3}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("Bucket() mismatch (-want +got):\n%s", diff)
	}
	if b.Count != b.NewImages+b.ModifiedImages+b.DeletedImages {
		t.Error("bucket count is not the sum of its parts")
	}
	if b.Count != c.Total() {
		t.Error("bucket count differs from the change total")
	}
}

// A rename is two raw entries in some descriptor sources and one semantic
// change; thumbnails add raw entries and no semantic ones.
func TestBucketNeverExceedsRawCount(t *testing.T) {
	sets := [][]vcs.FileStatus{
		{untracked("library/a.jpg"), worktree("library/b.jpg", vcs.StatusDeleted)},
		{untracked("library/a.jpg"), untracked("thumbs/a.jpg")},
		{renamed("library/a.jpg", "library/b.jpg"), worktree("metadata.json", vcs.StatusModified)},
		{untracked("metadata.json"), staged("library/x.jpg", vcs.StatusAdded)},
	}

	for i, descs := range sets {
		b := newClassifier().Classify(descs).Bucket()
		if b.Count > len(descs) {
			t.Errorf("set %d: bucket count %d exceeds %d raw descriptors", i, b.Count, len(descs))
		}
	}
}

func TestCombine(t *testing.T) {
	committed := []vcs.FileStatus{
		staged("library/added-then-edited.jpg", vcs.StatusAdded),
		staged("library/added-then-deleted.jpg", vcs.StatusAdded),
		staged("library/deleted-then-recreated.jpg", vcs.StatusDeleted),
		staged("library/edited-then-deleted.jpg", vcs.StatusModified),
		staged("library/only-committed.jpg", vcs.StatusAdded),
	}
	working := []vcs.FileStatus{
		worktree("library/added-then-edited.jpg", vcs.StatusModified),
		worktree("library/added-then-deleted.jpg", vcs.StatusDeleted),
		untracked("library/deleted-then-recreated.jpg"),
		worktree("library/edited-then-deleted.jpg", vcs.StatusDeleted),
		untracked("library/only-working.jpg"),
	}

	got := newClassifier().Classify(Combine(committed, working))
	got.Items = nil

	want := Changes{New: 3, Modified: 1, Deleted: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Combine() then Classify() mismatch (-want +got):\n%s", diff)
	}
}
