package classify

import (
	"github.com/framesync/framesync/internal/vcs"
)

// Combine merges the files changed by unpushed commits with the live
// working tree status into the net change a push would publish.
//
// A path present in both keeps the status that describes its state
// relative to the remote: added then edited is still new, added then
// deleted never reached the remote and is dropped, deleted then re-created
// is a modification.
func Combine(committed, working []vcs.FileStatus) []vcs.FileStatus {
	byPath := make(map[string]int, len(committed)+len(working))
	out := make([]vcs.FileStatus, 0, len(committed)+len(working))

	for _, f := range committed {
		byPath[f.Path] = len(out)
		out = append(out, f)
	}

	dropped := map[int]bool{}
	for _, f := range working {
		i, seen := byPath[f.Path]
		if !seen {
			byPath[f.Path] = len(out)
			out = append(out, f)
			continue
		}

		before := out[i].Effective()
		after := f.Effective()
		switch {
		case before == vcs.StatusAdded && after == vcs.StatusDeleted:
			dropped[i] = true
		case before == vcs.StatusAdded, before == vcs.StatusRenamed && after == vcs.StatusModified:
			// Still new (or still the same rename) from the remote's view
		case before == vcs.StatusDeleted && (after == vcs.StatusAdded || after == vcs.StatusUntracked):
			out[i] = vcs.FileStatus{Path: f.Path, StagedCode: vcs.StatusModified, Status: vcs.StatusUnmodified}
		default:
			out[i] = f
		}
	}

	if len(dropped) == 0 {
		return out
	}

	kept := out[:0]
	for i, f := range out {
		if !dropped[i] {
			kept = append(kept, f)
		}
	}
	return kept
}
