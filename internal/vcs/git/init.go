package git

import "github.com/framesync/framesync/internal/vcs"

// init registers the git VCS implementation.
// This is called automatically when the package is imported:
//
//	import _ "github.com/framesync/framesync/internal/vcs/git"
func init() {
	vcs.Register(vcs.TypeGit, func(path string, opts vcs.Options) (vcs.VCS, error) {
		return New(path, opts)
	})
}
