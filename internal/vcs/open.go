package vcs

import (
	"fmt"
)

// Open returns a VCS for the repository containing path.
//
// The implementation is looked up in the registry, so the caller must
// import the implementation package for its side effect.
func Open(path string, opts Options) (VCS, error) {
	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	if result.Type == TypeGit && !IsGitAvailable() {
		return nil, ErrVCSNotAvailable
	}

	return create(result.Type, result.RepoRoot, opts)
}

// create builds an implementation through the registry.
func create(t Type, repoRoot string, opts Options) (VCS, error) {
	constructor := getConstructor(t)
	if constructor == nil {
		return nil, fmt.Errorf("no registered constructor for VCS type: %s (available: %v)", t, RegisteredTypes())
	}

	v, err := constructor(repoRoot, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s VCS instance: %w", t, err)
	}

	return v, nil
}
