package git

import (
	"errors"
	"fmt"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// internalBackend implements backend with go-git, no git binary needed.
type internalBackend struct {
	repo *gogit.Repository
	path string // absolute path to repository root
}

// openRepo opens the repository containing path, searching parent directories.
func openRepo(path string) (*internalBackend, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", absPath, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return nil, fmt.Errorf("eval symlinks: %w", err)
	}
	return &internalBackend{repo: repo, path: root}, nil
}

var _ backend = (*internalBackend)(nil)

// Root returns the absolute path to the repository root.
func (b *internalBackend) Root() string { return b.path }

// stamp combines branch, head and worktree status.
func (b *internalBackend) stamp() (Info, error) {
	var info Info
	branch, err := b.branch()
	if err != nil {
		return info, err
	}
	info.Branch = branch

	if info.Commit, err = b.head(); err != nil {
		return info, err
	}

	info.Dirty, err = b.dirty()
	return info, err
}

// head returns the HEAD commit hash, empty for an unborn branch.
func (b *internalBackend) head() (string, error) {
	ref, err := b.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// branch returns the current branch name, empty for detached HEAD.
// an unborn branch of an empty repository is still reported by name.
func (b *internalBackend) branch() (string, error) {
	ref, err := b.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	if ref.Type() == plumbing.SymbolicReference && ref.Target().IsBranch() {
		return ref.Target().Short(), nil
	}
	return "", nil
}

// dirty reports uncommitted changes to tracked files.
func (b *internalBackend) dirty() (bool, error) {
	wt, err := b.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("get status: %w", err)
	}
	for _, s := range status {
		if s.Staging == gogit.Untracked && s.Worktree == gogit.Untracked {
			continue
		}
		if s.Staging != gogit.Unmodified || s.Worktree != gogit.Unmodified {
			return true, nil
		}
	}
	return false, nil
}
