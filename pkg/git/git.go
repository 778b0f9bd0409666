// Package git reports repository information stamped on test runs.
// two backends are available: go-git (default) and the git CLI.
package git

import (
	"log"
)

// backend reads the run stamp of one repository.
type backend interface {
	Root() string
	// stamp returns branch, full HEAD hash and dirty state. Commit is empty for a
	// repository without commits, Branch is empty for detached HEAD.
	stamp() (Info, error)
}

// shortHashLen is the length of abbreviated commit hashes.
const shortHashLen = 7

// Info describes the state of the repository at the start of a run.
type Info struct {
	Branch string `json:"branch,omitempty"` // empty for detached HEAD
	Commit string `json:"commit,omitempty"` // abbreviated HEAD hash, empty for repos without commits
	Dirty  bool   `json:"dirty,omitempty"`  // tracked files changed, untracked files don't count
}

// Repo wraps a backend.
type Repo struct {
	b backend
}

// Open opens the repository containing path. external selects the git CLI backend.
func Open(path string, external bool) (*Repo, error) {
	var (
		b   backend
		err error
	)
	if external {
		b, err = newExternalBackend(path)
	} else {
		b, err = openRepo(path)
	}
	if err != nil {
		return nil, err
	}
	return &Repo{b: b}, nil
}

// Root returns the absolute path to the repository root.
func (r *Repo) Root() string { return r.b.Root() }

// Info collects branch, abbreviated commit and dirty state.
func (r *Repo) Info() (Info, error) {
	info, err := r.b.stamp()
	info.Commit = abbrev(info.Commit)
	return info, err
}

// Describe returns repository info for path, or zero Info when path is not inside a
// repository. failures are logged and never returned, runs proceed without the stamp.
func Describe(path string, external bool) Info {
	repo, err := Open(path, external)
	if err != nil {
		log.Printf("[DEBUG] no git repository at %s: %v", path, err)
		return Info{}
	}
	info, err := repo.Info()
	if err != nil {
		log.Printf("[WARN] can't read git info: %v", err)
	}
	return info
}

func abbrev(hash string) string {
	if len(hash) > shortHashLen {
		return hash[:shortHashLen]
	}
	return hash
}
