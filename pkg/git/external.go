package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// gitTimeout bounds each git invocation, the stamp is taken on every run start.
const gitTimeout = 5 * time.Second

// externalBackend reads the run stamp with the git CLI. one `git status` call
// gives branch, head and dirty state together.
type externalBackend struct {
	path string // absolute path to repository root
}

// newExternalBackend resolves the repository root of path with the git CLI.
func newExternalBackend(path string) (*externalBackend, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	out, err := gitOutput(absPath, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", absPath, err)
	}
	root, err := filepath.EvalSymlinks(strings.TrimSpace(out))
	if err != nil {
		return nil, fmt.Errorf("eval symlinks: %w", err)
	}
	return &externalBackend{path: root}, nil
}

var _ backend = (*externalBackend)(nil)

// Root returns the absolute path to the repository root.
func (e *externalBackend) Root() string { return e.path }

// stamp parses the porcelain v2 branch headers and tracked entries of `git status`.
func (e *externalBackend) stamp() (Info, error) {
	out, err := gitOutput(e.path, "status", "--porcelain=v2", "--branch", "--untracked-files=no")
	if err != nil {
		return Info{}, fmt.Errorf("get status: %w", err)
	}
	return parseStatusV2(out), nil
}

// parseStatusV2 reads "# branch.oid", "# branch.head" and change entries.
// "(initial)" oid means no commits, "(detached)" head means no branch.
func parseStatusV2(out string) Info {
	var info Info
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "# branch.oid "):
			if oid := strings.TrimPrefix(line, "# branch.oid "); oid != "(initial)" {
				info.Commit = oid
			}
		case strings.HasPrefix(line, "# branch.head "):
			if head := strings.TrimPrefix(line, "# branch.head "); head != "(detached)" {
				info.Branch = head
			}
		case strings.HasPrefix(line, "1 "), strings.HasPrefix(line, "2 "), strings.HasPrefix(line, "u "):
			info.Dirty = true
		}
	}
	return info
}

// gitOutput runs git in dir and returns stdout. stderr becomes the error text.
func gitOutput(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_OPTIONAL_LOCKS=0")
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}
