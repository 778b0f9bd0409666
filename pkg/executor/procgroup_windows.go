//go:build windows

package executor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// setupProcessGroup is a no-op on windows, there are no posix process groups.
func setupProcessGroup(_ *exec.Cmd) {}

// terminateGroup kills the direct child, windows has no SIGTERM.
func terminateGroup(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", cmd.Process.Pid, err)
	}
	return nil
}
