//go:build !windows

package executor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// setupProcessGroup configures command to run in its own process group.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the entire process group of cmd.
func terminateGroup(cmd *exec.Cmd) error {
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil // group already gone
		}
		return fmt.Errorf("sigterm pgid %d: %w", pgid, err)
	}
	return nil
}
