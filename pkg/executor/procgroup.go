package executor

import (
	"io"
	"os/exec"
	"sync"
)

// processGroup manages the lifecycle of a runner started in its own process group.
// Terminate signals the whole group, not just the direct child, since the runner
// spawns browser processes of its own.
type processGroup struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
	done   chan struct{}

	once sync.Once
	code int
	err  error
}

// newProcessGroup wraps a started command. cancelCh closing terminates the group.
func newProcessGroup(cmd *exec.Cmd, stdout, stderr io.Reader, cancelCh <-chan struct{}) *processGroup {
	pg := &processGroup{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go pg.watchForCancel(cancelCh)
	return pg
}

func (pg *processGroup) watchForCancel(cancelCh <-chan struct{}) {
	select {
	case <-cancelCh:
		_ = pg.Terminate()
	case <-pg.done:
	}
}

func (pg *processGroup) Pid() int {
	if pg.cmd.Process == nil {
		return 0
	}
	return pg.cmd.Process.Pid
}

func (pg *processGroup) Stdout() io.Reader { return pg.stdout }

func (pg *processGroup) Stderr() io.Reader { return pg.stderr }

func (pg *processGroup) Done() <-chan struct{} { return pg.done }

// Wait reaps the process once; repeated calls return the same result.
func (pg *processGroup) Wait() (int, error) {
	pg.once.Do(func() {
		pg.code, pg.err = exitCode(pg.cmd.Wait())
		close(pg.done)
	})
	return pg.code, pg.err
}

// Terminate sends SIGTERM to the process group. there is no escalation to SIGKILL:
// a runner ignoring the signal keeps running on its own.
func (pg *processGroup) Terminate() error {
	select {
	case <-pg.done:
		return nil // already reaped
	default:
	}
	if pg.cmd.Process == nil {
		return nil
	}
	return terminateGroup(pg.cmd)
}
