// Package executor starts and supervises test runner subprocesses.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
)

// Command describes a subprocess invocation.
type Command struct {
	Name string   // binary path or name looked up in PATH
	Args []string // arguments without the binary
	Dir  string   // working directory, empty for the current one
	Env  []string // full environment, nil inherits the parent environment
}

// String returns the command line with arguments containing spaces or pipes quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if strings.ContainsAny(a, " |") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Process is a started subprocess with separate output streams.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code. both streams must be
	// drained before calling Wait. it is idempotent, repeated calls return the same result.
	// a non-zero exit is not an error, err is set only when waiting itself failed.
	Wait() (code int, err error)
	// Terminate sends SIGTERM to the process group and returns without waiting.
	Terminate() error
	// Done is closed once Wait has reaped the process.
	Done() <-chan struct{}
}

//go:generate moq -out mocks/command_runner.go -pkg mocks -skip-ensure -fmt goimports . CommandRunner

// CommandRunner starts subprocesses. Abstracted for testing.
type CommandRunner interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExecRunner is the default CommandRunner using os/exec.
type ExecRunner struct{}

// Start launches cmd in its own process group. cancellation of ctx terminates the group.
// the process is not killed by exec itself: termination is handled by the group so that
// browsers spawned by the runner receive the signal too.
func (ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context already canceled: %w", err)
	}

	cmd := exec.Command(c.Name, c.Args...) //nolint:noctx,gosec // cancellation handled via process group
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	setupProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	return newProcessGroup(cmd, stdout, stderr, ctx.Done()), nil
}

// exitCode extracts the exit code from a cmd.Wait error.
// processes killed by a signal report -1.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("command wait: %w", err)
}

// MergeEnv returns base with overrides applied. keys in overrides replace existing
// entries, new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	result := make([]string, 0, len(base)+len(overrides))
	for _, e := range base {
		key, _, _ := strings.Cut(e, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		result = append(result, e)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = append(result, k+"="+overrides[k])
	}
	return result
}
