package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700)) //nolint:gosec // test script
	return path
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "playwright", Args: []string{"test", "--grep", "TC-(001|002)", "--project", "chromium"}}
	assert.Equal(t, `playwright test --grep "TC-(001|002)" --project chromium`, c.String())
	assert.Equal(t, "npx", Command{Name: "npx"}.String())
}

func TestExecRunner_Start(t *testing.T) {
	script := writeScript(t, "echo \"out $1\"\necho err >&2\nexit 3\n")

	p, err := ExecRunner{}.Start(context.Background(), Command{Name: script, Args: []string{"arg"}})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	stdout, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)
	stderr, err := io.ReadAll(p.Stderr())
	require.NoError(t, err)

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "out arg\n", string(stdout))
	assert.Equal(t, "err\n", string(stderr))

	// wait is idempotent
	code2, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, code, code2)

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel not closed after wait")
	}
}

func TestExecRunner_Env(t *testing.T) {
	script := writeScript(t, "printf '%s' \"$WEBTEST_VALUE\"\n")

	env := MergeEnv(os.Environ(), map[string]string{"WEBTEST_VALUE": "hello"})
	p, err := ExecRunner{}.Start(context.Background(), Command{Name: script, Env: env, Dir: t.TempDir()})
	require.NoError(t, err)
	out, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)
	_, _ = io.ReadAll(p.Stderr())
	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello", string(out))
}

func TestExecRunner_StartErrors(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		_, err := ExecRunner{}.Start(context.Background(), Command{Name: filepath.Join(t.TempDir(), "nope")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start")
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ExecRunner{}.Start(ctx, Command{Name: "true"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "context already canceled")
	})
}

func TestProcess_Terminate(t *testing.T) {
	script := writeScript(t, "echo started\nsleep 30\n")

	p, err := ExecRunner{}.Start(context.Background(), Command{Name: script})
	require.NoError(t, err)

	buf := make([]byte, 8)
	_, err = io.ReadFull(p.Stdout(), buf)
	require.NoError(t, err)
	assert.Equal(t, "started\n", string(buf))

	require.NoError(t, p.Terminate())

	done := make(chan int, 1)
	go func() {
		_, _ = io.ReadAll(p.Stdout())
		_, _ = io.ReadAll(p.Stderr())
		code, _ := p.Wait()
		done <- code
	}()

	select {
	case code := <-done:
		assert.Equal(t, -1, code, "signal exit reports -1")
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after terminate")
	}

	// terminate after exit is a no-op
	require.NoError(t, p.Terminate())
}

func TestProcess_ContextCancelTerminates(t *testing.T) {
	script := writeScript(t, "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	p, err := ExecRunner{}.Start(ctx, Command{Name: script})
	require.NoError(t, err)
	cancel()

	done := make(chan struct{})
	go func() {
		_, _ = io.ReadAll(p.Stdout())
		_, _ = io.ReadAll(p.Stderr())
		_, _ = p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process not terminated on context cancel")
	}
}

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides map[string]string
		want      []string
	}{
		{name: "no overrides", base: []string{"A=1", "B=2"}, want: []string{"A=1", "B=2"}},
		{name: "replace existing", base: []string{"A=1", "B=2"}, overrides: map[string]string{"A": "x"},
			want: []string{"B=2", "A=x"}},
		{name: "append sorted", base: []string{"A=1"}, overrides: map[string]string{"Z": "z", "M": "m"},
			want: []string{"A=1", "M=m", "Z=z"}},
		{name: "empty base", overrides: map[string]string{"FORCE_COLOR": "1"}, want: []string{"FORCE_COLOR=1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MergeEnv(tc.base, tc.overrides))
		})
	}
}
