package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	cfg.Stdout = &buf
	l, err := NewLogger(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, &buf
}

func readLog(t *testing.T, l *Logger) string {
	t.Helper()
	content, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	return string(content)
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports", "runs")

	tests := []struct {
		name       string
		cfg        Config
		wantPath   string
		wantFilter string
	}{
		{name: "filtered run", cfg: Config{Dir: dir, RunID: "abc", Filter: "TC-(001|002)", Branch: "main", Commit: "1234567"},
			wantPath: "run-abc.log", wantFilter: "Filter: TC-(001|002)"},
		{name: "full suite", cfg: Config{Dir: dir, RunID: "def"}, wantPath: "run-def.log", wantFilter: "Filter: (full suite)"},
		{name: "no run id", cfg: Config{Dir: dir}, wantPath: "run.log", wantFilter: "Filter: (full suite)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newTestLogger(t, tc.cfg)
			assert.Equal(t, tc.wantPath, filepath.Base(l.Path()))
			assert.Equal(t, dir, filepath.Dir(l.Path()))

			content := readLog(t, l)
			assert.Contains(t, content, "# webtest run log")
			assert.Contains(t, content, tc.wantFilter)
			if tc.cfg.Branch != "" {
				assert.Contains(t, content, "Branch: main @ 1234567")
			}
		})
	}
}

func TestNewLogger_BadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := NewLogger(Config{Dir: filepath.Join(file, "runs"), RunID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create run log dir")
}

func TestLogger_Print(t *testing.T) {
	l, buf := newTestLogger(t, Config{RunID: "p", NoColor: true})

	l.Print("started %d tests", 3)
	l.Pass("passed %s", "TC-001")
	l.PrintRaw("raw output")

	content := readLog(t, l)
	assert.Contains(t, content, "started 3 tests")
	assert.Contains(t, content, "passed TC-001")
	assert.Contains(t, content, "raw output")
	assert.Contains(t, buf.String(), "started 3 tests")
	assert.Contains(t, buf.String(), "raw output")
}

func TestLogger_PrintAligned(t *testing.T) {
	l, buf := newTestLogger(t, Config{RunID: "a", NoColor: true})

	l.PrintAligned(StreamStdout, "Running 2 tests\n\x1b[32m✓\x1b[39m  1 [chromium] › login\r\n")
	l.PrintAligned(StreamStderr, "warning: slow\n")

	content := readLog(t, l)
	assert.Contains(t, content, "] Running 2 tests")
	assert.Contains(t, content, "✓  1 [chromium] › login", "ansi stripped in file")
	assert.NotContains(t, content, "\x1b[")
	assert.Contains(t, content, "] stderr: warning: slow")

	output := buf.String()
	assert.Contains(t, output, "Running 2 tests")
	assert.True(t, strings.HasSuffix(output, "\n"), "output should end with newline")
}

func TestLogger_PrintAligned_Empty(t *testing.T) {
	l, buf := newTestLogger(t, Config{RunID: "e", NoColor: true})

	l.PrintAligned(StreamStdout, "")
	l.PrintAligned(StreamStdout, "\r\n")
	assert.Empty(t, buf.String())
}

func TestLogger_ErrorWarn(t *testing.T) {
	l, buf := newTestLogger(t, Config{RunID: "w", NoColor: true})

	l.Error("spawn failed: %s", "not found")
	l.Warn("notification failed")

	content := readLog(t, l)
	assert.Contains(t, content, "ERROR: spawn failed: not found")
	assert.Contains(t, content, "WARN: notification failed")
	assert.Contains(t, buf.String(), "ERROR: spawn failed: not found")
	assert.Contains(t, buf.String(), "WARN: notification failed")
}

func TestLogger_Colors(t *testing.T) {
	origNoColor := color.NoColor
	defer func() { color.NoColor = origNoColor }()

	t.Run("enabled", func(t *testing.T) {
		color.NoColor = false
		l, buf := newTestLogger(t, Config{RunID: "c1"})
		l.Print("status")
		l.PrintAligned(StreamStderr, "stderr line")
		assert.Contains(t, buf.String(), "\033[")
	})

	t.Run("disabled", func(t *testing.T) {
		l, buf := newTestLogger(t, Config{RunID: "c2", NoColor: true})
		l.Print("no color output")
		assert.NotContains(t, buf.String(), "\033[")
		assert.Contains(t, buf.String(), "no color output")
	})
}

func TestLogger_Close(t *testing.T) {
	l, err := NewLogger(Config{Dir: t.TempDir(), RunID: "close", Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	path := l.Path()

	l.Print("some output")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "second close is a no-op")
	assert.Empty(t, l.Path())

	content, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(content), "Completed:")
	assert.Contains(t, string(content), strings.Repeat("-", 60))

	// writes after close go to stdout only
	l.Print("late")
}

func TestLogger_Elapsed(t *testing.T) {
	l, _ := newTestLogger(t, Config{RunID: "el"})
	assert.NotEmpty(t, l.Elapsed())
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"one two three", 7, "one two\nthree"},
		{"anything", 0, "anything"},
		{"averyveryverylongword x", 5, "averyveryverylongword\nx"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, wrapText(tc.text, tc.width))
	}
}

func TestGetTerminalWidth(t *testing.T) {
	t.Setenv("COLUMNS", "120")
	assert.Equal(t, 100, getTerminalWidth())
	t.Setenv("COLUMNS", "30")
	assert.Equal(t, 40, getTerminalWidth())
}

func TestLogFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("runs", "run-x.log"), logFilename("runs", "x"))
	assert.Equal(t, "run.log", logFilename("", ""))
}
