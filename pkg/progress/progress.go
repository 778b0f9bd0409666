// Package progress provides timestamped run logs written to file and stdout with color support.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Stream identifies the origin of a logged line for color coding.
type Stream string

// Stream constants for run output.
const (
	StreamStatus Stream = "status" // coordinator messages (cyan)
	StreamStdout Stream = "stdout" // runner stdout (default)
	StreamStderr Stream = "stderr" // runner stderr (yellow)
)

var (
	statusColor    = color.New(color.FgCyan)
	stdoutColor    = color.New(color.Reset)
	stderrColor    = color.New(color.FgYellow)
	passColor      = color.New(color.FgGreen)
	errorColor     = color.New(color.FgRed)
	timestampColor = color.New(color.FgWhite)
)

var streamColors = map[Stream]*color.Color{
	StreamStatus: statusColor,
	StreamStdout: stdoutColor,
	StreamStderr: stderrColor,
}

// Logger writes timestamped run output to both a log file and stdout.
// safe for concurrent use, the runner's stdout and stderr readers share one logger.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	stdout    io.Writer
	startTime time.Time
}

// Config holds logger configuration.
type Config struct {
	Dir     string    // directory for run logs, created if missing
	RunID   string    // run id, used to derive the log filename
	Filter  string    // grep filter of the run, empty for the full suite
	Command string    // runner command line
	Branch  string    // current git branch
	Commit  string    // short commit hash
	NoColor bool      // disable color output (sets color.NoColor globally)
	Stdout  io.Writer // console mirror, nil for os.Stdout
}

// NewLogger creates a logger writing to a per-run log file and stdout.
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.NoColor {
		color.NoColor = true
	}

	path := logFilename(cfg.Dir, cfg.RunID)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create run log dir: %w", err)
		}
	}

	f, err := os.Create(path) //nolint:gosec // path derived from run id
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	l := &Logger{file: f, stdout: cfg.Stdout, startTime: time.Now()}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}

	filter := cfg.Filter
	if filter == "" {
		filter = "(full suite)"
	}
	l.writeFile("# webtest run log\n")
	l.writeFile("Run: %s\n", cfg.RunID)
	l.writeFile("Filter: %s\n", filter)
	if cfg.Command != "" {
		l.writeFile("Command: %s\n", cfg.Command)
	}
	if cfg.Branch != "" {
		l.writeFile("Branch: %s @ %s\n", cfg.Branch, cfg.Commit)
	}
	l.writeFile("Started: %s\n", l.startTime.Format("2006-01-02 15:04:05"))
	l.writeFile("%s\n\n", strings.Repeat("-", 60))

	return l, nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// timestampFormat is the format for timestamps: YY-MM-DD HH:MM:SS
const timestampFormat = "06-01-02 15:04:05"

// Print writes a timestamped status message to both file and stdout.
func (l *Logger) Print(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	l.writeFile("[%s] %s\n", timestamp, msg)
	l.writeStdout("%s %s\n", timestampColor.Sprintf("[%s]", timestamp), statusColor.Sprint(msg))
}

// Pass writes a timestamped message in green.
func (l *Logger) Pass(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	l.writeFile("[%s] %s\n", timestamp, msg)
	l.writeStdout("%s %s\n", timestampColor.Sprintf("[%s]", timestamp), passColor.Sprint(msg))
}

// PrintRaw writes without timestamp.
func (l *Logger) PrintRaw(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	l.writeFile("%s", msg)
	l.writeStdout("%s", msg)
}

// getTerminalWidth returns terminal width, using COLUMNS env var or syscall.
// Defaults to 80 if detection fails. Returns content width (total - 20 for timestamp).
func getTerminalWidth() int {
	const minWidth = 40

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if w, err := strconv.Atoi(cols); err == nil && w > 0 {
			return max(w-20, minWidth)
		}
	}

	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return max(w-20, minWidth)
	}

	return 80 - 20
}

// wrapText wraps text to specified width, breaking on word boundaries.
func wrapText(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var result strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		wordLen := len(word)
		if i == 0 {
			result.WriteString(word)
			lineLen = wordLen
			continue
		}
		if lineLen+1+wordLen <= width {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wordLen
			continue
		}
		result.WriteString("\n")
		result.WriteString(word)
		lineLen = wordLen
	}
	return result.String()
}

// PrintAligned writes a chunk of runner output, timestamping the first line and
// indenting continuation lines. color sequences of the runner are kept on stdout and
// stripped from the file.
func (l *Logger) PrintAligned(stream Stream, text string) {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format(timestampFormat)
	streamColor, ok := streamColors[stream]
	if !ok {
		streamColor = stdoutColor
	}
	tsPrefix := timestampColor.Sprintf("[%s]", timestamp)
	indent := "                    " // 20 chars to align with "[YY-MM-DD HH:MM:SS] "
	width := getTerminalWidth()

	var lines []string
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) > width {
			for wrapped := range strings.SplitSeq(wrapText(line, width), "\n") {
				lines = append(lines, wrapped)
			}
			continue
		}
		lines = append(lines, line)
	}

	marker := ""
	if stream == StreamStderr {
		marker = "stderr: "
	}
	for i, line := range lines {
		if line == "" {
			l.writeFile("\n")
			l.writeStdout("\n")
			continue
		}
		if i == 0 {
			l.writeFile("[%s] %s%s\n", timestamp, marker, stripansi.Strip(line))
			l.writeStdout("%s %s\n", tsPrefix, streamColor.Sprint(line))
			continue
		}
		l.writeFile("%s%s\n", indent, stripansi.Strip(line))
		l.writeStdout("%s%s\n", indent, streamColor.Sprint(line))
	}
}

// Error writes an error message in red.
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	l.writeFile("[%s] ERROR: %s\n", timestamp, msg)
	l.writeStdout("%s %s\n", timestampColor.Sprintf("[%s]", timestamp), errorColor.Sprintf("ERROR: %s", msg))
}

// Warn writes a warning message in yellow.
func (l *Logger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)

	l.writeFile("[%s] WARN: %s\n", timestamp, msg)
	l.writeStdout("%s %s\n", timestampColor.Sprintf("[%s]", timestamp), stderrColor.Sprintf("WARN: %s", msg))
}

// Elapsed returns formatted elapsed time since start.
func (l *Logger) Elapsed() string {
	return humanize.RelTime(l.startTime, time.Now(), "", "")
}

// Close writes footer and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	l.writeFile("\n%s\n", strings.Repeat("-", 60))
	l.writeFile("Completed: %s (%s)\n", time.Now().Format("2006-01-02 15:04:05"), l.Elapsed())

	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}

func (l *Logger) writeFile(format string, args ...any) {
	if l.file != nil {
		fmt.Fprintf(l.file, format, args...)
	}
}

func (l *Logger) writeStdout(format string, args ...any) {
	fmt.Fprintf(l.stdout, format, args...)
}

// logFilename returns the run log path for the given run id.
func logFilename(dir, runID string) string {
	name := "run.log"
	if runID != "" {
		name = "run-" + runID + ".log"
	}
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
