// Package runner coordinates single-flight test runs: it spawns the runner subprocess,
// turns its output into events for the requesting client and records run history.
package runner

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/se302/webtest/pkg/executor"
	"github.com/se302/webtest/pkg/git"
	"github.com/se302/webtest/pkg/metrics"
	"github.com/se302/webtest/pkg/notify"
	"github.com/se302/webtest/pkg/parser"
	"github.com/se302/webtest/pkg/progress"
)

// ErrAlreadyRunning is returned by Start while another run is in progress.
var ErrAlreadyRunning = errors.New("tests are already running")

// DefaultShutdownGrace is how long Shutdown waits for an active runner to exit.
const DefaultShutdownGrace = 5 * time.Second

const readChunkSize = 32 * 1024

// Notifier sends run completion notifications.
type Notifier interface {
	Send(ctx context.Context, r notify.Result)
}

// RunLogger writes the per-run log.
type RunLogger interface {
	Print(format string, args ...any)
	Pass(format string, args ...any)
	Error(format string, args ...any)
	Warn(format string, args ...any)
	PrintAligned(stream progress.Stream, text string)
	Elapsed() string
	Path() string
	Close() error
}

// Config holds coordinator configuration.
type Config struct {
	RunnerPath  string            // runner binary
	ProjectDir  string            // working directory of the runner
	Defaults    Defaults          // project, workers and reporter fallbacks
	Credentials map[string]string // added to the runner environment
	BaseEnv     []string          // environment to extend, nil for os.Environ()
	RunsDir     string            // run log directory, empty disables run logs
	HistorySize int               // number of run records kept
	NoColor     bool              // disable color in the run log console mirror
	LogOutput   io.Writer         // console mirror of run logs, nil for os.Stdout

	CmdRunner executor.CommandRunner // nil for executor.ExecRunner
	Notifier  Notifier               // optional
	RepoInfo  func() git.Info        // optional, stamps branch and commit on runs
}

// Status is a snapshot of the coordinator state.
type Status struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"runId,omitempty"`
	TestIDs   []string   `json:"testIds,omitempty"`
	Filter    string     `json:"filter,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Coordinator owns the run state. At most one run is active at a time.
type Coordinator struct {
	cfg       Config
	cmdRunner executor.CommandRunner
	history   *History

	mu     sync.Mutex
	active *run
}

// run is the state of one started run.
type run struct {
	id        string
	testIDs   []string
	filter    string
	command   string
	startedAt time.Time
	repo      git.Info
	proc      executor.Process
	log       RunLogger
	exited    chan struct{}

	emitMu  sync.Mutex // serializes emits and guards the fields below
	emit    Emitter
	stopped bool
	output  strings.Builder
	parser  *parser.Parser
	passed  []parser.TestResult
	failed  []parser.TestResult
}

// New creates a coordinator in the idle state.
func New(cfg Config) *Coordinator {
	c := &Coordinator{cfg: cfg, cmdRunner: cfg.CmdRunner, history: NewHistory(cfg.HistorySize)}
	if c.cmdRunner == nil {
		c.cmdRunner = executor.ExecRunner{}
	}
	return c
}

// History returns the run history.
func (c *Coordinator) History() *History {
	return c.history
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Status{}
	}
	started := c.active.startedAt
	return Status{
		Running:   true,
		RunID:     c.active.id,
		TestIDs:   c.active.testIDs,
		Filter:    c.active.filter,
		StartedAt: &started,
	}
}

// Running reports whether a run is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Start begins a run of req.TestIDs and streams its events to emit.
// returns ErrAlreadyRunning without side effects while another run is active.
// an empty id list is a no-op. spawn failures are reported as EventError, not returned.
// c.mu is held only for the check-and-set, the spawn happens outside of it.
func (c *Coordinator) Start(req Request, emit Emitter) error {
	if len(req.TestIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		metrics.RecordRunRejected()
		return ErrAlreadyRunning
	}

	filter := BuildFilter(req.TestIDs)
	cmd := executor.Command{
		Name: c.cfg.RunnerPath,
		Args: BuildArgs(filter, req.Options, c.cfg.Defaults),
		Dir:  c.cfg.ProjectDir,
		Env:  c.env(),
	}
	r := &run{
		id:        uuid.NewString(),
		testIDs:   append([]string(nil), req.TestIDs...),
		filter:    filter,
		command:   cmd.String(),
		startedAt: time.Now(),
		exited:    make(chan struct{}),
		emit:      emit,
		parser:    parser.New(),
		log:       nopLogger{},
	}
	c.active = r
	// started must be the first event, a concurrent Stop waits on emitMu until it is out
	r.emitMu.Lock()
	c.mu.Unlock()

	if c.cfg.RepoInfo != nil {
		r.repo = c.cfg.RepoInfo()
	}
	r.log = c.openLog(r)
	metrics.RecordRunStarted()
	log.Printf("[INFO] run %s started, filter %q, %d case(s)", r.id, filter, len(r.testIDs))
	r.log.Print("executing: %s", r.command)
	r.emitLocked(EventStarted, StartedData{TestIDs: r.testIDs, RunID: r.id, Filter: filter, Timestamp: r.startedAt})

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := c.cmdRunner.Start(ctx, cmd)
	if err != nil {
		cancel()
		r.log.Error("spawn failed: %v", err)
		log.Printf("[WARN] run %s failed to start: %v", r.id, err)
		r.emitLocked(EventError, ErrorData{Error: err.Error()})
		r.stopped = true // nothing else is emitted for this run
		r.emitMu.Unlock()

		c.mu.Lock()
		if c.active == r {
			c.active = nil
		}
		c.mu.Unlock()
		close(r.exited)
		rec := c.finalize(r, OutcomeError, -1, parser.Summary{}, err)
		go c.notify(rec)
		return nil
	}
	r.proc = proc
	r.emitMu.Unlock()

	go c.supervise(r, cancel)
	return nil
}

// Stop terminates the active run. it returns immediately after signaling the runner's
// process group and the coordinator is idle on return. exited closes once the process
// has actually exited. ok is false and nothing happens when no run is active.
// the run's own emitter receives EventStopped as its terminal event, nothing follows it.
func (c *Coordinator) Stop() (exited <-chan struct{}, ok bool) {
	c.mu.Lock()
	r := c.active
	c.active = nil
	c.mu.Unlock()
	if r == nil {
		return nil, false
	}

	r.emitMu.Lock()
	stoppedBefore := r.stopped
	r.emitLocked(EventStopped, StoppedData{Message: StoppedMessage})
	r.stopped = true
	proc := r.proc
	r.emitMu.Unlock()
	if stoppedBefore || proc == nil {
		// spawn failed, the run already ended with EventError
		return r.exited, true
	}

	log.Printf("[INFO] run %s stop requested", r.id)
	r.log.Warn("stop requested")
	if err := proc.Terminate(); err != nil {
		log.Printf("[WARN] can't terminate run %s: %v", r.id, err)
	}
	return r.exited, true
}

// Shutdown stops the active run, if any, and waits up to grace for the runner to exit.
// returns false if the runner was still alive when the grace period ended.
func (c *Coordinator) Shutdown(grace time.Duration) bool {
	exited, ok := c.Stop()
	if !ok {
		return true
	}
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	select {
	case <-exited:
		return true
	case <-time.After(grace):
		log.Printf("[WARN] runner still alive after %s", grace)
		return false
	}
}

// supervise pumps both output streams, reaps the process and emits the terminal event.
func (c *Coordinator) supervise(r *run, cancel context.CancelFunc) {
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(r.proc.Stdout(), r.onStdout)
	}()
	go func() {
		defer wg.Done()
		pump(r.proc.Stderr(), r.onStderr)
	}()
	wg.Wait()

	code, err := r.proc.Wait()
	if err != nil {
		log.Printf("[WARN] run %s wait: %v", r.id, err)
	}

	c.mu.Lock()
	if c.active == r {
		c.active = nil
	}
	c.mu.Unlock()

	r.emitMu.Lock()
	for _, ev := range r.parser.Flush() {
		r.emitParsedLocked(ev)
	}
	summary := parser.ExtractSummary(r.output.String())
	stopped := r.stopped
	if !stopped {
		r.emitLocked(EventCompleted, CompletedData{Code: code, Results: summary, RunID: r.id, Timestamp: time.Now()})
	}
	r.emitMu.Unlock()
	close(r.exited)

	outcome := OutcomeCompleted
	if stopped {
		outcome = OutcomeStopped
	}
	c.notify(c.finalize(r, outcome, code, summary, nil))
}

// finalize closes the run log and records history and metrics of a finished run.
func (c *Coordinator) finalize(r *run, outcome Outcome, code int, summary parser.Summary, runErr error) RunRecord {
	r.emitMu.Lock()
	rec := RunRecord{
		ID:          r.id,
		TestIDs:     r.testIDs,
		Filter:      r.filter,
		Command:     r.command,
		StartedAt:   r.startedAt,
		FinishedAt:  time.Now(),
		Outcome:     outcome,
		Code:        code,
		Results:     summary,
		PassedTests: append([]parser.TestResult(nil), r.passed...),
		FailedTests: append([]parser.TestResult(nil), r.failed...),
		Branch:      r.repo.Branch,
		Commit:      r.repo.Commit,
		LogFile:     r.log.Path(),
	}
	r.emitMu.Unlock()
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	switch {
	case outcome == OutcomeStopped:
		r.log.Warn("run stopped after %s", r.log.Elapsed())
	case outcome == OutcomeCompleted && code == 0 && summary.Failed == 0:
		r.log.Pass("completed: %d passed, %d failed, %d skipped (exit %d)", summary.Passed, summary.Failed, summary.Skipped, code)
	case outcome == OutcomeCompleted:
		r.log.Error("completed: %d passed, %d failed, %d skipped (exit %d)", summary.Passed, summary.Failed, summary.Skipped, code)
	}
	if err := r.log.Close(); err != nil {
		log.Printf("[WARN] %v", err)
	}

	c.history.Add(rec)
	metrics.RecordRunFinished(string(outcome), rec.Duration())
	if outcome == OutcomeCompleted {
		metrics.RecordResults(summary.Passed, summary.Failed, summary.Skipped)
	}
	log.Printf("[INFO] run %s %s, exit %d, %d passed, %d failed, %d skipped",
		r.id, outcome, code, summary.Passed, summary.Failed, summary.Skipped)
	return rec
}

// notify sends a best-effort completion notification. stopped runs are not reported.
func (c *Coordinator) notify(rec RunRecord) {
	if c.cfg.Notifier == nil || rec.Outcome == OutcomeStopped {
		return
	}
	status := "success"
	if rec.Outcome == OutcomeError || rec.Code != 0 || rec.Results.Failed > 0 {
		status = "failure"
	}
	c.cfg.Notifier.Send(context.Background(), notify.Result{
		Status:   status,
		RunID:    rec.ID,
		Filter:   rec.Filter,
		Selected: len(rec.TestIDs),
		Passed:   rec.Results.Passed,
		Failed:   rec.Results.Failed,
		Skipped:  rec.Results.Skipped,
		Code:     rec.Code,
		Duration: rec.Duration().Round(time.Second).String(),
		Branch:   rec.Branch,
		Commit:   rec.Commit,
		Error:    rec.Error,
	})
}

// env returns the runner environment: base plus credentials plus forced color.
func (c *Coordinator) env() []string {
	base := c.cfg.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	overrides := make(map[string]string, len(c.cfg.Credentials)+1)
	for k, v := range c.cfg.Credentials {
		overrides[k] = v
	}
	overrides["FORCE_COLOR"] = "1"
	return executor.MergeEnv(base, overrides)
}

// openLog creates the run log. failures fall back to a console-only logger.
func (c *Coordinator) openLog(r *run) RunLogger {
	if c.cfg.RunsDir == "" {
		return nopLogger{}
	}
	l, err := progress.NewLogger(progress.Config{
		Dir:     c.cfg.RunsDir,
		RunID:   r.id,
		Filter:  r.filter,
		Command: r.command,
		Branch:  r.repo.Branch,
		Commit:  r.repo.Commit,
		NoColor: c.cfg.NoColor,
		Stdout:  c.cfg.LogOutput,
	})
	if err != nil {
		log.Printf("[WARN] run log disabled: %v", err)
		return nopLogger{}
	}
	return l
}

func (r *run) onStdout(chunk string) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.output.WriteString(chunk)
	r.log.PrintAligned(progress.StreamStdout, chunk)
	r.emitLocked(EventOutput, OutputData{Type: "stdout", Data: chunk})
	for _, ev := range r.parser.Feed(chunk) {
		r.emitParsedLocked(ev)
	}
}

func (r *run) onStderr(chunk string) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.log.PrintAligned(progress.StreamStderr, chunk)
	r.emitLocked(EventOutput, OutputData{Type: "stderr", Data: chunk})
}

// emitParsedLocked converts a parser event and emits it. must be called with emitMu held.
func (r *run) emitParsedLocked(ev parser.Event) {
	switch ev.Kind {
	case parser.KindProgress:
		r.emitLocked(EventProgress, ProgressData{Total: ev.Total})
	case parser.KindPassed:
		r.passed = append(r.passed, ev.Result)
		r.emitLocked(EventPassed, ev.Result)
	case parser.KindFailed:
		r.failed = append(r.failed, ev.Result)
		r.emitLocked(EventFailed, ev.Result)
	}
}

// emitLocked delivers an event unless the run was stopped. must be called with emitMu held.
func (r *run) emitLocked(event string, data any) {
	if r.stopped || r.emit == nil {
		return
	}
	r.emit(event, data)
}

// pump reads rd until EOF and passes each chunk to fn. a multi-byte character split
// across reads is held back and prepended to the next chunk.
func pump(rd io.Reader, fn func(string)) {
	buf := make([]byte, readChunkSize)
	var pending []byte
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			complete, rest := splitUTF8(data)
			pending = append([]byte(nil), rest...)
			if len(complete) > 0 {
				fn(string(complete))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("[DEBUG] output read: %v", err)
			}
			break
		}
	}
	if len(pending) > 0 {
		fn(string(pending))
	}
}

// splitUTF8 splits b before a trailing incomplete utf-8 sequence.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}

// nopLogger discards run log output.
type nopLogger struct{}

func (nopLogger) Print(string, ...any)                 {}
func (nopLogger) Pass(string, ...any)                  {}
func (nopLogger) Error(string, ...any)                 {}
func (nopLogger) Warn(string, ...any)                  {}
func (nopLogger) PrintAligned(progress.Stream, string) {}
func (nopLogger) Elapsed() string                      { return "" }
func (nopLogger) Path() string                         { return "" }
func (nopLogger) Close() error                         { return nil }

var _ RunLogger = (*progress.Logger)(nil)
