package runner

import (
	"sync"
	"time"

	"github.com/se302/webtest/pkg/parser"
)

// DefaultHistorySize is the default number of run records kept in memory.
const DefaultHistorySize = 50

// Outcome is the terminal state of a run.
type Outcome string

// run outcomes.
const (
	OutcomeCompleted Outcome = "completed" // runner exited on its own, any exit code
	OutcomeStopped   Outcome = "stopped"   // stop requested while running
	OutcomeError     Outcome = "error"     // runner could not be spawned
)

// RunRecord describes a finished run.
type RunRecord struct {
	ID          string              `json:"id"`
	TestIDs     []string            `json:"testIds"`
	Filter      string              `json:"filter,omitempty"`
	Command     string              `json:"command"`
	StartedAt   time.Time           `json:"startedAt"`
	FinishedAt  time.Time           `json:"finishedAt"`
	Outcome     Outcome             `json:"outcome"`
	Code        int                 `json:"code"`
	Results     parser.Summary      `json:"results"`
	PassedTests []parser.TestResult `json:"passedTests"`
	FailedTests []parser.TestResult `json:"failedTests"`
	Error       string              `json:"error,omitempty"`
	Branch      string              `json:"branch,omitempty"`
	Commit      string              `json:"commit,omitempty"`
	LogFile     string              `json:"logFile,omitempty"`
}

// Duration returns the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// History is a thread-safe ring buffer of run records, oldest overwritten first.
type History struct {
	mu       sync.RWMutex
	records  []RunRecord
	maxSize  int
	writePos int // next position to write (wraps around)
	count    int // total records written
}

// NewHistory creates a history keeping up to maxSize records.
// if maxSize is 0 or negative, DefaultHistorySize is used.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistorySize
	}
	return &History{records: make([]RunRecord, maxSize), maxSize: maxSize}
}

// Add appends a record, overwriting the oldest if full.
func (h *History) Add(r RunRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.writePos] = r
	h.writePos = (h.writePos + 1) % h.maxSize
	h.count++
}

// All returns records newest first.
func (h *History) All() []RunRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := min(h.count, h.maxSize)
	result := make([]RunRecord, 0, n)
	for i := 1; i <= n; i++ {
		pos := (h.writePos - i + h.maxSize) % h.maxSize
		result = append(result, h.records[pos])
	}
	return result
}

// Get returns the record with the given run id.
func (h *History) Get(id string) (RunRecord, bool) {
	for _, r := range h.All() {
		if r.ID == id {
			return r, true
		}
	}
	return RunRecord{}, false
}

// Count returns the number of records currently kept.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return min(h.count, h.maxSize)
}
