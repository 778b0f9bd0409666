package runner

import (
	"time"

	"github.com/se302/webtest/pkg/parser"
)

// event names pushed to the client that requested a run.
const (
	EventStarted   = "test:started"
	EventOutput    = "test:output"
	EventProgress  = "test:progress"
	EventPassed    = "test:passed"
	EventFailed    = "test:failed"
	EventCompleted = "test:completed"
	EventError     = "test:error"
	EventStopped   = "test:stopped"
)

// client-facing messages.
const (
	StoppedMessage        = "Tests stopped"             // acknowledgement of a successful stop
	AlreadyRunningMessage = "Tests are already running" // rejection of a start while running
)

// Emitter receives the events of one run in order. calls are serialized per run.
type Emitter func(event string, data any)

// StartedData is the payload of EventStarted.
type StartedData struct {
	TestIDs   []string  `json:"testIds"`
	RunID     string    `json:"runId"`
	Filter    string    `json:"filter,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OutputData is the payload of EventOutput. Type is "stdout" or "stderr".
type OutputData struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ProgressData is the payload of EventProgress.
type ProgressData struct {
	Total int `json:"total"`
}

// CompletedData is the payload of EventCompleted. Code is -1 when the runner was killed by a signal.
type CompletedData struct {
	Code      int            `json:"code"`
	Results   parser.Summary `json:"results"`
	RunID     string         `json:"runId"`
	Timestamp time.Time      `json:"timestamp"`
}

// ErrorData is the payload of EventError.
type ErrorData struct {
	Error string `json:"error"`
}

// StoppedData is the payload of EventStopped.
type StoppedData struct {
	Message string `json:"message"`
}
