// Package parser turns the runner's human-readable list reporter output into
// structured progress events.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acarl005/stripansi"
)

// patterns of the list reporter. compiled once, each one is a versioned contract
// with the runner output format and has its own tests.
var (
	runningRegex = regexp.MustCompile(`Running (\d+) tests?`)
	passedRegex  = regexp.MustCompile(`✓\s+(\d+)\s+\[([^\]]+)\]\s+›\s+([^\n]+)`)
	failedRegex  = regexp.MustCompile(`✘\s+(\d+)\s+\[([^\]]+)\]\s+›\s+([^\n]+)`)

	summaryPassedRegex  = regexp.MustCompile(`(\d+)\s+passed`)
	summaryFailedRegex  = regexp.MustCompile(`(\d+)\s+failed`)
	summarySkippedRegex = regexp.MustCompile(`(\d+)\s+skipped`)
)

// Kind is the kind of structured event derived from output.
type Kind string

// event kinds.
const (
	KindProgress Kind = "progress" // announced total number of tests
	KindPassed   Kind = "passed"   // single test passed
	KindFailed   Kind = "failed"   // single test failed
)

// TestResult describes one reported test.
type TestResult struct {
	Test    string `json:"test"`    // test title path as printed by the runner
	Browser string `json:"browser"` // worker/project label in brackets
}

// Summary holds final counters of a run. Missing counters are zero.
type Summary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the number of tests covered by the summary.
func (s Summary) Total() int {
	return s.Passed + s.Failed + s.Skipped
}

// Event is a structured event extracted from a chunk of output.
type Event struct {
	Kind   Kind
	Total  int        // set for KindProgress
	Result TestResult // set for KindPassed and KindFailed
}

// ExtractProgressTotal matches a "Running N tests" announcement.
func ExtractProgressTotal(chunk string) (int, bool) {
	m := runningRegex.FindStringSubmatch(stripansi.Strip(chunk))
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExtractPassed returns the first pass marker in chunk.
func ExtractPassed(chunk string) (TestResult, bool) {
	return firstResult(passedRegex, chunk)
}

// ExtractFailed returns the first fail marker in chunk.
func ExtractFailed(chunk string) (TestResult, bool) {
	return firstResult(failedRegex, chunk)
}

// ExtractSummary reads the trailing summary counters from the full accumulated output.
func ExtractSummary(output string) Summary {
	clean := stripansi.Strip(output)
	return Summary{
		Passed:  firstInt(summaryPassedRegex, clean),
		Failed:  firstInt(summaryFailedRegex, clean),
		Skipped: firstInt(summarySkippedRegex, clean),
	}
}

func firstResult(re *regexp.Regexp, chunk string) (TestResult, bool) {
	m := re.FindStringSubmatch(stripansi.Strip(chunk))
	if len(m) < 4 {
		return TestResult{}, false
	}
	return TestResult{Test: strings.TrimSpace(m[3]), Browser: m[2]}, true
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Parser is an incremental line parser for a single run. Chunks do not need to be
// line aligned: a trailing partial line is carried over to the next Feed call.
// Not safe for concurrent use.
type Parser struct {
	carry string
}

// New creates a parser with an empty carry-over buffer.
func New() *Parser {
	return &Parser{}
}

// Feed consumes a chunk and returns every event found in its complete lines,
// in order of appearance.
func (p *Parser) Feed(chunk string) []Event {
	data := p.carry + chunk
	idx := strings.LastIndexByte(data, '\n')
	if idx < 0 {
		p.carry = data
		return nil
	}
	p.carry = data[idx+1:]
	return parseLines(data[:idx+1])
}

// Flush parses whatever partial line is left in the buffer and resets it.
func (p *Parser) Flush() []Event {
	rest := p.carry
	p.carry = ""
	if rest == "" {
		return nil
	}
	return parseLines(rest)
}

func parseLines(text string) []Event {
	var events []Event
	for line := range strings.SplitSeq(text, "\n") {
		line = stripansi.Strip(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		if ev, ok := parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// parseLine matches a single clean line. the list reporter prints one marker per line.
func parseLine(line string) (Event, bool) {
	if n, ok := ExtractProgressTotal(line); ok {
		return Event{Kind: KindProgress, Total: n}, true
	}
	if r, ok := firstResult(passedRegex, line); ok {
		return Event{Kind: KindPassed, Result: r}, true
	}
	if r, ok := firstResult(failedRegex, line); ok {
		return Event{Kind: KindFailed, Result: r}, true
	}
	return Event{}, false
}
