package runner

import (
	"strconv"
	"strings"
)

// Options are per-run runner flags sent by the client.
type Options struct {
	Workers *int   `json:"workers,omitempty"` // nil uses the configured default, not validated
	Project string `json:"project,omitempty"` // empty uses the configured default
	Headed  bool   `json:"headed,omitempty"`
	UI      bool   `json:"ui,omitempty"`
}

// Request asks for a run of the given composite case ids.
type Request struct {
	TestIDs []string `json:"testIds"`
	Options Options  `json:"options"`
}

// Defaults are the configured fallbacks for Options and the reporter.
type Defaults struct {
	Project  string
	Workers  int
	Reporter string
}

// CaseToken returns the number following the first "TC" segment of a composite id,
// e.g. "postlogin-navigation-TC-002" gives "002". only digits are accepted.
func CaseToken(compositeID string) (string, bool) {
	parts := strings.Split(compositeID, "-")
	for i, p := range parts {
		if p != "TC" {
			continue
		}
		if i+1 >= len(parts) || !isDigits(parts[i+1]) {
			return "", false
		}
		return parts[i+1], true
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BuildFilter builds the runner's grep expression "TC-(n1|n2|...)" from composite ids.
// ids without a numeric case token are dropped. returns empty string when none remain,
// which means the full suite runs unfiltered.
func BuildFilter(testIDs []string) string {
	tokens := make([]string, 0, len(testIDs))
	for _, id := range testIDs {
		if tok, ok := CaseToken(id); ok {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return ""
	}
	return "TC-(" + strings.Join(tokens, "|") + ")"
}

// BuildArgs returns runner arguments: test [--grep F] --project P --workers N [--headed] [--ui] --reporter R.
func BuildArgs(filter string, opts Options, d Defaults) []string {
	args := []string{"test"}
	if filter != "" {
		args = append(args, "--grep", filter)
	}

	project := opts.Project
	if project == "" {
		project = d.Project
	}
	if project == "" {
		project = "chromium"
	}
	args = append(args, "--project", project)

	workers := d.Workers
	if workers == 0 {
		workers = 1
	}
	if opts.Workers != nil {
		workers = *opts.Workers
	}
	args = append(args, "--workers", strconv.Itoa(workers))

	if opts.Headed {
		args = append(args, "--headed")
	}
	if opts.UI {
		args = append(args, "--ui")
	}

	reporter := d.Reporter
	if reporter == "" {
		reporter = "list"
	}
	return append(args, "--reporter", reporter)
}
