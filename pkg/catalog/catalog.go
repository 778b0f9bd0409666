// Package catalog discovers test suites and cases from the static text of test source files.
package catalog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// TestFileSuffix is the naming convention for test source files.
const TestFileSuffix = ".test.js"

// Category groups suites by the directory they were found in.
type Category string

// known categories.
const (
	CategoryFunctional Category = "functional"
	CategorySmoke      Category = "smoke"
	CategoryOther      Category = "other"
)

// CategoryOf maps a category directory name to its Category.
func CategoryOf(dir string) Category {
	switch Category(filepath.Base(dir)) {
	case CategoryFunctional:
		return CategoryFunctional
	case CategorySmoke:
		return CategorySmoke
	default:
		return CategoryOther
	}
}

// TestCase is a single discovered test scenario.
type TestCase struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Timeout     *int     `json:"timeout" yaml:"timeout,omitempty"` // per-test timeout in ms, nil if not set
	Skipped     bool     `json:"skipped" yaml:"skipped"`
	File        string   `json:"file" yaml:"file"` // path relative to the tests root
	Category    Category `json:"category" yaml:"category"`
}

// TestSuite is a named group of cases from one source file.
type TestSuite struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	File      string     `json:"file" yaml:"file"`
	Category  Category   `json:"category" yaml:"category"`
	TestCases []TestCase `json:"testCases" yaml:"cases"`
	Path      string     `json:"path" yaml:"-"` // absolute source path
}

// CompositeID returns the client-facing selection key of a case in this suite.
func (s TestSuite) CompositeID(c TestCase) string {
	return s.ID + "-" + c.ID
}

// static patterns over test source text.
var (
	describeRegex = regexp.MustCompile(`test\.describe\(['"]([^'"]+)['"]`)
	testRegex     = regexp.MustCompile(`test\(['"]([^'"]+)['"]`)
	caseIDRegex   = regexp.MustCompile(`TC-[\w-]+`)
	caseIDPrefix  = regexp.MustCompile(`TC-[\w-]+:\s*`)
	timeoutRegex  = regexp.MustCompile(`test\.setTimeout\((\d+)\)`)
	skipRegex     = regexp.MustCompile(`test\.skip\(`)
)

// Discover scans category directories under rootDir and returns discovered suites in
// directory scan order, then file scan order. Missing directories and unreadable files
// are skipped, never reported as errors.
func Discover(rootDir string, categoryDirs []string) []TestSuite {
	var suites []TestSuite
	for _, dir := range categoryDirs {
		dirPath := filepath.Join(rootDir, dir)
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("[WARN] read test dir %s: %v", dirPath, err)
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), TestFileSuffix) {
				continue
			}
			filePath := filepath.Join(dirPath, entry.Name())
			data, err := os.ReadFile(filePath) //nolint:gosec // path comes from directory listing
			if err != nil {
				log.Printf("[WARN] read test file %s: %v", filePath, err)
				continue
			}
			rel, err := filepath.Rel(rootDir, filePath)
			if err != nil {
				rel = filepath.Join(dir, entry.Name())
			}
			if suite, ok := ParseFile(filepath.ToSlash(rel), string(data), CategoryOf(dir)); ok {
				suite.Path = filePath
				suites = append(suites, suite)
			}
		}
	}
	return suites
}

// ParseFile extracts a suite from the source text of one test file.
// relPath is used for the suite and case file fields; the suite id is its base name.
// returns false if the file declares no cases.
func ParseFile(relPath, content string, category Category) (TestSuite, bool) {
	fileName := strings.TrimSuffix(filepath.Base(relPath), TestFileSuffix)

	suiteName := fileName
	if m := describeRegex.FindStringSubmatch(content); len(m) > 1 {
		suiteName = m[1]
	}

	var cases []TestCase
	for _, loc := range testRegex.FindAllStringSubmatchIndex(content, -1) {
		title := content[loc[2]:loc[3]]
		body := caseBody(content, loc[0])

		id := caseIDRegex.FindString(title)
		if id == "" {
			id = fileName + "-" + strconv.Itoa(len(cases)+1)
		}

		tc := TestCase{
			ID:          id,
			Name:        title,
			Description: Description(title),
			Skipped:     skipRegex.MatchString(body),
			File:        relPath,
			Category:    category,
		}
		if m := timeoutRegex.FindStringSubmatch(body); len(m) > 1 {
			if ms, err := strconv.Atoi(m[1]); err == nil {
				tc.Timeout = &ms
			}
		}
		cases = append(cases, tc)
	}

	if len(cases) == 0 {
		return TestSuite{}, false
	}

	return TestSuite{
		ID:        fileName,
		Name:      suiteName,
		File:      relPath,
		Category:  category,
		TestCases: cases,
	}, true
}

// Description strips the first case identifier prefix ("TC-010: ") from a test title.
func Description(title string) string {
	if loc := caseIDPrefix.FindStringIndex(title); loc != nil {
		title = title[:loc[0]] + title[loc[1]:]
	}
	return strings.TrimSpace(title)
}

// caseBody returns the text from a test declaration up to its first closing marker.
// without a closing marker the body runs to the end of the file.
func caseBody(content string, start int) string {
	end := strings.Index(content[start:], "});")
	if end < 0 {
		return content[start:]
	}
	return content[start : start+end]
}

// Duplicates returns composite ids that occur more than once across suites.
func Duplicates(suites []TestSuite) []string {
	seen := make(map[string]int)
	var dups []string
	for _, s := range suites {
		for _, c := range s.TestCases {
			id := s.CompositeID(c)
			seen[id]++
			if seen[id] == 2 {
				dups = append(dups, id)
			}
		}
	}
	return dups
}

// CountCases returns the total number of cases across suites.
func CountCases(suites []TestSuite) int {
	n := 0
	for _, s := range suites {
		n += len(s.TestCases)
	}
	return n
}

// String implements fmt.Stringer for log output.
func (s TestSuite) String() string {
	return fmt.Sprintf("%s (%s, %d cases)", s.ID, s.Category, len(s.TestCases))
}
