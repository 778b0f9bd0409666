// Package render prints the test catalog for the terminal and for export.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"

	"github.com/se302/webtest/pkg/catalog"
)

// Format is a catalog output format.
type Format string

// supported formats.
const (
	FormatTable Format = "table" // markdown tables, styled by glamour unless colors are off
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// wordWrap is the terminal width used for styled output.
const wordWrap = 100

// Catalog writes suites to w in the given format.
func Catalog(w io.Writer, suites []catalog.TestSuite, format Format, noColor bool) error {
	var out string
	switch format {
	case FormatTable, "":
		md := CatalogMarkdown(suites)
		rendered, err := RenderMarkdown(md, noColor)
		if err != nil {
			return err
		}
		out = rendered
	case FormatYAML:
		data, err := yaml.Marshal(catalogDoc{Suites: nonNil(suites), Cases: catalog.CountCases(suites)})
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		out = string(data)
	case FormatJSON:
		data, err := json.MarshalIndent(nonNil(suites), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		out = string(data) + "\n"
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// catalogDoc is the yaml export document.
type catalogDoc struct {
	Cases  int                 `yaml:"cases"`
	Suites []catalog.TestSuite `yaml:"suites"`
}

// CatalogMarkdown builds one markdown table per category, in discovery order.
func CatalogMarkdown(suites []catalog.TestSuite) string {
	if len(suites) == 0 {
		return "_no test suites found_\n"
	}

	var categories []catalog.Category
	byCategory := make(map[catalog.Category][]catalog.TestSuite)
	for _, s := range suites {
		if _, ok := byCategory[s.Category]; !ok {
			categories = append(categories, s.Category)
		}
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Test catalog\n\n%d suites, %d cases\n", len(suites), catalog.CountCases(suites))
	for _, cat := range categories {
		fmt.Fprintf(&b, "\n## %s\n\n", cat)
		b.WriteString("| id | suite | description | timeout | skipped |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, s := range byCategory[cat] {
			for _, tc := range s.TestCases {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
					cell(s.CompositeID(tc)), cell(s.Name), cell(tc.Description), timeout(tc.Timeout), skipped(tc.Skipped))
			}
		}
	}
	return b.String()
}

// RenderMarkdown renders markdown content for terminal display.
// If noColor is true, returns the content unchanged.
func RenderMarkdown(content string, noColor bool) (string, error) {
	if noColor {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}

	result, err := renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return result, nil
}

// cell escapes table separators and line breaks.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func timeout(ms *int) string {
	if ms == nil {
		return "-"
	}
	return strconv.Itoa(*ms) + "ms"
}

func skipped(v bool) string {
	if v {
		return "yes"
	}
	return ""
}

func nonNil(suites []catalog.TestSuite) []catalog.TestSuite {
	if suites == nil {
		return []catalog.TestSuite{}
	}
	return suites
}
