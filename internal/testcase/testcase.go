// Package testcase reads relevance test files. Each line carries a query and
// the description of the hit expected at the top, both double-quoted:
//
//	"bacon" "Smoky Bacon Strips"
//
// Anything outside the two quoted fields is ignored, but a line must contain
// exactly two of them.
package testcase

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
)

var quotedField = regexp.MustCompile(`".*?"`)

// TestCase is one query with its expected top result.
type TestCase struct {
	Query    string `json:"query"`
	Expected string `json:"expected"`
}

// FormatError reports a line that does not hold exactly two quoted fields.
type FormatError struct {
	File   string
	Line   int
	Raw    string
	Fields int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unexpected input from %s line %d (%d quoted fields, want 2): %s", e.File, e.Line, e.Fields, e.Raw)
}

func (e *FormatError) Unwrap() error {
	return apperrors.ErrFormat
}

// Result is the outcome of parsing one line: either Case or Err is set.
type Result struct {
	Line int
	Raw  string
	Case TestCase
	Err  error
}

// OK reports whether the line parsed.
func (r Result) OK() bool {
	return r.Err == nil
}

// ParseLine extracts the query and expected description from a single line.
func ParseLine(line string) (TestCase, int, bool) {
	matches := quotedField.FindAllString(line, -1)
	if len(matches) != 2 {
		return TestCase{}, len(matches), false
	}
	return TestCase{
		Query:    strings.Trim(matches[0], `"`),
		Expected: strings.Trim(matches[1], `"`),
	}, 2, true
}

// Parse reads every line of r. Malformed lines produce a Result carrying a
// *FormatError; deciding whether that aborts the run is left to the caller.
// Blank trailing lines are ignored.
func Parse(r io.Reader, file string) ([]Result, error) {
	var results []Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	pendingBlank := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(raw) == "" {
			pendingBlank++
			continue
		}
		for ; pendingBlank > 0; pendingBlank-- {
			blankNo := lineNo - pendingBlank
			results = append(results, Result{
				Line: blankNo,
				Err:  &FormatError{File: file, Line: blankNo},
			})
		}
		res := Result{Line: lineNo, Raw: raw}
		tc, fields, ok := ParseLine(raw)
		if ok {
			res.Case = tc
		} else {
			res.Err = &FormatError{File: file, Line: lineNo, Raw: raw, Fields: fields}
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return results, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening test file: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}
