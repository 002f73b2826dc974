// Package report accumulates per-query outcomes and renders the run summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/searchclient"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

const separator = "--------------------------------------------------------------------------------"

// QueryDetail is everything recorded about one test case.
type QueryDetail struct {
	Line     int                `json:"line"`
	Query    string             `json:"query"`
	Expected string             `json:"expected"`
	Found    bool               `json:"found"`
	Position int                `json:"position,omitempty"`
	Score    int                `json:"score"`
	Hits     []searchclient.Hit `json:"hits,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Record holds the running totals of a run. Max grows by PerCase for every
// evaluated case whatever its outcome.
type Record struct {
	Combined int           `json:"combined_score"`
	Max      int           `json:"max_combined_score"`
	PerCase  int           `json:"-"`
	Details  []QueryDetail `json:"queries"`
	Skipped  []int         `json:"skipped_lines,omitempty"`
	Failed   int           `json:"failed_queries"`
}

func NewRecord(perCase int) *Record {
	if perCase <= 0 {
		perCase = 100
	}
	return &Record{PerCase: perCase}
}

// Add folds one case into the totals.
func (r *Record) Add(d QueryDetail) {
	r.Max += r.PerCase
	r.Combined += d.Score
	if d.Error != "" {
		r.Failed++
	}
	r.Details = append(r.Details, d)
}

// Skip notes a malformed line that was left out of the run.
func (r *Record) Skip(line int) {
	r.Skipped = append(r.Skipped, line)
}

// SummaryLine renders "<combined> / <max>".
func (r *Record) SummaryLine() string {
	return fmt.Sprintf("%d / %d", r.Combined, r.Max)
}

// Reporter writes a finished Record.
type Reporter struct {
	Note     string
	Detailed bool
	Format   string
}

func (rp Reporter) Write(w io.Writer, rec *Record) error {
	if rp.Format == FormatJSON {
		return rp.writeJSON(w, rec)
	}
	return rp.writeText(w, rec)
}

func (rp Reporter) writeText(w io.Writer, rec *Record) error {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "Combined test result: %s\n", rec.SummaryLine())
	if rp.Note != "" {
		fmt.Fprintf(&b, "(%s)\n", rp.Note)
	}
	b.WriteString(separator + "\n")
	b.WriteString("\n")
	if rp.Detailed {
		for _, d := range rec.Details {
			writeDetail(&b, d)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDetail(b *strings.Builder, d QueryDetail) {
	fmt.Fprintf(b, "%s (expecting: \"%s\"):\n", d.Query, d.Expected)
	if d.Error != "" {
		fmt.Fprintf(b, "   error: %s\n", d.Error)
	}
	for _, h := range d.Hits {
		fmt.Fprintf(b, "   %s (id=%s, score=%s)\n", h.Description, h.ID, formatScore(h.Score))
	}
	b.WriteString("\n")
}

// formatScore prints the shortest decimal form, so integer-valued scores
// carry no fractional part.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

type jsonReport struct {
	Summary string `json:"summary"`
	Note    string `json:"note,omitempty"`
	*Record
}

func (rp Reporter) writeJSON(w io.Writer, rec *Record) error {
	out := jsonReport{Summary: rec.SummaryLine(), Note: rp.Note, Record: rec}
	if !rp.Detailed {
		trimmed := *rec
		trimmed.Details = make([]QueryDetail, len(rec.Details))
		for i, d := range rec.Details {
			d.Hits = nil
			trimmed.Details[i] = d
		}
		out.Record = &trimmed
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
