// Package scorer converts the rank of the expected hit into a score.
package scorer

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/searchclient"
)

// DefaultDepth is how many hits are inspected before giving up.
const DefaultDepth = 10

// Table maps a 1-based position to its score. Positions missing from the
// table score 0.
type Table map[int]int

// DefaultTable returns the stock policy: 100 for the top hit, then 50, 40,
// 30, 20, and 10 for positions 6 through 10.
func DefaultTable() Table {
	return Table{1: 100, 2: 50, 3: 40, 4: 30, 5: 20, 6: 10, 7: 10, 8: 10, 9: 10, 10: 10}
}

// Score returns the table value for position when found, otherwise 0.
func (t Table) Score(position int, found bool) int {
	if !found {
		return 0
	}
	return t[position]
}

// Max is the highest score any position can earn.
func (t Table) Max() int {
	best := 0
	for _, v := range t {
		if v > best {
			best = v
		}
	}
	return best
}

// Outcome is the result of scanning one response.
type Outcome struct {
	Found    bool
	Position int
	Score    int
	// Scanned holds the hits inspected, in rank order, up to and including
	// the match.
	Scanned []searchclient.Hit
}

type Scorer struct {
	table Table
	depth int
}

func New(table Table, depth int) *Scorer {
	if table == nil {
		table = DefaultTable()
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Scorer{table: table, depth: depth}
}

func (s *Scorer) Table() Table {
	return s.table
}

// Evaluate scans hits in rank order and stops at the first description equal
// to expected, ignoring case, or after depth hits.
func (s *Scorer) Evaluate(hits []searchclient.Hit, expected string) Outcome {
	var out Outcome
	for i, hit := range hits {
		if i >= s.depth {
			break
		}
		out.Scanned = append(out.Scanned, hit)
		if strings.EqualFold(hit.Description, expected) {
			out.Found = true
			out.Position = i + 1
			break
		}
	}
	out.Score = s.table.Score(out.Position, out.Found)
	return out
}
