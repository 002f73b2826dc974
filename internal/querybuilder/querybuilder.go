// Package querybuilder turns a test query into the request body sent to the
// search endpoint. Each template is a Strategy; exactly one is selected per
// run by name.
package querybuilder

import (
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
)

const (
	DescriptionField    = "Description"
	PhoodField          = "inPhood001"
	DescriptionAnalyzer = "description_analyzer"
)

// Strategy builds a request body for a query. Build must be pure: the same
// query always yields an equal Request.
type Strategy interface {
	Name() string
	Build(query string) Request
}

var registry = map[string]func() Strategy{
	"multi_match": func() Strategy { return NewMultiMatch() },
	"filtered":    func() Strategy { return NewFiltered() },
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrConfig, apperrors.ExitUsage,
			"unknown query strategy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MultiMatchStrategy ORs the query terms across the description field and
// boosts hits that start with the query.
type MultiMatchStrategy struct {
	Field      string
	BoostTerms []string
}

func NewMultiMatch() *MultiMatchStrategy {
	return &MultiMatchStrategy{
		Field:      DescriptionField,
		BoostTerms: []string{"raw", "tap"},
	}
}

func (s *MultiMatchStrategy) Name() string { return "multi_match" }

func (s *MultiMatchStrategy) Build(query string) Request {
	quoted := quote(query)
	should := []Clause{{
		SpanFirst: &SpanFirst{
			Match: SpanMatch{SpanTerm: SpanTerm{Field: s.Field, Value: quoted}},
			End:   1,
		},
	}}
	should = append(should, termMatches(s.Field, s.BoostTerms)...)
	return Request{
		Query: Query{Bool: BoolQuery{
			Must: []Clause{{
				MultiMatch: &MultiMatch{
					Query:    quoted,
					Fields:   []string{s.Field},
					Type:     "best_fields",
					Operator: "or",
				},
			}},
			Should: should,
		}},
		Highlight: highlight(s.Field),
	}
}

// FilteredStrategy restricts candidates with an analyzed match on the filter
// field, ranks them by the same match on the description, and drops
// documents matching any exclude term.
type FilteredStrategy struct {
	FilterField  string
	Field        string
	Analyzer     string
	BoostTerms   []string
	ExcludeTerms []string
}

func NewFiltered() *FilteredStrategy {
	return &FilteredStrategy{
		FilterField:  PhoodField,
		Field:        DescriptionField,
		Analyzer:     DescriptionAnalyzer,
		BoostTerms:   []string{"tap"},
		ExcludeTerms: []string{"meatless"},
	}
}

func (s *FilteredStrategy) Name() string { return "filtered" }

func (s *FilteredStrategy) Build(query string) Request {
	quoted := quote(query)
	should := []Clause{{
		Match: &Match{Field: s.Field, Query: quoted, Analyzer: s.Analyzer},
	}}
	should = append(should, termMatches(s.Field, s.BoostTerms)...)
	return Request{
		Query: Query{Bool: BoolQuery{
			Filter: []Clause{{
				Match: &Match{Field: s.FilterField, Query: quoted, Analyzer: s.Analyzer},
			}},
			Should:  should,
			MustNot: termMatches(s.Field, s.ExcludeTerms),
		}},
		Highlight: highlight(s.Field),
	}
}

func quote(query string) string {
	return `"` + query + `"`
}

func termMatches(field string, terms []string) []Clause {
	if len(terms) == 0 {
		return nil
	}
	clauses := make([]Clause, 0, len(terms))
	for _, term := range terms {
		clauses = append(clauses, Clause{Match: &Match{Field: field, Query: term}})
	}
	return clauses
}

func highlight(field string) *Highlight {
	return &Highlight{
		PreTags:  []string{"<strong>"},
		PostTags: []string{"</strong>"},
		Fields:   HighlightFields{field},
	}
}
