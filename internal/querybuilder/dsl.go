package querybuilder

import (
	"bytes"
	"encoding/json"
)

// Request is the body POSTed to the _search endpoint.
type Request struct {
	Query     Query      `json:"query"`
	Highlight *Highlight `json:"highlight,omitempty"`
}

type Query struct {
	Bool BoolQuery `json:"bool"`
}

type BoolQuery struct {
	Must    []Clause `json:"must,omitempty"`
	Filter  []Clause `json:"filter,omitempty"`
	Should  []Clause `json:"should,omitempty"`
	MustNot []Clause `json:"must_not,omitempty"`
}

// Clause holds exactly one leaf query.
type Clause struct {
	Match      *Match      `json:"match,omitempty"`
	MultiMatch *MultiMatch `json:"multi_match,omitempty"`
	SpanFirst  *SpanFirst  `json:"span_first,omitempty"`
}

// Match is a full-text match on a single field. It serialises under the
// field name: {"<field>": {"query": ..., "analyzer": ...}}.
type Match struct {
	Field    string
	Query    string
	Analyzer string
}

type matchBody struct {
	Query    string `json:"query"`
	Analyzer string `json:"analyzer,omitempty"`
}

func (m Match) MarshalJSON() ([]byte, error) {
	return encode(map[string]matchBody{
		m.Field: {Query: m.Query, Analyzer: m.Analyzer},
	})
}

type MultiMatch struct {
	Query    string   `json:"query"`
	Fields   []string `json:"fields"`
	Type     string   `json:"type,omitempty"`
	Operator string   `json:"operator,omitempty"`
}

type SpanFirst struct {
	Match SpanMatch `json:"match"`
	End   int       `json:"end"`
}

type SpanMatch struct {
	SpanTerm SpanTerm `json:"span_term"`
}

// SpanTerm serialises as {"<field>": "<value>"}.
type SpanTerm struct {
	Field string
	Value string
}

func (s SpanTerm) MarshalJSON() ([]byte, error) {
	return encode(map[string]string{s.Field: s.Value})
}

type Highlight struct {
	PreTags  []string        `json:"pre_tags"`
	PostTags []string        `json:"post_tags"`
	Fields   HighlightFields `json:"fields"`
}

// HighlightFields lists highlighted fields with default settings:
// {"Description": {}}.
type HighlightFields []string

func (h HighlightFields) MarshalJSON() ([]byte, error) {
	fields := make(map[string]struct{}, len(h))
	for _, f := range h {
		fields[f] = struct{}{}
	}
	return encode(fields)
}

// Marshal renders a request body. Output is byte-identical for equal
// requests and keeps markup such as <strong> unescaped.
func Marshal(req Request) ([]byte, error) {
	return encode(req)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
