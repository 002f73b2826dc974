// Package evaluator runs a parsed test file against the search endpoint one
// case at a time, in file order, and accumulates the scores.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/history"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/scorer"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/searchclient"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/testcase"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/tracing"
	"github.com/google/uuid"
)

// Options wires an Evaluator. Strategy and Searcher are required; the rest
// fall back to the stock policy or are skipped when nil.
type Options struct {
	Strategy    querybuilder.Strategy
	Searcher    searchclient.Searcher
	Scorer      *scorer.Scorer
	MaxPerCase  int
	OnMalformed string

	// Run metadata carried into history records.
	Endpoint string
	TestFile string
	Note     string

	Metrics   *metrics.Metrics
	Recorders []history.Recorder
}

// Summary is a finished run.
type Summary struct {
	RunID      string
	Strategy   string
	Record     *report.Record
	StartedAt  time.Time
	FinishedAt time.Time
}

type Evaluator struct {
	opts Options
}

func New(opts Options) *Evaluator {
	if opts.Scorer == nil {
		opts.Scorer = scorer.New(nil, 0)
	}
	if opts.OnMalformed == "" {
		opts.OnMalformed = config.OnMalformedAbort
	}
	return &Evaluator{opts: opts}
}

// Run evaluates every parsed line. Under the abort policy the first malformed
// line ends the run with its *testcase.FormatError; under skip it is logged
// and left out of the totals. Search failures never end the run: the case
// scores 0 and the reason lands in its detail entry.
func (e *Evaluator) Run(ctx context.Context, results []testcase.Result) (*Summary, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "evaluator", "strategy", e.opts.Strategy.Name())
	ctx, span := tracing.StartSpan(ctx, "evaluation", runID)
	defer span.Log(ctx, log)
	defer span.End()

	summary := &Summary{
		RunID:     runID,
		Strategy:  e.opts.Strategy.Name(),
		Record:    report.NewRecord(e.opts.MaxPerCase),
		StartedAt: time.Now().UTC(),
	}
	log.Info("evaluation started", "lines", len(results))

	for _, res := range results {
		if err := ctx.Err(); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("evaluation interrupted after %d cases: %w", len(summary.Record.Details), err)
		}
		if !res.OK() {
			if e.opts.OnMalformed != config.OnMalformedSkip {
				span.SetError(res.Err)
				log.Error("malformed test case, aborting", "line", res.Line, "error", res.Err)
				return nil, res.Err
			}
			log.Warn("skipping malformed test case", "line", res.Line, "error", res.Err)
			summary.Record.Skip(res.Line)
			if e.opts.Metrics != nil {
				e.opts.Metrics.SkippedLinesTotal.Inc()
			}
			continue
		}
		summary.Record.Add(e.evaluate(ctx, log, res))
	}

	summary.FinishedAt = time.Now().UTC()
	rec := summary.Record
	span.SetAttr("combined", rec.Combined)
	span.SetAttr("max", rec.Max)
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveTotals(rec.Combined, rec.Max)
	}
	log.Info("evaluation finished",
		"combined", rec.Combined,
		"max", rec.Max,
		"failed", rec.Failed,
		"skipped", len(rec.Skipped),
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
	)

	e.record(ctx, log, summary)
	return summary, nil
}

func (e *Evaluator) evaluate(ctx context.Context, log *slog.Logger, res testcase.Result) report.QueryDetail {
	ctx, span := tracing.StartChildSpan(ctx, "query")
	defer span.End()
	span.SetAttr("line", res.Line)
	span.SetAttr("query", res.Case.Query)

	detail := report.QueryDetail{
		Line:     res.Line,
		Query:    res.Case.Query,
		Expected: res.Case.Expected,
	}

	req := e.opts.Strategy.Build(res.Case.Query)
	start := time.Now()
	hits, err := e.opts.Searcher.Search(ctx, req)
	latency := time.Since(start)
	if err != nil {
		span.SetError(err)
		detail.Error = err.Error()
		if apperrors.IsPerQuery(err) {
			log.Warn("query failed", "line", res.Line, "query", res.Case.Query, "error", err)
		} else {
			log.Error("query failed with unexpected error", "line", res.Line, "query", res.Case.Query, "error", err)
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveQuery(metrics.OutcomeError, 0, 0, latency)
		}
		return detail
	}

	out := e.opts.Scorer.Evaluate(hits, res.Case.Expected)
	detail.Found = out.Found
	detail.Position = out.Position
	detail.Score = out.Score
	detail.Hits = out.Scanned
	span.SetAttr("score", out.Score)

	log.Debug("query scored",
		"line", res.Line,
		"query", res.Case.Query,
		"found", out.Found,
		"position", out.Position,
		"score", out.Score,
		"latency_ms", latency.Milliseconds(),
	)
	if e.opts.Metrics != nil {
		outcome := metrics.OutcomeMissed
		if out.Found {
			outcome = metrics.OutcomeFound
		}
		e.opts.Metrics.ObserveQuery(outcome, out.Score, out.Position, latency)
	}
	return detail
}

// record hands the run to every configured recorder. A failing recorder is
// logged and does not change the outcome of the run.
func (e *Evaluator) record(ctx context.Context, log *slog.Logger, s *Summary) {
	if len(e.opts.Recorders) == 0 {
		return
	}
	run, results := e.historyOf(s)
	for _, r := range e.opts.Recorders {
		if err := r.RecordRun(ctx, run, results); err != nil {
			log.Error("recording run failed", "recorder", fmt.Sprintf("%T", r), "error", err)
		}
	}
}

func (e *Evaluator) historyOf(s *Summary) (history.Run, []history.QueryResult) {
	rec := s.Record
	run := history.Run{
		ID:         s.RunID,
		Strategy:   s.Strategy,
		Endpoint:   e.opts.Endpoint,
		TestFile:   e.opts.TestFile,
		Note:       e.opts.Note,
		Combined:   rec.Combined,
		Max:        rec.Max,
		Cases:      len(rec.Details),
		Failed:     rec.Failed,
		Skipped:    len(rec.Skipped),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
	results := make([]history.QueryResult, 0, len(rec.Details))
	for _, d := range rec.Details {
		results = append(results, history.QueryResult{
			Line:     d.Line,
			Query:    d.Query,
			Expected: d.Expected,
			Found:    d.Found,
			Position: d.Position,
			Score:    d.Score,
			Error:    d.Error,
		})
	}
	return run, results
}
