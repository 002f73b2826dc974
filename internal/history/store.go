package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/postgres"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS eval_runs (
	id             UUID PRIMARY KEY,
	strategy       TEXT        NOT NULL,
	endpoint       TEXT        NOT NULL,
	test_file      TEXT        NOT NULL,
	note           TEXT        NOT NULL DEFAULT '',
	combined_score INTEGER     NOT NULL,
	max_score      INTEGER     NOT NULL,
	cases          INTEGER     NOT NULL,
	failed         INTEGER     NOT NULL,
	skipped        INTEGER     NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS eval_results (
	run_id   UUID    NOT NULL REFERENCES eval_runs(id) ON DELETE CASCADE,
	line     INTEGER NOT NULL,
	query    TEXT    NOT NULL,
	expected TEXT    NOT NULL,
	found    BOOLEAN NOT NULL,
	position INTEGER NOT NULL,
	score    INTEGER NOT NULL,
	error    TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, line)
);
CREATE INDEX IF NOT EXISTS eval_runs_finished_at_idx ON eval_runs (finished_at DESC);
`

// Store saves runs to Postgres.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

var _ Recorder = (*Store)(nil)

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("history-store"),
	}
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// RecordRun inserts the run row and bulk-copies its results in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, results []QueryResult) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO eval_runs (id, strategy, endpoint, test_file, note,
				combined_score, max_score, cases, failed, skipped, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			run.ID, run.Strategy, run.Endpoint, run.TestFile, run.Note,
			run.Combined, run.Max, run.Cases, run.Failed, run.Skipped, run.StartedAt, run.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		if len(results) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("eval_results",
			"run_id", "line", "query", "expected", "found", "position", "score", "error"))
		if err != nil {
			return fmt.Errorf("preparing results copy: %w", err)
		}
		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, run.ID, r.Line, r.Query, r.Expected, r.Found, r.Position, r.Score, r.Error); err != nil {
				stmt.Close()
				return fmt.Errorf("copying result for line %d: %w", r.Line, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing results copy: %w", err)
		}
		return stmt.Close()
	})
	if err != nil {
		return err
	}
	s.logger.Info("run saved", "run_id", run.ID, "results", len(results))
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty strategy
// matches every strategy.
func (s *Store) ListRuns(ctx context.Context, strategy string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, strategy, endpoint, test_file, note, combined_score, max_score,
			cases, failed, skipped, started_at, finished_at
		FROM eval_runs
		WHERE $1::text = '' OR strategy = $1
		ORDER BY finished_at DESC
		LIMIT $2`, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Endpoint, &r.TestFile, &r.Note, &r.Combined, &r.Max,
			&r.Cases, &r.Failed, &r.Skipped, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Results returns the per-query outcomes of one run in line order.
func (s *Store) Results(ctx context.Context, runID string) ([]QueryResult, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT line, query, expected, found, position, score, error
		FROM eval_results WHERE run_id = $1 ORDER BY line`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []QueryResult
	for rows.Next() {
		var r QueryResult
		if err := rows.Scan(&r.Line, &r.Query, &r.Expected, &r.Found, &r.Position, &r.Score, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return out, nil
}
