// Package history keeps a record of finished evaluation runs: a Postgres
// store for later comparison and a Kafka publisher for downstream consumers.
package history

import (
	"context"
	"time"
)

// Run summarises one evaluation run.
type Run struct {
	ID         string    `json:"run_id"`
	Strategy   string    `json:"strategy"`
	Endpoint   string    `json:"endpoint"`
	TestFile   string    `json:"test_file"`
	Note       string    `json:"note,omitempty"`
	Combined   int       `json:"combined_score"`
	Max        int       `json:"max_combined_score"`
	Cases      int       `json:"cases"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// QueryResult is the outcome of one test case within a run.
type QueryResult struct {
	Line     int    `json:"line"`
	Query    string `json:"query"`
	Expected string `json:"expected"`
	Found    bool   `json:"found"`
	Position int    `json:"position,omitempty"`
	Score    int    `json:"score"`
	Error    string `json:"error,omitempty"`
}

// Recorder persists or forwards a finished run.
type Recorder interface {
	RecordRun(ctx context.Context, run Run, results []QueryResult) error
}
