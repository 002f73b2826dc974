package history

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/kafka"
)

// Event types carried in the "type" field.
const (
	EventQueryEvaluated = "query_evaluated"
	EventRunCompleted   = "run_completed"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher emits one event per query followed by a run summary, all keyed
// by run ID.
type Publisher struct {
	producer batchPublisher
}

var _ Recorder = (*Publisher)(nil)

func NewPublisher(p batchPublisher) *Publisher {
	return &Publisher{producer: p}
}

type queryEvent struct {
	Type     string `json:"type"`
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
	QueryResult
}

type runEvent struct {
	Type string `json:"type"`
	Run
}

func (p *Publisher) RecordRun(ctx context.Context, run Run, results []QueryResult) error {
	events := make([]kafka.Event, 0, len(results)+1)
	for _, r := range results {
		events = append(events, kafka.Event{
			Key:   run.ID,
			Value: queryEvent{Type: EventQueryEvaluated, RunID: run.ID, Strategy: run.Strategy, QueryResult: r},
		})
	}
	events = append(events, kafka.Event{
		Key:   run.ID,
		Value: runEvent{Type: EventRunCompleted, Run: run},
	})
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("publishing run %s: %w", run.ID, err)
	}
	return nil
}
