package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func TestPublisherEmitsQueriesThenSummary(t *testing.T) {
	fp := &fakeProducer{}
	run := Run{ID: "run-1", Strategy: "filtered", Combined: 40, Max: 200, Cases: 2}
	results := []QueryResult{
		{Line: 1, Query: "bacon", Expected: "Smoky Bacon Strips", Found: true, Position: 3, Score: 40},
		{Line: 2, Query: "kale", Expected: "Kale", Error: "timeout"},
	}

	require.NoError(t, NewPublisher(fp).RecordRun(context.Background(), run, results))
	require.Len(t, fp.events, 3)
	for _, e := range fp.events {
		assert.Equal(t, "run-1", e.Key)
	}

	first, err := json.Marshal(fp.events[0].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"query_evaluated","run_id":"run-1","strategy":"filtered",
		"line":1,"query":"bacon","expected":"Smoky Bacon Strips","found":true,"position":3,"score":40}`, string(first))

	var last map[string]any
	data, err := json.Marshal(fp.events[2].Value)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &last))
	assert.Equal(t, EventRunCompleted, last["type"])
	assert.Equal(t, float64(40), last["combined_score"])
	assert.Equal(t, float64(200), last["max_combined_score"])
}

func TestPublisherWrapsErrors(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	err := NewPublisher(fp).RecordRun(context.Background(), Run{ID: "r"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run r")
	assert.ErrorIs(t, err, fp.err)
}
