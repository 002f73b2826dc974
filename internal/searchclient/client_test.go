package searchclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"took":3,"hits":{"total":2,"hits":[
	{"_id":"a1","_score":7.5,"_source":{"Description":"Smoky Bacon Strips"}},
	{"_id":"a2","_score":null,"_source":{"Description":"Turkey Bacon"}}
]}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, attempts int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Options{
		Endpoint: srv.URL + "/firebase/_search",
		Timeout:  time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute},
	})
	return c, srv
}

func TestSearchPostsJSONAndDecodesHits(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/firebase/_search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.Write([]byte(okBody))
	}, 1)

	hits, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, Hit{ID: "a1", Score: 7.5, Description: "Smoky Bacon Strips"}, hits[0])
	assert.Equal(t, Hit{ID: "a2", Score: 0, Description: "Turkey Bacon"}, hits[1])
	assert.Contains(t, gotBody, "query")
	assert.Contains(t, gotBody, "highlight")
}

func TestSearchNonSuccessStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"parsing_exception"}`))
	}, 3)

	_, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Contains(t, te.Body, "parsing_exception")
	assert.True(t, errors.Is(err, apperrors.ErrTransport))
	assert.True(t, apperrors.IsPerQuery(err))
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(okBody))
	}, 2)

	hits, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, 3)

	_, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/firebase/_search"
	srv.Close()

	c := New(Options{Endpoint: endpoint, Timeout: time.Second, Retry: resilience.RetryConfig{MaxAttempts: 1}})
	_, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestSearchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := New(Options{Endpoint: srv.URL, Timeout: 20 * time.Millisecond, Retry: resilience.RetryConfig{MaxAttempts: 1}})
	_, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransport))
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestSearchCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 1)

	req := querybuilder.NewFiltered().Build("bacon")
	for i := 0; i < 3; i++ {
		_, err := c.Search(context.Background(), req)
		require.Error(t, err)
	}
	_, err := c.Search(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.True(t, errors.Is(err, apperrors.ErrTransport))
	assert.Equal(t, int32(3), calls.Load(), "open circuit short-circuits the request")
	assert.Contains(t, err.Error(), "skipped: circuit breaker open")
	assert.NotContains(t, err.Error(), "unreachable")
}

func TestSearchClientErrorsDoNotOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, 1)

	req := querybuilder.NewFiltered().Build("bacon")
	for i := 0; i < 6; i++ {
		_, err := c.Search(context.Background(), req)
		require.Error(t, err)
		assert.False(t, errors.Is(err, resilience.ErrCircuitOpen))
	}
	assert.Equal(t, int32(6), calls.Load())
}

func TestSearchWithoutBreakerSendsEveryRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 5 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(okBody))
	}))
	t.Cleanup(srv.Close)
	c := New(Options{
		Endpoint: srv.URL + "/firebase/_search",
		Timeout:  time.Second,
		Retry:    resilience.RetryConfig{MaxAttempts: 1},
	})

	req := querybuilder.NewFiltered().Build("bacon")
	failed := 0
	for i := 0; i < 8; i++ {
		if _, err := c.Search(context.Background(), req); err != nil {
			failed++
		}
	}
	assert.Equal(t, 5, failed)
	assert.Equal(t, int32(8), calls.Load())
}

func TestSearchMalformedResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}, 1)

	_, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.Error(t, err)
	var rfe *ResponseFormatError
	require.True(t, errors.As(err, &rfe))
	assert.True(t, errors.Is(err, apperrors.ErrResponseFormat))
}

func TestDecodeHits(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr string
	}{
		{"empty hits", `{"hits":{"hits":[]}}`, 0, ""},
		{"missing outer hits", `{"took":1}`, 0, "missing hits.hits"},
		{"missing inner hits", `{"hits":{"total":0}}`, 0, "missing hits.hits"},
		{"null inner hits", `{"hits":{"hits":null}}`, 0, "missing hits.hits"},
		{"no source", `{"hits":{"hits":[{"_id":"x","_score":1}]}}`, 0, "hit 1 (id=x)"},
		{"no description", `{"hits":{"hits":[{"_id":"y","_source":{"Name":"n"}}]}}`, 0, "_source.Description"},
		{"invalid json", `{"hits":`, 0, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := DecodeHits([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, hits, tt.want)
		})
	}
}
