// Package searchclient sends query bodies to the search endpoint and decodes
// the ranked hits. Every failure is returned as a *TransportError or a
// *ResponseFormatError so the caller can charge it to a single test case.
package searchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/resilience"
)

const (
	maxResponseBytes = 32 << 20
	maxErrorSnippet  = 512
)

// Hit is one ranked search result.
type Hit struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// Searcher runs one query and returns hits in rank order.
type Searcher interface {
	Search(ctx context.Context, req querybuilder.Request) ([]Hit, error)
}

// TransportError covers connection failures, timeouts, an open circuit and
// non-2xx responses. StatusCode is 0 when no response was received.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("search endpoint %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	case errors.Is(e.Err, resilience.ErrCircuitOpen):
		return fmt.Sprintf("search endpoint %s skipped: circuit breaker open", e.Endpoint)
	case e.Err != nil:
		return fmt.Sprintf("search endpoint %s unreachable: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("search endpoint %s failed", e.Endpoint)
	}
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrTransport}
	}
	return []error{apperrors.ErrTransport, e.Err}
}

// Retryable reports whether repeating the request could succeed.
func (e *TransportError) Retryable() bool {
	if errors.Is(e.Err, resilience.ErrCircuitOpen) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.StatusCode == 0 ||
		e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests
}

// ResponseFormatError means a 2xx response did not have the expected shape.
type ResponseFormatError struct {
	Reason string
	Err    error
}

func (e *ResponseFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed search response: %s: %v", e.Reason, e.Err)
	}
	return "malformed search response: " + e.Reason
}

func (e *ResponseFormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrResponseFormat}
	}
	return []error{apperrors.ErrResponseFormat, e.Err}
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	Retry      resilience.RetryConfig
	Breaker    resilience.CircuitBreakerConfig
	HTTPClient *http.Client
}

// Client talks to an Elasticsearch-compatible _search endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	http     *http.Client
	logger   *slog.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	retry := opts.Retry
	retry.Retryable = isRetryable
	c := &Client{
		endpoint: opts.Endpoint,
		timeout:  opts.Timeout,
		retry:    retry,
		http:     opts.HTTPClient,
		logger:   logger.WithComponent("search-client").With("endpoint", opts.Endpoint),
	}
	// A zero threshold leaves the breaker off and every query is sent.
	if opts.Breaker.FailureThreshold > 0 {
		breaker := opts.Breaker
		breaker.IsFailure = isRetryable
		c.breaker = resilience.NewCircuitBreaker("search-endpoint", breaker)
	}
	return c
}

// isRetryable reports whether err is a transport failure worth repeating.
// Client errors such as 4xx responses are not.
func isRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}

// NewFromConfig builds a Client from the search section of the config.
// onBreaker, if non-nil, observes circuit state changes.
func NewFromConfig(cfg config.SearchConfig, onBreaker func(string, resilience.State)) *Client {
	return New(Options{
		Endpoint: cfg.Endpoint(),
		Timeout:  cfg.Timeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerReset,
			OnStateChange:    onBreaker,
		},
	})
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Search posts the request and decodes the hits.
func (c *Client) Search(ctx context.Context, req querybuilder.Request) ([]Hit, error) {
	body, err := querybuilder.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}
	raw, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	return DecodeHits(raw)
}

// post performs the round trip, retrying transport failures. When a breaker
// is configured the whole retry loop runs behind it.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	var raw []byte
	call := func() error {
		return resilience.Retry(ctx, "search", c.retry, func() error {
			data, err := c.attempt(ctx, body)
			if err != nil {
				return err
			}
			raw = data
			return nil
		})
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err == nil {
		return raw, nil
	}
	if te, ok := err.(*TransportError); ok {
		return nil, te
	}
	// Breaker rejections, exhausted retries and cancellation still count as
	// transport failures of this query.
	wrapped := &TransportError{Endpoint: c.endpoint, Err: err}
	var inner *TransportError
	if errors.As(err, &inner) {
		wrapped.StatusCode = inner.StatusCode
		wrapped.Body = inner.Body
	}
	return nil, wrapped
}

func (c *Client) attempt(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", apperrors.ErrTimeout, c.timeout, err)
		}
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("reading response body: %w", err)}
	}
	c.logger.Debug("search round trip",
		"status", resp.StatusCode,
		"bytes", len(data),
		"latency", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		return nil, &TransportError{Endpoint: c.endpoint, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return data, nil
}

type wireResponse struct {
	Hits *struct {
		Hits *[]wireHit `json:"hits"`
	} `json:"hits"`
}

type wireHit struct {
	ID     string   `json:"_id"`
	Score  *float64 `json:"_score"`
	Source *struct {
		Description *string `json:"Description"`
	} `json:"_source"`
}

// DecodeHits parses a _search response body into hits, in rank order.
func DecodeHits(raw []byte) ([]Hit, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ResponseFormatError{Reason: "invalid JSON", Err: err}
	}
	if wire.Hits == nil || wire.Hits.Hits == nil {
		return nil, &ResponseFormatError{Reason: "missing hits.hits"}
	}
	wireHits := *wire.Hits.Hits
	hits := make([]Hit, 0, len(wireHits))
	for i, wh := range wireHits {
		if wh.Source == nil || wh.Source.Description == nil {
			return nil, &ResponseFormatError{Reason: fmt.Sprintf("hit %d (id=%s) has no _source.Description", i+1, wh.ID)}
		}
		hit := Hit{ID: wh.ID, Description: *wh.Source.Description}
		if wh.Score != nil {
			hit.Score = *wh.Score
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
