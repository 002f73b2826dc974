package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/searchclient"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/testcase"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/resilience"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// RecordRequest counts one request. statusCode 0 means no response arrived.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	s.statusCodesMu.Lock()
	s.statusCodes[statusCode]++
	s.statusCodesMu.Unlock()

	if err != nil {
		s.errorCount.Add(1)
		return
	}
	s.successCount.Add(1)

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

func main() {
	var (
		configPath  string
		testFile    string
		strategy    string
		concurrency int
		duration    time.Duration
	)
	cmd := &cobra.Command{
		Use:           "loadtest -f <testFile>",
		Short:         "Replay a test file's queries against the search endpoint and report latency",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if testFile == "" {
				cmd.PrintErrln(cmd.UsageString())
				return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage, "--testFilePath is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			if cmd.Flags().Changed("strategy") {
				cfg.Query.Strategy = strategy
			}
			strat, err := querybuilder.Lookup(cfg.Query.Strategy)
			if err != nil {
				return err
			}
			queries, err := loadQueries(testFile)
			if err != nil {
				return err
			}
			if concurrency < 1 {
				return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage, "--concurrency must be positive")
			}

			client := searchclient.New(searchclient.Options{
				Endpoint: cfg.Search.Endpoint(),
				Timeout:  cfg.Search.Timeout,
				Retry:    resilience.RetryConfig{MaxAttempts: 1},
				HTTPClient: &http.Client{
					Transport: &http.Transport{
						MaxIdleConns:        concurrency * 2,
						MaxIdleConnsPerHost: concurrency * 2,
						IdleConnTimeout:     90 * time.Second,
					},
				},
			})
			lt := Config{Concurrency: concurrency, Duration: duration, Queries: queries}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Relevance Query Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", client.Endpoint())
			fmt.Fprintf(out, "Strategy:    %s\n", strat.Name())
			fmt.Fprintf(out, "Concurrency: %d\n", lt.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", lt.Duration)
			fmt.Fprintf(out, "Queries:     %d unique\n", len(lt.Queries))
			fmt.Fprintln(out)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			stats := runLoadTest(ctx, lt, strat, client)
			printReport(out, stats, lt.Duration)
			if stats.totalRequests.Load() == 0 || stats.successCount.Load() == 0 {
				return apperrors.New(apperrors.ErrTransport, apperrors.ExitFailure, "no request succeeded, is the endpoint running?")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "config file path (YAML)")
	f.StringVarP(&testFile, "testFilePath", "f", "", "test file whose queries are replayed (required)")
	f.StringVar(&strategy, "strategy", "", fmt.Sprintf("query strategy %v", querybuilder.Names()))
	f.IntVar(&concurrency, "concurrency", 10, "number of concurrent workers")
	f.DurationVar(&duration, "duration", 30*time.Second, "test duration")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

// loadQueries returns the distinct queries of the well-formed lines in file
// order. Malformed lines carry no usable query and are ignored.
func loadQueries(path string) ([]string, error) {
	results, err := testcase.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUsage, err)
	}
	seen := make(map[string]bool)
	var queries []string
	for _, r := range results {
		if !r.OK() || seen[r.Case.Query] {
			continue
		}
		seen[r.Case.Query] = true
		queries = append(queries, r.Case.Query)
	}
	if len(queries) == 0 {
		return nil, apperrors.Newf(apperrors.ErrFormat, apperrors.ExitFailure, "no queries in %s", path)
	}
	return queries, nil
}

func runLoadTest(ctx context.Context, cfg Config, strategy querybuilder.Strategy, searcher searchclient.Searcher) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	requests := make([]querybuilder.Request, len(cfg.Queries))
	for i, q := range cfg.Queries {
		requests[i] = strategy.Build(q)
	}

	var g errgroup.Group
	for w := 0; w < cfg.Concurrency; w++ {
		w := w
		g.Go(func() error {
			idx := w
			for ctx.Err() == nil {
				req := requests[idx%len(requests)]
				idx++

				start := time.Now()
				_, err := searcher.Search(ctx, req)
				elapsed := time.Since(start)
				if ctx.Err() != nil {
					return nil
				}
				stats.RecordRequest(elapsed, statusOf(err), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var te *searchclient.TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	// 2xx with a body that did not decode.
	return http.StatusOK
}

func printReport(w io.Writer, stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", failed)

	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		label := fmt.Sprint(code)
		if code == 0 {
			label = "no response"
		}
		fmt.Fprintf(w, "  %s: %d\n", label, stats.statusCodes[code])
	}
	stats.statusCodesMu.Unlock()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
