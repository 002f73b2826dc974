package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/history"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/scorer"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/searchclient"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/testcase"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/resilience"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

type rootOptions struct {
	configPath   string
	logLevel     string
	format       string
	testFile     string
	detailed     bool
	note         string
	strategy     string
	onMalformed  string
	preflight    bool
	refreshCache bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "relevance-eval -f <testFile> [-d] [-n <note>]",
		Short: "Score search relevance against a file of expected top results",
		Long: `relevance-eval sends every query of a test file to the search endpoint and
scores how high the expected result ranks among the first hits.

Each line of the test file holds two double-quoted fields, the query and the
description of the expected top hit:

  "bacon" "Smoky Bacon Strips"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, opts)
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.PrintErrln(cmd.UsageString())
		return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage, err.Error())
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (YAML)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.format, "format", report.FormatText, "output format (text, json)")

	f := rootCmd.Flags()
	f.StringVarP(&opts.testFile, "testFilePath", "f", "", "test file with one quoted query/expected pair per line (required)")
	f.BoolVarP(&opts.detailed, "detailedOutput", "d", false, "print the hits inspected for every query")
	f.StringVarP(&opts.note, "note", "n", "", "note echoed under the result line")
	f.StringVar(&opts.strategy, "strategy", "", fmt.Sprintf("query strategy %v", querybuilder.Names()))
	f.StringVar(&opts.onMalformed, "on-malformed", "", "malformed line policy (abort, skip)")
	f.BoolVar(&opts.preflight, "preflight", false, "check the endpoint and enabled sinks before running")
	f.BoolVar(&opts.refreshCache, "refresh-cache", false, "drop cached search responses before running")

	rootCmd.AddCommand(
		newHistoryCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig layers flags over the file and environment, then validates the
// result and installs the logger.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Query.Strategy = opts.strategy
	}
	if flags.Changed("on-malformed") {
		cfg.Input.OnMalformed = opts.onMalformed
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.format != report.FormatText && opts.format != report.FormatJSON {
		return nil, apperrors.Newf(apperrors.ErrUsage, apperrors.ExitUsage, "unknown output format %q", opts.format)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func runEvaluation(cmd *cobra.Command, opts *rootOptions) error {
	if opts.testFile == "" {
		cmd.PrintErrln(cmd.UsageString())
		return apperrors.New(apperrors.ErrUsage, apperrors.ExitUsage, "--testFilePath is required")
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	strategy, err := querybuilder.Lookup(cfg.Query.Strategy)
	if err != nil {
		return err
	}
	results, err := testcase.ParseFile(opts.testFile)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrUsage, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.preflight {
		rep := runPreflight(ctx, cfg)
		if !rep.Healthy() {
			rep.Write(cmd.ErrOrStderr())
			return apperrors.New(apperrors.ErrInternal, apperrors.ExitFailure, "preflight failed")
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(strategy.Name())
	}
	client := searchclient.NewFromConfig(cfg.Search, func(name string, state resilience.State) {
		slog.Warn("circuit breaker state changed", "breaker", name, "state", state.String())
		if m != nil {
			m.SetBreakerState(name, int(state))
		}
	})

	var searcher searchclient.Searcher = client
	if cfg.Cache.Enabled {
		cached, closeCache, err := openCache(ctx, cfg.Cache, client, opts.refreshCache)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer closeCache()
			searcher = cached
		}
	}

	recorders, closeRecorders := openRecorders(ctx, cfg)
	defer closeRecorders()

	ev := evaluator.New(evaluator.Options{
		Strategy:    strategy,
		Searcher:    searcher,
		Scorer:      scorer.New(scorer.Table(cfg.Scoring.Table), cfg.Scoring.Depth),
		MaxPerCase:  cfg.Scoring.MaxPerCase,
		OnMalformed: cfg.Input.OnMalformed,
		Endpoint:    client.Endpoint(),
		TestFile:    opts.testFile,
		Note:        opts.note,
		Metrics:     m,
		Recorders:   recorders,
	})
	summary, err := ev.Run(ctx, results)
	if err != nil {
		return err
	}

	reporter := report.Reporter{Note: opts.note, Detailed: opts.detailed, Format: opts.format}
	if err := reporter.Write(cmd.OutOrStdout(), summary.Record); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if m != nil {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, summary.RunID); err != nil {
			slog.Warn("metrics push failed", "error", err)
		}
	}
	return nil
}

func openCache(ctx context.Context, cfg config.CacheConfig, next *searchclient.Client, refresh bool) (*searchclient.CachedSearcher, func(), error) {
	rc, err := pkgredis.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	cached := searchclient.NewCached(next, rc, next.Endpoint(), cfg.TTL)
	if refresh {
		if _, err := cached.Invalidate(ctx); err != nil {
			slog.Warn("cache refresh failed", "error", err)
		}
	}
	slog.Info("search cache enabled", "addr", cfg.Addr, "ttl", cfg.TTL)
	return cached, func() {
		hits, misses := cached.Stats()
		slog.Info("search cache stats", "hits", hits, "misses", misses)
		rc.Close()
	}, nil
}

// openRecorders connects the enabled history sinks. A sink that cannot be
// reached is logged and left out; it never blocks the evaluation.
func openRecorders(ctx context.Context, cfg *config.Config) ([]history.Recorder, func()) {
	var recorders []history.Recorder
	var closers []func()

	if cfg.History.Enabled {
		db, err := postgres.New(ctx, cfg.History)
		if err != nil {
			slog.Warn("postgres unavailable, run history disabled", "error", err)
		} else {
			store := history.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("history schema unavailable, run history disabled", "error", err)
				db.Close()
			} else {
				recorders = append(recorders, store)
				closers = append(closers, func() { db.Close() })
			}
		}
	}
	if cfg.Events.Enabled {
		producer := kafka.NewProducer(cfg.Events)
		recorders = append(recorders, history.NewPublisher(producer))
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				slog.Warn("closing kafka producer", "error", err)
			}
		})
	}

	return recorders, func() {
		for _, c := range closers {
			c()
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "relevance-eval %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
