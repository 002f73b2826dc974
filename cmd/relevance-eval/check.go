package main

import (
	"context"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/redis"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the search endpoint and every enabled sink are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			rep := runPreflight(cmd.Context(), cfg)
			if err := rep.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if !rep.Healthy() {
				return apperrors.Newf(apperrors.ErrInternal, apperrors.ExitFailure, "preflight %s", rep.Status)
			}
			return nil
		},
	}
}

func runPreflight(ctx context.Context, cfg *config.Config) health.Report {
	checker := health.NewChecker(cfg.Search.Timeout)
	checker.Register("search", health.HTTPCheck(nil, strings.TrimRight(cfg.Search.BaseURL, "/")))

	if cfg.Cache.Enabled {
		checker.Register("cache", health.PingCheck(func(ctx context.Context) error {
			rc, err := pkgredis.NewClient(cfg.Cache)
			if err != nil {
				return err
			}
			return rc.Close()
		}))
	}
	if cfg.History.Enabled {
		checker.Register("history", health.PingCheck(func(ctx context.Context) error {
			db, err := postgres.New(ctx, cfg.History)
			if err != nil {
				return err
			}
			return db.Close()
		}))
	}
	if cfg.Events.Enabled {
		checker.Register("events", health.PingCheck(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Events.Brokers)
		}))
	}
	if cfg.Metrics.Enabled {
		checker.Register("metrics", health.HTTPCheck(nil, strings.TrimRight(cfg.Metrics.PushgatewayURL, "/")+"/-/healthy"))
	}
	return checker.Run(ctx)
}
