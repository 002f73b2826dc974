// Package config loads and validates evaluator configuration from an optional
// YAML file with environment-variable overrides. Defaults reproduce the
// behaviour of a bare run, so a config file is only needed to reach a
// different endpoint or to enable the optional sinks (cache, history,
// events, metrics).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// RE_SEARCH_BASE_URL or RE_LOGGING_LEVEL. Keys come from split field names
// rather than envconfig tags, so no override falls back to an unprefixed
// variable such as $USER.
const EnvPrefix = "RE"

// Malformed-line policies.
const (
	OnMalformedAbort = "abort"
	OnMalformedSkip  = "skip"
)

// Config is the top-level evaluator configuration.
type Config struct {
	Search  SearchConfig  `yaml:"search"`
	Query   QueryConfig   `yaml:"query"`
	Scoring ScoringConfig `yaml:"scoring"`
	Input   InputConfig   `yaml:"input"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	History HistoryConfig `yaml:"history"`
	Events  EventsConfig  `yaml:"events"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SearchConfig describes the search endpoint under evaluation.
type SearchConfig struct {
	BaseURL string        `yaml:"baseUrl" split_words:"true"`
	Index   string        `yaml:"index" split_words:"true"`
	Timeout time.Duration `yaml:"timeout" split_words:"true"`
	Retry   RetryConfig   `yaml:"retry"`

	// BreakerThreshold consecutive retryable transport failures make the
	// remaining queries fail fast until BreakerReset has elapsed. Zero turns
	// the breaker off.
	BreakerThreshold int           `yaml:"breakerThreshold" split_words:"true"`
	BreakerReset     time.Duration `yaml:"breakerReset" split_words:"true"`
}

// Endpoint returns the full _search URL.
func (s SearchConfig) Endpoint() string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.Trim(s.Index, "/") + "/_search"
}

// RetryConfig bounds retries of transport failures.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts" split_words:"true"`
	InitialDelay time.Duration `yaml:"initialDelay" split_words:"true"`
	MaxDelay     time.Duration `yaml:"maxDelay" split_words:"true"`
}

// QueryConfig selects the query template.
type QueryConfig struct {
	Strategy string `yaml:"strategy" split_words:"true"`
}

// ScoringConfig holds the position-to-score policy.
type ScoringConfig struct {
	Table      map[int]int `yaml:"table" split_words:"true"`
	Depth      int         `yaml:"depth" split_words:"true"`
	MaxPerCase int         `yaml:"maxPerCase" split_words:"true"`
}

// InputConfig controls test file handling.
type InputConfig struct {
	OnMalformed string `yaml:"onMalformed" split_words:"true"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

// CacheConfig enables a Redis cache of raw search responses.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" split_words:"true"`
	Addr     string        `yaml:"addr" split_words:"true"`
	Password string        `yaml:"password" split_words:"true"`
	DB       int           `yaml:"db" split_words:"true"`
	PoolSize int           `yaml:"poolSize" split_words:"true"`
	TTL      time.Duration `yaml:"ttl" split_words:"true"`
}

// HistoryConfig enables persisting run results to PostgreSQL.
type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled" split_words:"true"`
	Host            string        `yaml:"host" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	Database        string        `yaml:"database" split_words:"true"`
	User            string        `yaml:"user" split_words:"true"`
	Password        string        `yaml:"password" split_words:"true"`
	SSLMode         string        `yaml:"sslMode" split_words:"true"`
	MaxOpenConns    int           `yaml:"maxOpenConns" split_words:"true"`
	MaxIdleConns    int           `yaml:"maxIdleConns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" split_words:"true"`
}

// DSN returns a lib/pq-compatible data source name.
func (h HistoryConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		h.Host, h.Port, h.User, h.Password, h.Database, h.SSLMode,
	)
}

// EventsConfig enables publishing evaluation events to Kafka.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled" split_words:"true"`
	Brokers []string `yaml:"brokers" split_words:"true"`
	Topic   string   `yaml:"topic" split_words:"true"`
}

// MetricsConfig controls pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled" split_words:"true"`
	PushgatewayURL string `yaml:"pushgatewayUrl" split_words:"true"`
	Job            string `yaml:"job" split_words:"true"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		// yaml.v3 merges into a non-nil map; a table in the file replaces
		// the default one instead.
		cfg.Scoring.Table = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if cfg.Scoring.Table == nil {
			cfg.Scoring.Table = DefaultScoreTable()
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("%w: env overrides: %v", apperrors.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration of a bare run.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			BaseURL: "http://localhost:9200",
			Index:   "firebase",
			Timeout: 10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  2,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     2 * time.Second,
			},
			BreakerThreshold: 0,
			BreakerReset:     30 * time.Second,
		},
		Query: QueryConfig{
			Strategy: "filtered",
		},
		Scoring: ScoringConfig{
			Table:      DefaultScoreTable(),
			Depth:      10,
			MaxPerCase: 100,
		},
		Input: InputConfig{
			OnMalformed: OnMalformedAbort,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Cache: CacheConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
			TTL:      time.Hour,
		},
		History: HistoryConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "relevance",
			User:            "relevance",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Events: EventsConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "relevance-evaluations",
		},
		Metrics: MetricsConfig{
			PushgatewayURL: "http://localhost:9091",
			Job:            "relevance_eval",
		},
	}
}

// DefaultScoreTable is the stock position-to-score mapping.
func DefaultScoreTable() map[int]int {
	return map[int]int{
		1:  100,
		2:  50,
		3:  40,
		4:  30,
		5:  20,
		6:  10,
		7:  10,
		8:  10,
		9:  10,
		10: 10,
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Search.BaseURL == "" {
		errs = append(errs, "search.baseUrl is required")
	}
	if c.Search.Index == "" {
		errs = append(errs, "search.index is required")
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, "search.timeout must be positive")
	}
	if c.Search.Retry.MaxAttempts < 1 || c.Search.Retry.MaxAttempts > 5 {
		errs = append(errs, "search.retry.maxAttempts must be between 1 and 5")
	}

	if c.Search.BreakerThreshold < 0 {
		errs = append(errs, "search.breakerThreshold must not be negative")
	}

	if c.Scoring.Depth < 1 {
		errs = append(errs, "scoring.depth must be positive")
	}
	if c.Scoring.MaxPerCase < 1 {
		errs = append(errs, "scoring.maxPerCase must be positive")
	}
	if len(c.Scoring.Table) == 0 {
		errs = append(errs, "scoring.table must not be empty")
	}
	for pos, score := range c.Scoring.Table {
		if pos < 1 {
			errs = append(errs, fmt.Sprintf("scoring.table position %d must be >= 1", pos))
		}
		if score < 0 || score > c.Scoring.MaxPerCase {
			errs = append(errs, fmt.Sprintf("scoring.table score %d for position %d must be within [0, %d]", score, pos, c.Scoring.MaxPerCase))
		}
	}

	switch c.Input.OnMalformed {
	case OnMalformedAbort, OnMalformedSkip:
	default:
		errs = append(errs, fmt.Sprintf("invalid input.onMalformed: %q (must be abort or skip)", c.Input.OnMalformed))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %s", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when the cache is enabled")
	}
	if c.Events.Enabled && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		errs = append(errs, "events.brokers and events.topic are required when events are enabled")
	}
	if c.Metrics.Enabled && c.Metrics.PushgatewayURL == "" {
		errs = append(errs, "metrics.pushgatewayUrl is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", apperrors.ErrConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
