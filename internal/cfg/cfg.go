package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Backend names accepted by -backend.
const (
	BackendClaude  = "claude"
	BackendKeyword = "keyword"
)

// Config holds the run flags shared by the CLI and the server. It follows
// the common cfg.Registerable and cfg.Validatable shape.
type Config struct {
	ConfigPath         string
	CheckConfig        bool
	MaxAgeDays         int
	DryRun             bool
	NoDedup            bool
	RelevanceThreshold float64
	DedupThreshold     float64
	Concurrency        int
	Backend            string
	BackendRPS         float64
	ClaudeAPIKey       string
	ClaudeModel        string
	SlackWebhookURL    string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigPath, "config", "config/config.yaml", "path to the YAML configuration file")
	fs.BoolVar(&c.CheckConfig, "check-config", false, "validate the configuration file and exit")
	fs.IntVar(&c.MaxAgeDays, "max-age-days", 0, "override maximum item age in days for all collectors (0 = use config, 1..90)")
	fs.BoolVar(&c.DryRun, "dry-run", false, "collect and age-filter only; skip deduplication and relevance analysis")
	fs.BoolVar(&c.NoDedup, "no-dedup", false, "disable deduplication between news sources")
	fs.Float64Var(&c.RelevanceThreshold, "relevance-threshold", -1, "override llm.relevance_threshold (0..1, -1 = use config)")
	fs.Float64Var(&c.DedupThreshold, "dedup-threshold", 0.5, "similarity at or above which items are duplicates (0..1]")
	fs.IntVar(&c.Concurrency, "concurrency", 4, "items analyzed in parallel (1..32)")
	fs.StringVar(&c.Backend, "backend", BackendClaude, "analysis backend: claude or keyword")
	fs.Float64Var(&c.BackendRPS, "backend-rps", 0, "maximum analysis backend calls per second (0 = unlimited)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude analysis backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "", "Claude model override (empty = llm.model from config)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for run reports (empty = disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.ConfigPath == "" {
		errs = append(errs, errors.New("CONFIG is required"))
	}

	// 0 means no override
	if c.MaxAgeDays < 0 || c.MaxAgeDays > MaxAgeDaysLimit {
		errs = append(errs, fmt.Errorf("invalid MAX_AGE_DAYS %d (must be 0..%d)", c.MaxAgeDays, MaxAgeDaysLimit))
	}

	if c.RelevanceThreshold != -1 && (c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1) {
		errs = append(errs, fmt.Errorf("invalid RELEVANCE_THRESHOLD %v (must be 0..1 or -1)", c.RelevanceThreshold))
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_THRESHOLD %v (must be in (0,1])", c.DedupThreshold))
	}
	if c.Concurrency < 1 || c.Concurrency > 32 {
		errs = append(errs, fmt.Errorf("invalid CONCURRENCY %d (must be 1..32)", c.Concurrency))
	}
	if c.BackendRPS < 0 {
		errs = append(errs, fmt.Errorf("invalid BACKEND_RPS %v (must be >= 0)", c.BackendRPS))
	}

	switch c.Backend {
	case BackendKeyword:
	case BackendClaude:
		// dry runs and config checks never call the backend
		if c.ClaudeAPIKey == "" && !c.DryRun && !c.CheckConfig {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid BACKEND %q (must be %s or %s)", c.Backend, BackendClaude, BackendKeyword))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ServerConfig holds the flags only the long-running server needs.
type ServerConfig struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	ReportsKept           int
}

// RegisterFlags binds ServerConfig fields to the given FlagSet with defaults inline
func (c *ServerConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 routes")
	fs.IntVar(&c.ReportsKept, "reports-kept", 50, "run reports kept in memory (1..1000)")
}

// Validate checks all configuration fields for correctness.
func (c *ServerConfig) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// API token is required to protect the run endpoints
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	if c.ReportsKept < 1 || c.ReportsKept > 1000 {
		errs = append(errs, fmt.Errorf("invalid REPORTS_KEPT %d (must be 1..1000)", c.ReportsKept))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
