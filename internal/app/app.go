// Package app assembles a runnable pipeline from flags and the
// configuration file. Both binaries share it.
package app

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/collector"
	"github.com/linnemanlabs/raven/internal/dedup"
	"github.com/linnemanlabs/raven/internal/llm/claude"
	"github.com/linnemanlabs/raven/internal/llm/keyword"
	"github.com/linnemanlabs/raven/internal/pipeline"
	"github.com/linnemanlabs/raven/internal/relevance"
)

const collectorTimeout = 30 * time.Second

// Hooks groups the optional observers wired into an assembled pipeline.
type Hooks struct {
	Pipeline  pipeline.Hooks
	Relevance relevance.Hooks
	OnUsage   func(inputTokens, outputTokens int64)
}

// Assembly is a pipeline ready to run, plus the defaults a run starts from.
type Assembly struct {
	Orchestrator *pipeline.Orchestrator
	Options      pipeline.Options
	Sources      []collector.Source
	Backend      string
	Model        string
	Threshold    float64
}

// Assemble builds collectors, the analysis backend and the orchestrator.
// registry may be nil to use the default collectors.
func Assemble(c *cfg.Config, f *cfg.File, registry *collector.Registry, logger log.Logger, hooks Hooks) (*Assembly, error) {
	if registry == nil {
		registry = collector.DefaultRegistry()
	}

	sources, err := registry.Build(f.Collectors, collector.Deps{
		HTTPClient: &http.Client{
			Timeout:   collectorTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build collectors: %w", err)
	}

	a := &Assembly{Sources: sources, Backend: c.Backend}

	var backend relevance.Backend
	switch c.Backend {
	case cfg.BackendKeyword:
		backend = keyword.New()
		a.Model = "keyword"
	case cfg.BackendClaude:
		model := c.ClaudeModel
		if model == "" {
			model = f.LLM.Model
		}
		cl := claude.New(c.ClaudeAPIKey, model, f.LLM.MaxTokens, logger)
		cl.OnUsage = hooks.OnUsage
		backend = cl
		a.Model = cl.Model()
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
	backend = relevance.RateLimited(backend, c.BackendRPS, 1)

	a.Threshold = f.LLM.Threshold()
	if c.RelevanceThreshold >= 0 {
		a.Threshold = c.RelevanceThreshold
	}

	threshold := a.Threshold
	rel := relevance.New(backend, logger, relevance.Options{
		Threshold:   &threshold,
		Concurrency: c.Concurrency,
		Hooks:       hooks.Relevance,
	})
	a.Threshold = rel.Threshold()

	company := f.Company
	a.Orchestrator = pipeline.New(sources, dedup.New(c.DedupThreshold), rel, &company, logger, hooks.Pipeline)
	a.Options = pipeline.Options{
		MaxAgeDays:     f.Global.MaxAgeDays,
		MaxAgeOverride: c.MaxAgeDays,
		DedupEnabled:   !c.NoDedup,
		DryRun:         c.DryRun,
	}
	return a, nil
}
