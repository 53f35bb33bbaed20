// Package pipeline runs collection, age filtering, deduplication and
// relevance analysis in order and assembles the run report.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/collector"
	"github.com/linnemanlabs/raven/internal/dedup"
	"github.com/linnemanlabs/raven/internal/news"
	"github.com/linnemanlabs/raven/internal/relevance"
)

// Hooks are optional callbacks for observing runs.
type Hooks struct {
	OnCollectorError func(name string)
	OnRunComplete    func(r *Report, err error)
}

// Orchestrator owns the items of a run and drives each stage over them.
type Orchestrator struct {
	sources   []collector.Source
	dedup     dedup.Engine
	relevance *relevance.Pipeline
	profile   *news.Profile
	logger    log.Logger
	hooks     Hooks
}

// New creates an orchestrator. sources are consulted in the given order.
func New(sources []collector.Source, dd dedup.Engine, rel *relevance.Pipeline, profile *news.Profile, logger log.Logger, hooks Hooks) *Orchestrator {
	return &Orchestrator{
		sources:   sources,
		dedup:     dd,
		relevance: rel,
		profile:   profile,
		logger:    logger,
		hooks:     hooks,
	}
}

type collected struct {
	items []news.Item
	err   error
}

// Run executes one pipeline run. Only cancellation aborts a run; collector
// and backend failures are recorded in the report.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rep := &Report{StartedAt: now(), DryRun: opts.DryRun}

	err := o.run(ctx, opts, rep)
	rep.CompletedAt = now()
	if o.hooks.OnRunComplete != nil {
		o.hooks.OnRunComplete(rep, err)
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (o *Orchestrator) run(ctx context.Context, opts Options, rep *Report) error {
	L := o.logger

	results, err := o.collect(ctx)
	if err != nil {
		return err
	}

	// fan-in in registration order, first occurrence of an ID wins
	seen := make(map[string]struct{})
	var items []news.Item
	for i, res := range results {
		name := o.sources[i].Collector.Name()
		if res.err != nil {
			cerr := &collector.Error{Collector: name, Err: res.err}
			L.Error(ctx, cerr, "collector failed", "collector", name)
			rep.CollectorErrors = append(rep.CollectorErrors, CollectorError{Collector: name, Error: res.err.Error()})
			if o.hooks.OnCollectorError != nil {
				o.hooks.OnCollectorError(name)
			}
			continue
		}

		maxAge := effectiveMaxAge(opts, o.sources[i].MaxAgeDays)
		kept := 0
		for _, it := range res.items {
			rep.Summary.Collected++
			// age first, so an in-window copy from a longer-window
			// collector is not lost to an out-of-window one
			if tooOld(it, maxAge) {
				rep.Summary.AgeFilteredOut++
				continue
			}
			if _, dup := seen[it.ID]; dup {
				rep.Summary.RepeatedIDs++
				continue
			}
			seen[it.ID] = struct{}{}
			items = append(items, it)
			kept++
		}
		L.Info(ctx, "collected", "collector", name, "items", len(res.items), "kept", kept, "max_age_days", maxAge)
	}
	rep.Summary.CollectorErrors = len(rep.CollectorErrors)

	if opts.DryRun {
		rep.Candidates = items
		L.Info(ctx, "dry run complete", "candidates", len(items))
		return nil
	}

	dd := o.dedup.WithEnabled(opts.DedupEnabled).Deduplicate(items)
	rep.Suppressed = dd.Suppressed
	rep.Summary.DeduplicatedAway = len(dd.Suppressed)
	groups := dd.GroupOf()

	rel := o.relevance
	if opts.RelevanceThreshold != nil {
		rel = rel.WithThreshold(*opts.RelevanceThreshold)
	}
	rep.Threshold = rel.Threshold()

	verdicts, err := rel.Analyze(ctx, o.profile, dd.Canonical)
	if err != nil {
		return err
	}

	for i, it := range dd.Canonical {
		v := verdicts[i]
		var g *dedup.Group
		if grp, ok := groups[it.ID]; ok {
			g = &grp
		}
		a := Annotated{Item: it, Verdict: &v, Group: g}

		switch v.Status {
		case relevance.StatusIncluded:
			rep.Included = append(rep.Included, a)
		case relevance.StatusAnalysisFailed:
			rep.AnalysisFailed = append(rep.AnalysisFailed, a)
		default:
			if v.Err != "" {
				rep.Summary.Stage1Errors++
			}
			rep.Excluded = append(rep.Excluded, a)
		}
	}
	sortAnnotated(rep.Included)
	sortAnnotated(rep.Excluded)
	sortAnnotated(rep.AnalysisFailed)

	rep.Summary.Included = len(rep.Included)
	rep.Summary.ExcludedByRelevance = len(rep.Excluded)
	rep.Summary.AnalysisFailed = len(rep.AnalysisFailed)

	L.Info(ctx, "run complete",
		"collected", rep.Summary.Collected,
		"age_filtered_out", rep.Summary.AgeFilteredOut,
		"deduplicated_away", rep.Summary.DeduplicatedAway,
		"included", rep.Summary.Included,
		"excluded", rep.Summary.ExcludedByRelevance,
		"analysis_failed", rep.Summary.AnalysisFailed,
	)
	return nil
}

// collect queries every source concurrently. Per-source failures are
// returned in the result slot; only cancellation fails the whole call.
func (o *Orchestrator) collect(ctx context.Context) ([]collected, error) {
	results := make([]collected, len(o.sources))

	var g errgroup.Group
	for i, src := range o.sources {
		g.Go(func() error {
			items, err := src.Collector.Collect(ctx)
			results[i] = collected{items: items, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func effectiveMaxAge(opts Options, collectorDays int) int {
	switch {
	case opts.MaxAgeOverride > 0:
		return opts.MaxAgeOverride
	case collectorDays > 0:
		return collectorDays
	default:
		return opts.MaxAgeDays
	}
}

// tooOld reports whether the item is older than maxAgeDays at collection.
// A non-positive maxAgeDays disables the filter.
func tooOld(it news.Item, maxAgeDays int) bool {
	if maxAgeDays <= 0 {
		return false
	}
	return it.Age() > time.Duration(maxAgeDays)*24*time.Hour
}

func sortAnnotated(as []Annotated) {
	sort.SliceStable(as, func(i, j int) bool {
		a, b := as[i].Item, as[j].Item
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
}

// IsCancelled reports whether err ended a run by cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
