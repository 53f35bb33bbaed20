package pipeline

import (
	"time"

	"github.com/linnemanlabs/raven/internal/dedup"
	"github.com/linnemanlabs/raven/internal/news"
	"github.com/linnemanlabs/raven/internal/relevance"
)

// Options are the per-run toggles.
type Options struct {
	// MaxAgeDays is the global max age; collectors may override it.
	MaxAgeDays int

	// MaxAgeOverride, when > 0, applies to every collector.
	MaxAgeOverride int

	DedupEnabled bool
	DryRun       bool

	// RelevanceThreshold, when set, replaces the pipeline's configured
	// threshold for this run.
	RelevanceThreshold *float64

	// Now stamps the report; defaults to time.Now.
	Now func() time.Time
}

// Annotated pairs an item with its verdict and duplicate group.
type Annotated struct {
	Item    news.Item          `json:"item"`
	Verdict *relevance.Verdict `json:"verdict,omitempty"`
	Group   *dedup.Group       `json:"group,omitempty"`
}

// Summary counts what happened to items in a run.
type Summary struct {
	Collected           int `json:"collected"`
	RepeatedIDs         int `json:"repeated_ids"`
	AgeFilteredOut      int `json:"age_filtered_out"`
	DeduplicatedAway    int `json:"deduplicated_away"`
	AnalysisFailed      int `json:"analysis_failed"`
	ExcludedByRelevance int `json:"excluded_by_relevance"`
	Included            int `json:"included"`

	// Stage1Errors is the subset of ExcludedByRelevance rejected because
	// the stage 1 call failed.
	Stage1Errors    int `json:"stage1_errors"`
	CollectorErrors int `json:"collector_errors"`
}

// CollectorError records a collector that contributed nothing to a run.
type CollectorError struct {
	Collector string `json:"collector"`
	Error     string `json:"error"`
}

// Report is the outcome of one run.
type Report struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DryRun      bool      `json:"dry_run"`
	Threshold   float64   `json:"threshold"`

	// Included is sorted by PublishedAt descending, then ID ascending.
	Included       []Annotated         `json:"included"`
	Excluded       []Annotated         `json:"excluded,omitempty"`
	AnalysisFailed []Annotated         `json:"analysis_failed,omitempty"`
	Suppressed     []dedup.Suppression `json:"suppressed,omitempty"`

	// Candidates holds the age-filtered items of a dry run.
	Candidates      []news.Item      `json:"candidates,omitempty"`
	CollectorErrors []CollectorError `json:"collector_errors,omitempty"`
	Summary         Summary          `json:"summary"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
