package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// RunRequest holds the toggles a caller may set on a submitted run. Zero
// values keep the service defaults; a nil RelevanceThreshold keeps the
// configured one.
type RunRequest struct {
	DryRun             bool     `json:"dry_run,omitempty"`
	NoDedup            bool     `json:"no_dedup,omitempty"`
	MaxAgeDays         int      `json:"max_age_days,omitempty"`
	RelevanceThreshold *float64 `json:"relevance_threshold,omitempty"`
}

// SubmitResult is the outcome of submitting a run.
type SubmitResult struct {
	ID      string
	Skipped bool
	Reason  string
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts Options) (*Report, error)
}

// Notifier delivers a finished report.
type Notifier interface {
	Send(ctx context.Context, r *Report) error
}

// ServiceHooks are optional callbacks for observing submissions.
type ServiceHooks struct {
	OnSubmit func(result string)
}

// Service is the business boundary for submitted runs. At most one run is
// in progress at a time.
type Service struct {
	store     Store
	runner    Runner
	defaults  Options
	notifiers []Notifier
	logger    log.Logger
	hooks     ServiceHooks
	tracer    trace.Tracer

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

// NewService creates a run service. defaults supplies the options a request
// does not override.
func NewService(store Store, runner Runner, defaults Options, logger log.Logger, hooks ServiceHooks, notifiers ...Notifier) *Service {
	return &Service{
		store:     store,
		runner:    runner,
		defaults:  defaults,
		notifiers: notifiers,
		logger:    logger,
		hooks:     hooks,
		tracer:    otel.Tracer("github.com/linnemanlabs/raven/internal/pipeline"),
	}
}

// Submit accepts a run request and starts it asynchronously. A request made
// while another run is in progress is skipped.
func (s *Service) Submit(ctx context.Context, req RunRequest) (*SubmitResult, error) {
	s.mu.Lock()
	if s.active != "" {
		active := s.active
		s.mu.Unlock()
		s.submitted("skipped")
		return &SubmitResult{ID: active, Skipped: true, Reason: "run in progress"}, nil
	}

	id := ulid.Make().String()
	run := &Run{
		ID:        id,
		Status:    RunPending,
		Request:   req,
		CreatedAt: time.Now(),
	}
	if err := s.store.Put(ctx, run); err != nil {
		s.mu.Unlock()
		s.submitted("error")
		return nil, err
	}
	s.active = id
	s.wg.Add(1)
	s.mu.Unlock()

	// pass only the ID to avoid sharing the Run pointer
	go s.run(context.WithoutCancel(ctx), id, req)

	s.submitted("accepted")
	return &SubmitResult{ID: id}, nil
}

// Get retrieves a run by ID.
func (s *Service) Get(ctx context.Context, id string) (*Run, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*Run, error) {
	return s.store.List(ctx, limit)
}

// Wait blocks until no run is in progress.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Options merges a request onto the service defaults.
func (s *Service) Options(req RunRequest) Options {
	opts := s.defaults
	if req.DryRun {
		opts.DryRun = true
	}
	if req.NoDedup {
		opts.DedupEnabled = false
	}
	if req.MaxAgeDays > 0 {
		opts.MaxAgeOverride = req.MaxAgeDays
	}
	if req.RelevanceThreshold != nil {
		t := *req.RelevanceThreshold
		opts.RelevanceThreshold = &t
	}
	return opts
}

func (s *Service) run(ctx context.Context, id string, req RunRequest) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	L := s.logger.With("run_id", id)

	ctx, span := s.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("raven.run.id", id),
		attribute.Bool("raven.run.dry_run", req.DryRun),
	))
	defer span.End()

	run, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch run")
		return
	}

	run.Status = RunInProgress
	if err := s.store.Put(ctx, run); err != nil {
		L.Error(ctx, err, "failed to update status to in_progress")
		return
	}

	rep, err := s.runner.Run(ctx, s.Options(req))
	run.CompletedAt = time.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		L.Error(ctx, err, "run failed")
		run.Status = RunFailed
		run.Error = err.Error()
		if perr := s.store.Put(ctx, run); perr != nil {
			L.Error(ctx, perr, "failed to persist failed run")
		}
		return
	}

	run.Status = RunComplete
	run.Report = rep
	if err := s.store.Put(ctx, run); err != nil {
		L.Error(ctx, err, "failed to persist run report")
	}
	span.SetAttributes(
		attribute.Int("raven.run.included", rep.Summary.Included),
		attribute.Int("raven.run.collected", rep.Summary.Collected),
	)

	for _, n := range s.notifiers {
		if err := n.Send(ctx, rep); err != nil {
			L.Error(ctx, err, "failed to deliver report")
		}
	}

	L.Info(ctx, "run complete",
		"duration", rep.Duration().Seconds(),
		"included", rep.Summary.Included,
		"analysis_failed", rep.Summary.AnalysisFailed,
	)
}

func (s *Service) submitted(result string) {
	if s.hooks.OnSubmit != nil {
		s.hooks.OnSubmit(result)
	}
}
