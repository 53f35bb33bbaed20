package relevance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/news"
)

const (
	// DefaultThreshold applies when no threshold is configured.
	DefaultThreshold = 0.5

	// DefaultConcurrency bounds in-flight items per Analyze call.
	DefaultConcurrency = 4
)

const tracerName = "github.com/linnemanlabs/raven/internal/relevance"

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	// Threshold is the score an item needs at each stage; nil selects
	// DefaultThreshold. Zero is a valid threshold.
	Threshold   *float64
	Concurrency int
	Prompter    Prompter
	Hooks       Hooks
}

// Pipeline runs the two-stage relevance analysis against a Backend.
type Pipeline struct {
	backend     Backend
	prompter    Prompter
	threshold   float64
	concurrency int
	hooks       Hooks
	logger      log.Logger
	tracer      trace.Tracer
}

// New creates a relevance pipeline.
func New(backend Backend, logger log.Logger, opts Options) *Pipeline {
	p := &Pipeline{
		backend:     backend,
		prompter:    opts.Prompter,
		threshold:   DefaultThreshold,
		concurrency: opts.Concurrency,
		hooks:       opts.Hooks,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}
	if p.prompter == nil {
		p.prompter = DefaultPrompter{}
	}
	if opts.Threshold != nil {
		p.threshold = *opts.Threshold
	}
	if p.concurrency < 1 {
		p.concurrency = DefaultConcurrency
	}
	return p
}

// Threshold returns the score an item needs at each stage.
func (p *Pipeline) Threshold() float64 { return p.threshold }

// WithThreshold returns a copy of the pipeline using threshold t.
func (p *Pipeline) WithThreshold(t float64) *Pipeline {
	cp := *p
	cp.threshold = t
	return &cp
}

// Analyze produces one verdict per item, in input order. Items are
// evaluated independently with bounded parallelism. If ctx is cancelled no
// further backend calls are made and the context error is returned; partial
// verdicts are discarded.
func (p *Pipeline) Analyze(ctx context.Context, profile *news.Profile, items []news.Item) ([]Verdict, error) {
	verdicts := make([]Verdict, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := p.evaluate(gctx, profile, items[i])
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// Evaluate runs both stages for a single item. The only error returned is a
// context error; backend failures are recorded on the verdict.
func (p *Pipeline) Evaluate(ctx context.Context, profile *news.Profile, item news.Item) (Verdict, error) {
	return p.evaluate(ctx, profile, item)
}

func (p *Pipeline) evaluate(ctx context.Context, profile *news.Profile, item news.Item) (Verdict, error) {
	L := p.logger.With("item_id", item.ID, "source", item.Source)
	v := Verdict{ItemID: item.ID, Status: StatusCollected}

	ev1, err := p.call(ctx, Stage1, profile, item)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		L.Error(ctx, err, "stage 1 failed, rejecting item", "title", item.Title)
		v.Err = err.Error()
		if terr := v.advance(StatusStage1Evaluated); terr != nil {
			return Verdict{}, terr
		}
		if terr := v.advance(StatusStage1Rejected); terr != nil {
			return Verdict{}, terr
		}
		p.hooks.verdict(v.Status)
		return v, nil
	}

	if err := v.advance(StatusStage1Evaluated); err != nil {
		return Verdict{}, err
	}
	v.Stage1Score = ev1.Score
	v.Stage1Passed = ev1.Score >= p.threshold

	if !v.Stage1Passed {
		v.Rationale = ev1.Rationale
		if err := v.advance(StatusStage1Rejected); err != nil {
			return Verdict{}, err
		}
		p.hooks.verdict(v.Status)
		return v, nil
	}

	ev2, err := p.call(ctx, Stage2, profile, item)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		L.Error(ctx, err, "stage 2 failed, reporting as analysis failed", "title", item.Title)
		v.Err = err.Error()
		if terr := v.advance(StatusAnalysisFailed); terr != nil {
			return Verdict{}, terr
		}
		p.hooks.verdict(v.Status)
		return v, nil
	}

	if err := v.advance(StatusStage2Evaluated); err != nil {
		return Verdict{}, err
	}
	score := ev2.Score
	v.Stage2Score = &score
	v.MatchedTerms = ev2.MatchedTerms
	v.Rationale = ev2.Rationale
	v.Included = score >= p.threshold

	next := StatusExcluded
	if v.Included {
		next = StatusIncluded
	}
	if err := v.advance(next); err != nil {
		return Verdict{}, err
	}
	p.hooks.verdict(v.Status)
	return v, nil
}

// call performs exactly one backend attempt for a stage. Any failure other
// than cancellation comes back as *BackendError.
func (p *Pipeline) call(ctx context.Context, stage Stage, profile *news.Profile, item news.Item) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "relevance."+stage.String(),
		trace.WithAttributes(
			attribute.String("raven.item.id", item.ID),
			attribute.String("raven.item.source", item.Source),
		),
	)
	defer span.End()

	req := &Request{
		Stage:   stage,
		System:  p.prompter.System(stage),
		Item:    item,
		Profile: profile,
	}
	if stage == Stage1 {
		req.Prompt = p.prompter.Stage1(item, profile)
	} else {
		req.Prompt = p.prompter.Stage2(item, profile)
	}

	start := time.Now()
	ev, err := p.backend.Evaluate(ctx, req)
	if err == nil {
		err = validate(ev)
	}
	if err != nil && ctx.Err() == nil {
		var be *BackendError
		if !errors.As(err, &be) {
			err = &BackendError{Stage: stage, Err: err}
		}
	}
	p.hooks.backendCall(stage, time.Since(start).Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Float64("raven.relevance.score", ev.Score))
	return ev, nil
}

func validate(ev *Evaluation) error {
	if ev == nil {
		return errors.New("malformed response: empty evaluation")
	}
	if math.IsNaN(ev.Score) || ev.Score < 0 || ev.Score > 1 {
		return fmt.Errorf("malformed response: score %v outside [0,1]", ev.Score)
	}
	return nil
}
