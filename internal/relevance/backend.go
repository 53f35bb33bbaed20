package relevance

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/linnemanlabs/raven/internal/news"
)

// Stage identifies which pass of the pipeline a backend call belongs to.
type Stage int

const (
	Stage1 Stage = 1
	Stage2 Stage = 2
)

func (s Stage) String() string {
	switch s {
	case Stage1:
		return "stage1"
	case Stage2:
		return "stage2"
	default:
		return fmt.Sprintf("stage%d", int(s))
	}
}

// Request is a single backend evaluation. Prompt and System are rendered by
// the Prompter; Item and Profile are passed along for backends that work on
// structured input instead of text.
type Request struct {
	Stage   Stage
	System  string
	Prompt  string
	Item    news.Item
	Profile *news.Profile
}

// Evaluation is a backend's answer. Score must be within [0,1].
type Evaluation struct {
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
}

// Backend scores an item against the profile. Implementations must be safe
// for concurrent use.
type Backend interface {
	Evaluate(ctx context.Context, req *Request) (*Evaluation, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req *Request) (*Evaluation, error)

// Evaluate implements Backend.
func (f BackendFunc) Evaluate(ctx context.Context, req *Request) (*Evaluation, error) {
	return f(ctx, req)
}

// BackendError is a failed, timed out or malformed backend call for one item.
type BackendError struct {
	Stage Stage
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Stage, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

type limitedBackend struct {
	next    Backend
	limiter *rate.Limiter
}

// RateLimited wraps a backend so calls are spaced to at most rps per second,
// allowing bursts of burst calls. A non-positive rps returns next unchanged.
func RateLimited(next Backend, rps float64, burst int) Backend {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &limitedBackend{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (b *limitedBackend) Evaluate(ctx context.Context, req *Request) (*Evaluation, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return b.next.Evaluate(ctx, req)
}
