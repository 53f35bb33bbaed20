package pipeline

import (
	"context"
	"time"
)

// RunStatus tracks where a submitted run is in its lifecycle.
type RunStatus string

const (
	// RunPending means created, not yet started
	RunPending RunStatus = "pending"

	// RunInProgress means collectors or the backend are being called
	RunInProgress RunStatus = "in_progress"

	// RunComplete means a report is available
	RunComplete RunStatus = "complete"

	// RunFailed means the run was cancelled or could not start
	RunFailed RunStatus = "failed"
)

// Run is a submitted pipeline run and, once finished, its report.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Request     RunRequest `json:"request"`
	Report      *Report    `json:"report,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
}

// Store keeps runs for the lifetime of the process.
type Store interface {
	Get(ctx context.Context, id string) (*Run, bool, error)
	Put(ctx context.Context, run *Run) error
	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]*Run, error)
}
