// Package ledger persists grid jobs and their status.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Job is one ledger record.
type Job struct {
	ID             string          `json:"id"`
	Status         pipeline.Status `json:"status"`
	Profile        string          `json:"profile"`
	RawFiles       []string        `json:"raw_files"`
	ProcessedFiles []string        `json:"processed_files,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Store is a job ledger. It satisfies pipeline.Ledger.
type Store interface {
	pipeline.Ledger
	pipeline.ErrorRecorder
	Create(ctx context.Context, profile string) (*Job, error)
	SetRawFiles(ctx context.Context, id string, files []string) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	Close() error
}

// allowedFrom lists, for each target status, the statuses it may be entered
// from. Terminal jobs may be run again; pending is a reset and always allowed.
var allowedFrom = map[pipeline.Status][]pipeline.Status{
	pipeline.StatusProcessing: {pipeline.StatusPending, pipeline.StatusCompleted, pipeline.StatusFailed},
	pipeline.StatusCompleted:  {pipeline.StatusProcessing},
	pipeline.StatusFailed:     {pipeline.StatusPending, pipeline.StatusProcessing},
}

// CanTransition reports whether a job in status from may move to to.
func CanTransition(from, to pipeline.Status) bool {
	sources, err := sourceStatuses(to)
	if err != nil {
		return false
	}
	for _, s := range sources {
		if s == from {
			return true
		}
	}
	return false
}

// sourceStatuses returns the statuses a job may be in to enter to.
func sourceStatuses(to pipeline.Status) ([]pipeline.Status, error) {
	switch to {
	case pipeline.StatusPending:
		return []pipeline.Status{pipeline.StatusPending, pipeline.StatusProcessing, pipeline.StatusCompleted, pipeline.StatusFailed}, nil
	case pipeline.StatusProcessing, pipeline.StatusCompleted, pipeline.StatusFailed:
		return allowedFrom[to], nil
	}
	return nil, errors.Errorf("unknown status %q", to)
}

func newID() string {
	return uuid.NewString()
}
