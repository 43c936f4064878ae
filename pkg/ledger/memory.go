package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

// Memory is an in-process Store for local runs.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{jobs: map[string]*Job{}, now: func() time.Time { return time.Now().UTC() }}
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, profile string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	job := &Job{ID: newID(), Status: pipeline.StatusPending, Profile: profile, RawFiles: []string{}, CreatedAt: now, UpdatedAt: now}
	m.jobs[job.ID] = job
	return clone(job), nil
}

func (m *Memory) with(id string, fn func(*Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return errors.Wrap(ErrNotFound, id)
	}
	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = m.now()
	return nil
}

// SetRawFiles implements Store.
func (m *Memory) SetRawFiles(_ context.Context, id string, files []string) error {
	return m.with(id, func(j *Job) error {
		j.RawFiles = append([]string{}, files...)
		return nil
	})
}

// SetStatus implements pipeline.Ledger.
func (m *Memory) SetStatus(_ context.Context, id string, status pipeline.Status) error {
	if _, err := sourceStatuses(status); err != nil {
		return err
	}
	return m.with(id, func(j *Job) error {
		if !CanTransition(j.Status, status) {
			return errors.Wrapf(ErrInvalidTransition, "%s: %s -> %s", id, j.Status, status)
		}
		if status == pipeline.StatusProcessing {
			j.Error = ""
			j.ProcessedFiles = nil
			j.CompletedAt = nil
		}
		j.Status = status
		return nil
	})
}

// SetResult implements pipeline.Ledger.
func (m *Memory) SetResult(_ context.Context, id string, locations []string) error {
	return m.with(id, func(j *Job) error {
		j.ProcessedFiles = append([]string{}, locations...)
		t := m.now()
		j.CompletedAt = &t
		return nil
	})
}

// SetError implements pipeline.ErrorRecorder.
func (m *Memory) SetError(_ context.Context, id string, msg string) error {
	return m.with(id, func(j *Job) error {
		j.Error = msg
		return nil
	})
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return clone(job), nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, clone(j))
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func clone(j *Job) *Job {
	c := *j
	c.RawFiles = append([]string(nil), j.RawFiles...)
	c.ProcessedFiles = append([]string(nil), j.ProcessedFiles...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
