// Package jobstore tracks the progress of long-running index jobs. The
// indexer writes through it while working; the HTTP API reads job state for
// polling clients.
package jobstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is one long-running index job's progress record.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	State     State     `json:"state"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress returns the completion percentage, rounded up. A job with no
// units of work reports 100: there is nothing left to do.
func (j *Job) Progress() int {
	if j.Total <= 0 {
		return 100
	}
	pct := (j.Completed*100 + j.Total - 1) / j.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// MarshalJSON adds the derived completion percentage so polling clients
// never have to compute it from total and completed themselves.
func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	return json.Marshal(struct {
		alias
		Progress int `json:"progress"`
	}{alias: alias(j), Progress: j.Progress()})
}

// Store persists job progress. Advance is monotonic: a smaller completed
// count than the stored one is ignored, so restarted or retried batches can
// never move a progress bar backwards.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	SetRunning(ctx context.Context, id string, total int) error
	Advance(ctx context.Context, id string, completed int) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause string) error
}

// MemoryStore is the in-process store used in tests and single-node runs.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *job
	if j.State == "" {
		j.State = StatePending
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	s.jobs[j.ID] = &j
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	out := *j
	return &out, nil
}

func (s *MemoryStore) mutate(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", id)
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetRunning(_ context.Context, id string, total int) error {
	return s.mutate(id, func(j *Job) {
		j.State = StateRunning
		j.Total = total
	})
}

func (s *MemoryStore) Advance(_ context.Context, id string, completed int) error {
	return s.mutate(id, func(j *Job) {
		if completed > j.Completed {
			j.Completed = completed
		}
	})
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	return s.mutate(id, func(j *Job) {
		j.State = StateCompleted
		j.Completed = j.Total
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, cause string) error {
	return s.mutate(id, func(j *Job) {
		j.State = StateFailed
		j.Error = cause
	})
}
