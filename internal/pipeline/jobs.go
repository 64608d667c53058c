package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an async job.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusStarted JobStatus = "started"
	StatusSuccess JobStatus = "success"
	StatusFailure JobStatus = "failure"
)

// Job tracks one asynchronously executed unit of work: an ingestion, a
// deletion, or a cleanup sweep. On success Result holds the task's return
// value; on failure it holds the error text, so pollers always get a payload.
type Job struct {
	mu sync.Mutex

	ID     string
	Name   string
	Status JobStatus
	Result any
	Error  string

	CreatedAt time.Time
	UpdatedAt time.Time

	run TaskFunc
}

// NewJob creates a pending job with a fresh id.
func NewJob(name string, run TaskFunc) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPending,
		run:       run,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusStarted
	j.UpdatedAt = time.Now()
}

func (j *Job) succeed(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusSuccess
	j.Result = result
	j.UpdatedAt = time.Now()
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusFailure
	j.Error = err.Error()
	j.Result = err.Error()
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"task_id"`
	Name      string    `json:"name"`
	Status    JobStatus `json:"status"`
	Result    any       `json:"result"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:        j.ID,
		Name:      j.Name,
		Status:    j.Status,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes jobs that have not been touched within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
