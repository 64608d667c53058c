package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskFunc is the body of a job. The returned value becomes the job result;
// a non-nil error fails the job.
type TaskFunc func(ctx context.Context) (any, error)

// Runner executes submitted jobs on a fixed pool of workers and retains
// their state for polling.
type Runner struct {
	jobs  *JobStore
	queue chan *Job
	log   *slog.Logger

	workers  int
	maxQueue int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Call Start before submitting jobs.
func NewRunner(workers, maxQueue int, jobTTL time.Duration, log *slog.Logger) *Runner {
	return &Runner{
		jobs:     NewJobStore(jobTTL),
		queue:    make(chan *Job, maxQueue),
		log:      log,
		workers:  workers,
		maxQueue: maxQueue,
	}
}

// Start launches worker goroutines and the job store cleanup loop.
func (r *Runner) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-r.queue:
					if !ok {
						return
					}
					r.runJob(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				r.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the runner.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	close(r.queue)
	r.wg.Wait()
}

// Submit registers a new job and queues it for execution.
func (r *Runner) Submit(name string, run TaskFunc) (*Job, error) {
	job := NewJob(name, run)
	r.jobs.Put(job)
	select {
	case r.queue <- job:
		return job, nil
	default:
		err := fmt.Errorf("job queue is full (%d)", r.maxQueue)
		job.fail(err)
		return nil, err
	}
}

// GetJob returns a job by ID, or nil if unknown or expired.
func (r *Runner) GetJob(id string) *Job {
	return r.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (r *Runner) QueueDepth() int {
	return len(r.queue)
}

func (r *Runner) runJob(ctx context.Context, job *Job) {
	log := r.log.With("task_id", job.ID, "task", job.Name)
	job.start()

	result, err := job.run(ctx)
	if err != nil {
		log.Error("job failed", "error", err)
		job.fail(err)
		return
	}
	job.succeed(result)
	log.Info("job finished")
}
