// Package jobs provides a FIFO job queue drained by a bounded pool of
// workers. Each processing phase of the pipeline builds its own queue,
// pushes one job per frame group, starts the pool and waits for the drain.
package jobs

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is one unit of work: a named target function plus its completion
// state. A job is executed by exactly one worker and never re-run. Err and
// Done may be read once Wait has returned.
type Job struct {
	ID   uuid.UUID
	Name string
	Run  func() error

	Err  error
	Done bool
}

// Queue is a FIFO job queue with a bounded worker pool. Push jobs, then
// Start the workers, then Wait for the drain. Jobs pushed while workers are
// still draining are picked up too; once the queue runs empty the workers
// exit and the queue is spent.
type Queue struct {
	mu      sync.Mutex
	pending []*Job

	wg        sync.WaitGroup
	completed atomic.Int64
	total     atomic.Int64

	log zerolog.Logger
}

// New creates an empty job queue.
func New(logger zerolog.Logger) *Queue {
	return &Queue{log: logger.With().Str("component", "jobs").Logger()}
}

// Push appends a job to the queue and returns it.
func (q *Queue) Push(name string, run func() error) *Job {
	job := &Job{ID: uuid.New(), Name: name, Run: run}
	// Add before the job becomes visible so a racing worker can never
	// complete it ahead of the Add.
	q.wg.Add(1)
	q.total.Add(1)
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	return job
}

// Start spins up workers that drain the queue. A non-positive count means
// one worker per available processing core.
func (q *Queue) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	q.log.Debug().Int("workers", workers).Int64("jobs", q.total.Load()).Msg("starting workers")
	for i := 0; i < workers; i++ {
		go q.worker(i)
	}
}

// Wait blocks until every pushed job has completed.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Completed returns the number of jobs that have finished running.
func (q *Queue) Completed() int64 {
	return q.completed.Load()
}

func (q *Queue) worker(id int) {
	for {
		job := q.pop()
		if job == nil {
			return
		}
		q.runJob(id, job)
	}
}

func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job
}

// runJob executes one job. Job errors are logged, not escalated: a failed
// group must not stop the other workers. A panic inside a job is contained
// the same way so the queue always drains.
func (q *Queue) runJob(workerID int, job *Job) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			job.Err = fmt.Errorf("job panicked: %v", r)
			job.Done = true
			q.completed.Add(1)
			q.log.Error().
				Int("worker", workerID).
				Str("job_id", job.ID.String()).
				Str("job", job.Name).
				Interface("panic", r).
				Msg("job panicked")
		}
	}()

	q.log.Debug().Int("worker", workerID).Str("job_id", job.ID.String()).Str("job", job.Name).Msg("job started")
	job.Err = job.Run()
	job.Done = true
	q.completed.Add(1)
	if job.Err != nil {
		q.log.Warn().Err(job.Err).Str("job_id", job.ID.String()).Str("job", job.Name).Msg("job finished with error")
		return
	}
	q.log.Debug().Int("worker", workerID).Str("job_id", job.ID.String()).Str("job", job.Name).Msg("job finished")
}
