// Package queue is the shared work queue the report workers pull from. Jobs
// are aggregate-one-tenant or generate-artifacts-for-one-report; correctness
// never depends on in-process concurrency, only on the stores' locking.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job kinds.
const (
	KindAggregate = "aggregate"
	KindArtifacts = "artifacts"
)

// Job is one unit of work. Key identifies the subject (tenant id for
// aggregation, report id for artifacts); jobs with the same key for the same
// kind should not run concurrently, which the dispatcher enforces.
type Job struct {
	ID       string
	Kind     string
	Key      string
	Work     func(context.Context) error
	OnFinish func(error)
}

// Stats exposes current queue metrics.
type Stats struct {
	Length      int
	Capacity    int
	WorkerCount int
	Processed   uint64
	Failed      uint64
}

// Queue is a bounded job queue with a fixed worker pool and a per-job
// timeout. In-flight keys are tracked so the same tenant or report is never
// worked on twice at once inside this process.
type Queue struct {
	jobs        chan Job
	workerCount int
	timeout     time.Duration
	log         *logrus.Entry

	mu       sync.RWMutex
	started  bool
	inFlight map[string]bool
	wg       sync.WaitGroup

	processed uint64
	failed    uint64
}

func New(capacity, workerCount int, timeout time.Duration, log *logrus.Entry) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		workerCount: workerCount,
		timeout:     timeout,
		log:         log,
		inFlight:    make(map[string]bool),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue queues a job without blocking. It returns false when the queue is
// full, not started, or the job's key is already queued or running.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		q.log.WithField("job_id", j.ID).Warn("enqueue before queue start")
		return false
	}
	key := j.Kind + ":" + j.Key
	if q.inFlight[key] {
		q.mu.Unlock()
		return false
	}
	select {
	case q.jobs <- j:
		q.inFlight[key] = true
		q.mu.Unlock()
		return true
	default:
		q.mu.Unlock()
		q.log.WithField("job_id", j.ID).Warn("queue full, dropping job")
		return false
	}
}

// Stop closes intake and waits for workers to drain until ctx is done.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats returns current queue metrics.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		Length:      len(q.jobs),
		Capacity:    cap(q.jobs),
		WorkerCount: q.workerCount,
		Processed:   atomic.LoadUint64(&q.processed),
		Failed:      atomic.LoadUint64(&q.failed),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.handleJob(ctx, j)
		}
	}
}

func (q *Queue) handleJob(ctx context.Context, j Job) {
	log := q.log.WithFields(logrus.Fields{
		"job_id":   j.ID,
		"job_kind": j.Kind,
		"job_key":  j.Key,
	})
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)

	var err error
	// A panicking job still releases its context and key, counts as a
	// failure, and reaches its OnFinish callback.
	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.inFlight, j.Kind+":"+j.Key)
		q.mu.Unlock()

		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
			log.WithField("panic", r).Error("job panic recovered")
		}
		if j.OnFinish != nil {
			j.OnFinish(err)
		}

		atomic.AddUint64(&q.processed, 1)
		entry := log.WithField("duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			atomic.AddUint64(&q.failed, 1)
			entry.WithField("error", err.Error()).Warn("job failed")
			return
		}
		entry.Info("job finished")
	}()

	err = j.Work(jobCtx)
}
