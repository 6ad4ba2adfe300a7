package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-reports-go/internal/logger"
)

func newTestQueue(capacity, workers int, timeout time.Duration) *Queue {
	return New(capacity, workers, timeout, logger.New().WithComponent("queue"))
}

func TestQueueRunsJobs(t *testing.T) {
	q := newTestQueue(10, 2, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := q.Enqueue(Job{
			ID:   "job",
			Kind: KindArtifacts,
			Key:  string(rune('a' + i)),
			Work: func(context.Context) error {
				ran.Add(1)
				return nil
			},
			OnFinish: func(error) { wg.Done() },
		})
		require.True(t, ok)
	}
	wg.Wait()

	assert.Equal(t, int32(5), ran.Load())
	stats := q.Stats()
	assert.Equal(t, uint64(5), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestQueueCountsFailures(t *testing.T) {
	q := newTestQueue(10, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	done := make(chan struct{})
	q.Enqueue(Job{
		ID: "j1", Kind: KindAggregate, Key: "t1",
		Work:     func(context.Context) error { return errors.New("boom") },
		OnFinish: func(error) { close(done) },
	})
	<-done

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestQueueDedupesInFlightKeys(t *testing.T) {
	q := newTestQueue(10, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	release := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan struct{})
	require.True(t, q.Enqueue(Job{
		ID: "j1", Kind: KindArtifacts, Key: "rep-1",
		Work: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
		OnFinish: func(error) { close(finished) },
	}))
	<-started

	// Same kind+key is rejected while the first is running.
	assert.False(t, q.Enqueue(Job{ID: "j2", Kind: KindArtifacts, Key: "rep-1",
		Work: func(context.Context) error { return nil }}))
	// A different kind for the same key is separate work.
	assert.True(t, q.Enqueue(Job{ID: "j3", Kind: KindAggregate, Key: "rep-1",
		Work: func(context.Context) error { return nil }}))

	close(release)
	<-finished

	// After completion the key is reusable.
	assert.Eventually(t, func() bool {
		return q.Enqueue(Job{ID: "j4", Kind: KindArtifacts, Key: "rep-1",
			Work: func(context.Context) error { return nil }})
	}, time.Second, 10*time.Millisecond)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := newTestQueue(1, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	release := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue(Job{ID: "running", Kind: KindArtifacts, Key: "a",
		Work: func(context.Context) error {
			close(started)
			<-release
			return nil
		}})
	<-started

	// One job fits the buffer, the next is dropped.
	assert.True(t, q.Enqueue(Job{ID: "buffered", Kind: KindArtifacts, Key: "b",
		Work: func(context.Context) error { return nil }}))
	assert.False(t, q.Enqueue(Job{ID: "dropped", Kind: KindArtifacts, Key: "c",
		Work: func(context.Context) error { return nil }}))
	close(release)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := newTestQueue(10, 1, time.Second)
	assert.False(t, q.Enqueue(Job{ID: "early", Kind: KindArtifacts, Key: "a",
		Work: func(context.Context) error { return nil }}))
}

func TestQueueJobTimeout(t *testing.T) {
	q := newTestQueue(10, 1, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	done := make(chan error, 1)
	q.Enqueue(Job{
		ID: "slow", Kind: KindArtifacts, Key: "a",
		Work: func(jobCtx context.Context) error {
			<-jobCtx.Done()
			return jobCtx.Err()
		},
		OnFinish: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job never finished")
	}
}

func TestQueueRecoversFromPanic(t *testing.T) {
	q := newTestQueue(10, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	finished := make(chan error, 1)
	q.Enqueue(Job{ID: "boom", Kind: KindArtifacts, Key: "a",
		Work:     func(context.Context) error { panic("kaboom") },
		OnFinish: func(err error) { finished <- err }})

	// The panic is surfaced as a failure, not swallowed.
	select {
	case err := <-finished:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinish never ran after panic")
	}
	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Failed)

	// The worker survives and keeps serving jobs.
	done := make(chan struct{})
	assert.Eventually(t, func() bool {
		return q.Enqueue(Job{ID: "next", Kind: KindArtifacts, Key: "b",
			Work:     func(context.Context) error { return nil },
			OnFinish: func(error) { close(done) }})
	}, time.Second, 10*time.Millisecond)
	<-done
}

func TestQueueStopDrains(t *testing.T) {
	q := newTestQueue(10, 2, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		q.Enqueue(Job{ID: "j", Kind: KindArtifacts, Key: string(rune('a' + i)),
			Work: func(context.Context) error {
				ran.Add(1)
				return nil
			}})
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	q.Stop(stopCtx)
	assert.Equal(t, int32(4), ran.Load())
}
