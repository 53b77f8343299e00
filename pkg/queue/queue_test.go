package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"collectordl/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	opts.Logger = logger.NewNopLogger()
	q := New(context.Background(), opts)
	t.Cleanup(q.Close)
	return q
}

// waitIdle registers an idle callback and returns a channel closed on the first call
func waitIdle(q *Queue) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	q.OnIdle(func() { once.Do(func() { close(done) }) })
	return done
}

func TestQueueRespectsConcurrency(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 3, IntervalCap: 100, Interval: 0})
	idle := waitIdle(q)

	var inFlight, maxInFlight int32
	for i := 0; i < 20; i++ {
		q.Submit(func(ctx context.Context) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		})
	}

	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never became idle")
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(3))
	assert.Equal(t, int32(3), atomic.LoadInt32(&maxInFlight), "expected the cap to be reached")
	assert.Len(t, q.Starts(), 20)
}

func TestQueueRespectsIntervalCap(t *testing.T) {
	const (
		intervalCap = 2
		interval    = 100 * time.Millisecond
	)
	q := newTestQueue(t, Options{Concurrency: 10, IntervalCap: intervalCap, Interval: interval})
	idle := waitIdle(q)

	for i := 0; i < 7; i++ {
		q.Submit(func(ctx context.Context) {})
	}

	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never became idle")
	}

	starts := q.Starts()
	require.Len(t, starts, 7)
	for i := range starts {
		count := 0
		for j := i; j < len(starts) && starts[j].Sub(starts[i]) < interval; j++ {
			count++
		}
		assert.LessOrEqual(t, count, intervalCap, "window starting at task %d", i)
	}
	// 7 tasks at 2 per window need at least three full windows
	assert.GreaterOrEqual(t, starts[6].Sub(starts[0]), 3*interval-10*time.Millisecond)
}

func TestQueueFIFOStartOrder(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, IntervalCap: 100})
	idle := waitIdle(q)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		q.Submit(func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	<-idle
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestQueuePauseResume(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 2, IntervalCap: 100})
	idle := waitIdle(q)

	var ran int32
	q.Pause()
	for i := 0; i < 4; i++ {
		q.Submit(func(ctx context.Context) { atomic.AddInt32(&ran, 1) })
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	assert.Equal(t, 4, q.Size())
	assert.True(t, q.IsPaused())

	q.Resume()
	<-idle
	assert.Equal(t, int32(4), atomic.LoadInt32(&ran))
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 0, q.Running())
}

func TestQueuePauseDoesNotAffectRunning(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, IntervalCap: 100})

	release := make(chan struct{})
	finished := make(chan struct{})
	q.Submit(func(ctx context.Context) {
		<-release
		close(finished)
	})

	require.Eventually(t, func() bool { return q.Running() == 1 }, time.Second, 5*time.Millisecond)
	q.Pause()
	close(release)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("running task was blocked by pause")
	}
}

func TestQueueSetConcurrency(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, IntervalCap: 100})

	release := make(chan struct{})
	var started int32
	for i := 0; i < 3; i++ {
		q.Submit(func(ctx context.Context) {
			atomic.AddInt32(&started, 1)
			<-release
		})
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, q.Size())

	q.SetConcurrency(3)
	assert.Equal(t, 3, q.Concurrency())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 3 }, time.Second, 5*time.Millisecond)

	q.SetConcurrency(0)
	assert.Equal(t, 1, q.Concurrency())
	close(release)
	q.Wait()
}

func TestQueueCancellationDropsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(ctx, Options{Concurrency: 1, IntervalCap: 100, Logger: logger.NewNopLogger()})
	defer q.Close()
	idle := waitIdle(q)

	release := make(chan struct{})
	var ran int32
	q.Submit(func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
		<-release
	})
	for i := 0; i < 5; i++ {
		q.Submit(func(ctx context.Context) { atomic.AddInt32(&ran, 1) })
	}

	require.Eventually(t, func() bool { return q.Running() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return q.Size() == 0 }, time.Second, 5*time.Millisecond)

	close(release)
	<-idle

	q.Submit(func(ctx context.Context) { atomic.AddInt32(&ran, 1) })
	q.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestQueueTaskCanResubmit(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 2, IntervalCap: 100})

	var idleCalls int32
	done := make(chan struct{})
	q.OnIdle(func() {
		if atomic.AddInt32(&idleCalls, 1) == 1 {
			close(done)
		}
	})

	var attempts int32
	var task Task
	task = func(ctx context.Context) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			q.Submit(task)
		}
	}
	q.Submit(task)

	<-done
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&idleCalls))
}
