// Package queue runs tasks in FIFO order under a concurrency cap and a
// rolling start-rate cap.
package queue

import (
	"context"
	"sync"
	"time"

	"collectordl/pkg/logger"
	"collectordl/pkg/ratelimit"
)

// Task is one unit of work. It receives the queue's context.
type Task func(ctx context.Context)

// Options bounds how tasks are started
type Options struct {
	// Concurrency is the maximum number of running tasks (minimum 1)
	Concurrency int
	// IntervalCap is the maximum number of starts within Interval (minimum 1)
	IntervalCap int
	// Interval is the rolling window for IntervalCap. Zero disables it.
	Interval time.Duration
	// Logger receives scheduling diagnostics
	Logger logger.Logger
}

// Queue schedules tasks. All state is guarded by mu; tasks run on their own
// goroutines and never hold the lock.
type Queue struct {
	mu          sync.Mutex
	ctx         context.Context
	pending     []Task
	running     int
	concurrency int
	paused      bool
	window      *ratelimit.SlidingWindow
	retryTimer  *time.Timer
	onIdle      func()
	starts      []time.Time
	wg          sync.WaitGroup
	stopWatch   func() bool
	logger      logger.Logger
}

// New creates a queue bound to ctx. Once ctx is done, queued tasks are
// dropped and nothing new starts; running tasks are left to finish.
func New(ctx context.Context, opts Options) *Queue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.IntervalCap < 1 {
		opts.IntervalCap = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	q := &Queue{
		ctx:         ctx,
		concurrency: opts.Concurrency,
		window:      ratelimit.NewSlidingWindow(opts.IntervalCap, opts.Interval),
		logger:      opts.Logger.WithField("component", "queue"),
	}
	q.stopWatch = context.AfterFunc(ctx, q.cancelled)
	return q
}

// Submit appends a task. It starts immediately if the caps allow.
func (q *Queue) Submit(task Task) {
	q.mu.Lock()
	if q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, task)
	q.tryStartLocked()
	q.mu.Unlock()
}

// Pause stops new starts. Running tasks are unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume allows new starts again
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.tryStartLocked()
}

// IsPaused reports whether starts are currently blocked
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// SetConcurrency changes the running-task cap for future starts
func (q *Queue) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.concurrency = n
	q.tryStartLocked()
}

// Concurrency returns the current running-task cap
func (q *Queue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.concurrency
}

// OnIdle registers fn to be called whenever the queue drains: nothing
// running and nothing waiting. fn runs on the goroutine that drained it.
func (q *Queue) OnIdle(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onIdle = fn
}

// Size returns the number of tasks waiting to start
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of tasks in flight
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Starts returns the start time of every task started so far
func (q *Queue) Starts() []time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]time.Time, len(q.starts))
	copy(out, q.starts)
	return out
}

// Wait blocks until every started task has returned
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close releases the context watcher and any pending start timer
func (q *Queue) Close() {
	q.stopWatch()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
}

// tryStartLocked starts as many pending tasks as the caps allow.
// Caller must hold mu.
func (q *Queue) tryStartLocked() {
	for !q.paused && q.ctx.Err() == nil && q.running < q.concurrency && len(q.pending) > 0 {
		now := time.Now()
		ok, wait := q.window.ReserveAt(now)
		if !ok {
			if q.retryTimer == nil {
				q.retryTimer = time.AfterFunc(wait, q.windowReopened)
			}
			return
		}

		task := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running++
		q.starts = append(q.starts, now)

		q.wg.Add(1)
		go q.run(task)
	}
}

func (q *Queue) run(task Task) {
	defer q.wg.Done()
	defer q.finish()
	task(q.ctx)
}

func (q *Queue) finish() {
	q.mu.Lock()
	q.running--
	q.tryStartLocked()
	idle := q.idleLocked()
	q.mu.Unlock()

	if idle != nil {
		idle()
	}
}

func (q *Queue) windowReopened() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryTimer = nil
	q.tryStartLocked()
}

func (q *Queue) cancelled() {
	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	idle := q.idleLocked()
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.DebugWithFields("Queue cancelled, dropping pending tasks", map[string]interface{}{
			"dropped": dropped,
		})
	}
	if idle != nil {
		idle()
	}
}

// idleLocked returns the idle callback if the queue has drained
func (q *Queue) idleLocked() func() {
	if q.running == 0 && len(q.pending) == 0 {
		return q.onIdle
	}
	return nil
}
