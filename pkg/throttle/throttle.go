// Package throttle backs a task queue off when a mirror answers with 429.
//
// On the first rate-limit signal the queue is paused and dropped to a single
// concurrent task. After the cooldown the queue resumes unconditionally; the
// first success afterwards restores the original concurrency.
package throttle

import (
	"sync"
	"time"

	"collectordl/pkg/logger"
)

// DefaultCooldown is how long the queue stays paused after a rate limit
const DefaultCooldown = 60 * time.Second

// Controller is the part of a queue the throttle drives
type Controller interface {
	Pause()
	Resume()
	SetConcurrency(n int)
	Concurrency() int
}

// State is a snapshot of the throttle
type State struct {
	Paused           bool
	Probing          bool
	SavedConcurrency int
}

// Throttle owns the rate-limit state for a run. All fields are guarded by mu.
type Throttle struct {
	mu       sync.Mutex
	ctrl     Controller
	cooldown time.Duration
	state    State
	timer    *time.Timer
	onResume func()
	logger   logger.Logger
}

// New creates a throttle around ctrl. A non-positive cooldown uses DefaultCooldown.
func New(ctrl Controller, cooldown time.Duration, log logger.Logger) *Throttle {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Throttle{
		ctrl:     ctrl,
		cooldown: cooldown,
		logger:   log.WithField("component", "throttle"),
	}
}

// OnResume registers fn to run each time a cooldown ends
func (t *Throttle) OnResume(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResume = fn
}

// RateLimited records a rate-limit signal. It reports whether this signal
// paused the queue; signals that arrive while paused change nothing.
func (t *Throttle) RateLimited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Paused {
		return false
	}

	// A second trigger before any success must not save the probe concurrency
	if !t.state.Probing {
		t.state.SavedConcurrency = t.ctrl.Concurrency()
	}

	t.ctrl.Pause()
	t.ctrl.SetConcurrency(1)
	t.state.Paused = true
	t.state.Probing = true
	t.timer = time.AfterFunc(t.cooldown, t.resume)

	t.logger.WarnWithFields("Rate limited, pausing downloads", map[string]interface{}{
		"cooldown":          t.cooldown,
		"saved_concurrency": t.state.SavedConcurrency,
	})
	return true
}

// Succeeded records a successful attempt. The first success after a cooldown
// restores the saved concurrency.
func (t *Throttle) Succeeded() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.Probing || t.state.Paused {
		return
	}

	t.state.Probing = false
	t.ctrl.SetConcurrency(t.state.SavedConcurrency)
	t.logger.InfoWithFields("Probe succeeded, restoring concurrency", map[string]interface{}{
		"concurrency": t.state.SavedConcurrency,
	})
}

// State returns a snapshot of the current state
func (t *Throttle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cooldown returns the configured pause length
func (t *Throttle) Cooldown() time.Duration {
	return t.cooldown
}

// Stop cancels a pending resume
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Throttle) resume() {
	t.mu.Lock()
	t.state.Paused = false
	t.timer = nil
	t.ctrl.Resume()
	onResume := t.onResume
	t.mu.Unlock()

	t.logger.Info("Cooldown finished, resuming downloads")
	if onResume != nil {
		onResume()
	}
}
