package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	errs "collectordl/pkg/errors"
	"collectordl/pkg/filename"
	"collectordl/pkg/logger"
	"collectordl/pkg/mirror"
	"collectordl/pkg/models"
	"collectordl/pkg/queue"
	"collectordl/pkg/retry"
	"collectordl/pkg/storage"
	"collectordl/pkg/throttle"

	"github.com/google/uuid"
)

// Fetcher is the HTTP fetch primitive
type Fetcher interface {
	Fetch(ctx context.Context, id int, useAlternate bool) (*mirror.Response, error)
}

// Store is the destination directory of a run
type Store interface {
	EnsureDir() error
	BuildIndex(progress storage.ProgressFunc) *storage.Index
	Save(r io.Reader, filename string) (int64, error)
	GetOutputDir() string
}

// Options bounds a run
type Options struct {
	Concurrency int
	IntervalCap int
	Interval    time.Duration
	// Cooldown is how long downloads pause after a rate limit
	Cooldown time.Duration
	// MaxRetries is the retry budget of each target
	MaxRetries int
}

// DefaultOptions returns the stock scheduling bounds
func DefaultOptions() Options {
	return Options{
		Concurrency: 5,
		IntervalCap: 10,
		Interval:    time.Second,
		Cooldown:    throttle.DefaultCooldown,
		MaxRetries:  retry.DefaultRetries,
	}
}

// Orchestrator downloads every target of a collection that is not already
// on disk and reports one terminal result.
type Orchestrator struct {
	fetcher  Fetcher
	store    Store
	opts     Options
	observer Observer
	logger   logger.Logger
	emitMu   sync.Mutex
}

// New creates an orchestrator. observer may be nil.
func New(fetcher Fetcher, store Store, opts Options, observer Observer, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	if observer == nil {
		observer = ObserverFunc(func(Event) {})
	}
	return &Orchestrator{
		fetcher:  fetcher,
		store:    store,
		opts:     opts,
		observer: observer,
		logger:   log.WithField("component", "downloader"),
	}
}

// run is the state of one Run call
type run struct {
	id       string
	queue    *queue.Queue
	throttle *throttle.Throttle
	latch    *completion
	logger   logger.Logger
}

// job is one queued attempt. slot identifies the target in the latch.
type job struct {
	slot  int
	state retry.AttemptState
}

// Run downloads the collection. Failed targets are part of the result, not
// an error; Run only fails when the destination directory cannot be
// prepared or ctx ends first, in which case the partial result is returned
// with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, collection *models.Collection) (*models.RunResult, error) {
	started := time.Now()
	r := &run{id: uuid.NewString()}
	r.logger = o.logger.WithField("run_id", r.id)

	if err := o.store.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to prepare output directory: %w", err)
	}

	logger.LogComponentStart(r.logger, "downloader", map[string]interface{}{
		"collection":   collection.Name,
		"targets":      len(collection.Targets),
		"output_dir":   o.store.GetOutputDir(),
		"concurrency":  o.opts.Concurrency,
		"interval_cap": o.opts.IntervalCap,
		"interval":     o.opts.Interval,
	})

	index := o.store.BuildIndex(func(processed, total int) {
		o.emit(r, Event{Kind: EventIndexing, Processed: processed, Total: total})
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.queue = queue.New(runCtx, queue.Options{
		Concurrency: o.opts.Concurrency,
		IntervalCap: o.opts.IntervalCap,
		Interval:    o.opts.Interval,
		Logger:      r.logger,
	})
	defer r.queue.Close()

	r.throttle = throttle.New(r.queue, o.opts.Cooldown, r.logger)
	defer r.throttle.Stop()

	r.queue.OnIdle(func() {
		r.logger.Debug("Queue idle")
	})

	r.latch = newCompletion(len(collection.Targets))
	for slot, target := range collection.Targets {
		if index.Has(target.ID) {
			o.emit(r, Event{Kind: EventSkipped, Target: target})
			r.latch.settle(slot, settleSkipped, target)
			continue
		}
		o.submit(r, job{slot: slot, state: retry.NewState(target, o.opts.MaxRetries).Begin()})
	}

	select {
	case <-r.latch.done:
		result := r.latch.snapshot(r.id)
		result.Duration = time.Since(started)
		o.emit(r, Event{Kind: EventEnd, Result: result})
		logger.LogRunSummary(r.logger, r.id, result.Total, result.Downloaded, result.Skipped, len(result.Failed), result.Duration)
		return result, nil

	case <-ctx.Done():
		cancel()
		r.queue.Wait()
		result := r.latch.snapshot(r.id)
		result.Duration = time.Since(started)
		r.logger.WarnWithFields("Run cancelled", map[string]interface{}{
			"settled": result.Terminal(),
			"total":   result.Total,
		})
		// Attempts interrupted above emit nothing; this closes them out.
		o.emit(r, Event{Kind: EventCancelled, Result: result})
		return result, ctx.Err()
	}
}

func (o *Orchestrator) submit(r *run, j job) {
	r.queue.Submit(func(ctx context.Context) {
		o.attempt(ctx, r, j)
	})
}

// attempt performs one download attempt and applies its outcome
func (o *Orchestrator) attempt(ctx context.Context, r *run, j job) {
	state := j.state
	target := state.Target

	o.emit(r, Event{
		Kind:         EventDownloading,
		Target:       target,
		Attempt:      state.Attempt,
		UseAlternate: state.UseAlternateSource,
	})

	outcome, name, written, err := o.download(ctx, state)
	if ctx.Err() != nil {
		// Cancelled mid-attempt: the run is over, nothing to record
		return
	}

	d := state.Next(outcome)
	switch d.Action {
	case retry.ActionSucceed:
		r.throttle.Succeeded()
		logger.LogDownload(r.logger, target.ID, name, written, nil)
		o.emit(r, Event{Kind: EventDownloaded, Target: target, Filename: name, Bytes: written})
		r.latch.settle(j.slot, settleDownloaded, target)

	case retry.ActionRequeue:
		paused := r.throttle.RateLimited()
		logger.LogRateLimit(r.logger, target.ID, r.throttle.Cooldown(), paused)
		o.emit(r, Event{
			Kind:         EventRateLimited,
			Target:       target,
			Attempt:      state.Attempt,
			UseAlternate: state.UseAlternateSource,
			Paused:       paused,
		})
		o.submit(r, job{slot: j.slot, state: d.Next})

	case retry.ActionRetry:
		r.logger.WarnWithFields("Download attempt failed, retrying", map[string]interface{}{
			"beatmapset_id": target.ID,
			"attempt":       state.Attempt,
			"retries_left":  d.Next.RetriesRemaining,
			"alternate":     d.Next.UseAlternateSource,
			"error":         err.Error(),
		})
		o.emit(r, Event{
			Kind:         EventRetrying,
			Target:       target,
			Attempt:      d.Next.Attempt,
			UseAlternate: d.Next.UseAlternateSource,
			Err:          err,
		})
		o.submit(r, job{slot: j.slot, state: d.Next})

	case retry.ActionFail:
		logger.LogDownload(r.logger, target.ID, "", 0, err)
		o.emit(r, Event{Kind: EventError, Target: target, Attempt: state.Attempt, Err: err})
		r.latch.settle(j.slot, settleFailed, target)
	}
}

// download fetches and saves one target. err explains a failure outcome.
func (o *Orchestrator) download(ctx context.Context, state retry.AttemptState) (retry.Outcome, string, int64, error) {
	if err := o.store.EnsureDir(); err != nil {
		return retry.OutcomeFailure, "", 0, err
	}

	resp, err := o.fetcher.Fetch(ctx, state.Target.ID, state.UseAlternateSource)
	if err != nil {
		return retry.OutcomeFailure, "", 0, err
	}
	defer resp.Close()

	outcome := retry.Classify(resp.StatusCode, resp.HasBody(), nil)
	switch outcome {
	case retry.OutcomeRateLimited:
		return outcome, "", 0, nil
	case retry.OutcomeFailure:
		if resp.StatusCode == 200 {
			return outcome, "", 0, errs.New(errs.ErrorTypeEmptyBody, "mirror returned no content")
		}
		return outcome, "", 0, errs.FromStatus(resp.StatusCode)
	}

	name, err := filename.Resolve(resp.Header)
	if err != nil {
		return retry.OutcomeFailure, "", 0, err
	}

	written, err := o.store.Save(resp.Body, name)
	if err != nil {
		return retry.OutcomeFailure, name, written, err
	}
	return retry.OutcomeSuccess, name, written, nil
}

func (o *Orchestrator) emit(r *run, e Event) {
	e.RunID = r.id
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.observer.OnEvent(e)
}
