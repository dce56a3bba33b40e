// Package ingestion implements the state machine, bounded worker pool,
// fingerprint deduplication, and retry policy of spec.md §4.5 — the
// hardest subsystem. Stage execution itself (parse/archive/summarize/
// tag/classify/embed/citations/quality) lives in internal/enrichment;
// this package owns only the lifecycle around it, grounded on the
// teacher's internal/sources/manager.go Aggregate() worker-pool pattern
// generalized from "fetch N feeds concurrently" to "run N ingestion
// jobs concurrently with a per-content dedup lock".
package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/core"
	"neoalexandria/internal/events"
	"neoalexandria/internal/metrics"
	"neoalexandria/internal/store"
)

// FetchResult is the raw output of the mandatory Fetch stage.
type FetchResult struct {
	RawBytes    []byte
	ContentType string
}

// Fetcher retrieves raw bytes for a URL. Implemented by
// internal/enrichment against the teacher's internal/fetch package.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Enricher runs every stage after Fetch (Parse, Archive, and the
// concurrent degradable stages, followed by Quality score and the
// index writes), mutating resource in place. A returned error must
// already be classified via apperr (Transient, Fatal, or Validation);
// degradable stage failures are absorbed internally and never reach
// the caller as an error.
type Enricher interface {
	Enrich(ctx context.Context, resource *core.Resource, raw *FetchResult) error
}

// Config controls worker pool sizing, retry policy, and per-stage
// timeouts, sourced from internal/config.Ingestion.
type Config struct {
	WorkerPoolSize         int
	MaxAttempts            int
	BackoffBase            time.Duration
	MaxBackoff             time.Duration
	FetchTimeout           time.Duration
	FingerprintLockTimeout time.Duration
	QueueCapacity          int
}

// Engine drives resources through [pending] -> [processing] ->
// {completed, failed, processing(retry)}.
type Engine struct {
	cfg      Config
	store    store.Store
	fetcher  Fetcher
	enricher Enricher
	bus      *events.Bus
	log      *slog.Logger

	locks *fingerprintLocks
	queue chan *core.IngestionJob

	mu       sync.Mutex
	active   map[string]string // canonical url -> resource id, for jobs currently processing
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewEngine constructs an Engine and starts its worker pool.
func NewEngine(cfg Config, st store.Store, fetcher Fetcher, enricher Enricher, bus *events.Bus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:      cfg,
		store:    st,
		fetcher:  fetcher,
		enricher: enricher,
		bus:      bus,
		log:      log,
		locks:    newFingerprintLocks(),
		queue:    make(chan *core.IngestionJob, cfg.QueueCapacity),
		active:   make(map[string]string),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < cfg.WorkerPoolSize; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Stop signals all workers to finish their current job and exit, then
// waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	ResourceID string
	JobID      string
	Status     core.IngestionStatus
}

// Submit canonicalizes rawURL and either returns an existing resource
// (completed match, or the in-flight resource id for a concurrent
// duplicate submission) or creates a new pending Resource and enqueues
// a job for the worker pool.
func (e *Engine) Submit(ctx context.Context, rawURL string) (*SubmitResult, error) {
	canonical, err := CanonicalizeURL(rawURL)
	if err != nil {
		return nil, apperr.Validation("invalid url", err)
	}

	if existing, err := e.store.GetResourceBySource(ctx, canonical); err == nil {
		if existing.IngestionStatus == core.StatusCompleted {
			return &SubmitResult{ResourceID: existing.ID, Status: existing.IngestionStatus}, nil
		}
	}

	// Hold the lock across the whole reserve-and-create sequence: a
	// check-then-set split here would let two concurrent Submits for
	// the same canonical URL both pass the inFlight check before
	// either one records itself as active, defeating the dedup this
	// guard exists for.
	e.mu.Lock()
	defer e.mu.Unlock()

	if resourceID, inFlight := e.active[canonical]; inFlight {
		return &SubmitResult{ResourceID: resourceID, Status: core.StatusProcessing}, nil
	}

	resource := &core.Resource{
		ID:              uuid.NewString(),
		Source:          canonical,
		IngestionStatus: core.StatusPending,
	}
	if err := e.store.PutResource(ctx, resource); err != nil {
		return nil, apperr.Transient("failed to create resource", err)
	}

	job := &core.IngestionJob{
		ID:         uuid.NewString(),
		ResourceID: resource.ID,
		State:      core.StatusPending,
	}
	if err := e.store.PutIngestionJob(ctx, job); err != nil {
		return nil, apperr.Transient("failed to create ingestion job", err)
	}

	e.active[canonical] = resource.ID

	select {
	case e.queue <- job:
	case <-ctx.Done():
		return nil, apperr.Transient("submission cancelled before enqueue", ctx.Err())
	}

	return &SubmitResult{ResourceID: resource.ID, JobID: job.ID, Status: core.StatusPending}, nil
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case job, ok := <-e.queue:
			if !ok {
				return
			}
			e.runJob(job)
		}
	}
}

// runJob executes one attempt of job's ingestion lifecycle: claim,
// fetch, enrich, then transition to completed/failed/retry.
func (e *Engine) runJob(job *core.IngestionJob) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	resource, err := e.store.GetResource(ctx, job.ResourceID)
	if err != nil {
		e.log.Error("ingestion job references missing resource", "job_id", job.ID, "resource_id", job.ResourceID, "error", err)
		return
	}

	lockCtx, lockCancel := context.WithTimeout(ctx, e.cfg.FingerprintLockTimeout)
	release, err := e.locks.Acquire(lockCtx, resource.Source)
	lockCancel()
	if err != nil {
		e.log.Warn("could not acquire fingerprint lock before deadline", "resource_id", resource.ID)
		e.requeueAfter(job, e.cfg.BackoffBase)
		return
	}
	defer release()

	now := time.Now().UTC()
	job.State = core.StatusProcessing
	job.AttemptCount++
	job.StartedAt = &now
	metrics.RecordJobStarted()
	if err := e.store.PutIngestionJob(ctx, job); err != nil {
		e.log.Error("failed to persist job claim", "job_id", job.ID, "error", err)
		return
	}
	resource.IngestionStatus = core.StatusProcessing
	if err := e.store.PutResource(ctx, resource); err != nil {
		e.log.Error("failed to persist resource claim", "resource_id", resource.ID, "error", err)
		return
	}
	e.bus.Publish(events.Event{Name: events.ResourceCreated, ResourceID: resource.ID})

	fetchCtx, fetchCancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer fetchCancel()
	raw, err := e.fetcher.Fetch(fetchCtx, resource.Source)

	// ctx (the job's own context) is only cancelled by e.stopCh, i.e. engine
	// shutdown; fetchCtx's own deadline expiring is a plain timeout, not a
	// cancellation, and must be retried with backoff like any other
	// transient stage failure rather than silently rolled back to pending.
	if ctx.Err() != nil {
		e.rollbackToPending(ctx, job, resource)
		return
	}
	if err == nil && (raw == nil || len(raw.RawBytes) == 0) {
		err = apperr.Transient("fetch returned 0 bytes", nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperr.Transient("fetch timed out", err)
	}
	if err != nil {
		e.handleStageError(ctx, job, resource, err)
		return
	}

	resource.ContentFingerprint = ContentFingerprint(resource.Source, raw.RawBytes)
	if dup, dupErr := e.store.GetResourceByFingerprint(ctx, resource.ContentFingerprint); dupErr == nil && dup.ID != resource.ID {
		e.adoptExisting(ctx, job, resource, dup)
		return
	}

	enrichCtx := ctx
	if err := e.enricher.Enrich(enrichCtx, resource, raw); err != nil {
		if enrichCtx.Err() != nil {
			e.rollbackToPending(ctx, job, resource)
			return
		}
		e.handleStageError(ctx, job, resource, err)
		return
	}

	resource.IngestionStatus = core.StatusCompleted
	if err := e.store.PutResource(ctx, resource); err != nil {
		e.handleStageError(ctx, job, resource, apperr.Transient("failed to persist completed resource", err))
		return
	}
	completedAt := time.Now().UTC()
	job.State = core.StatusCompleted
	job.CompletedAt = &completedAt
	_ = e.store.PutIngestionJob(ctx, job)

	e.mu.Lock()
	delete(e.active, resource.Source)
	e.mu.Unlock()

	metrics.RecordJobCompleted()
	if job.StartedAt != nil {
		metrics.ObserveJobDuration(completedAt.Sub(*job.StartedAt))
	}
	e.bus.Publish(events.Event{Name: events.ResourceCompleted, ResourceID: resource.ID})
}

// adoptExisting short-circuits to a previously completed resource with
// an identical content fingerprint: the in-flight pending resource is
// deleted and the submitter's id effectively aliases the existing one.
func (e *Engine) adoptExisting(ctx context.Context, job *core.IngestionJob, resource, existing *core.Resource) {
	_ = e.store.DeleteResource(ctx, resource.ID)
	completedAt := time.Now().UTC()
	job.State = core.StatusCompleted
	job.CompletedAt = &completedAt
	_ = e.store.PutIngestionJob(ctx, job)

	e.mu.Lock()
	delete(e.active, resource.Source)
	e.mu.Unlock()

	e.bus.Publish(events.Event{Name: events.ResourceCompleted, ResourceID: existing.ID})
}

func (e *Engine) rollbackToPending(_ context.Context, job *core.IngestionJob, resource *core.Resource) {
	// Use a fresh context: the job's own ctx is already cancelled by the
	// time rollback runs, and persisting the rollback must not be
	// aborted by the same cancellation that triggered it.
	persistCtx := context.Background()

	job.AttemptCount--
	job.State = core.StatusPending
	job.StartedAt = nil
	_ = e.store.PutIngestionJob(persistCtx, job)

	resource.IngestionStatus = core.StatusPending
	_ = e.store.PutResource(persistCtx, resource)

	e.mu.Lock()
	delete(e.active, resource.Source)
	e.mu.Unlock()

	select {
	case e.queue <- job:
	default:
		e.log.Warn("queue full on cancellation re-enqueue", "job_id", job.ID)
	}
}

func (e *Engine) handleStageError(ctx context.Context, job *core.IngestionJob, resource *core.Resource, err error) {
	if apperr.IsRetryable(err) && job.AttemptCount < e.cfg.MaxAttempts {
		job.LastError = err.Error()
		_ = e.store.PutIngestionJob(ctx, job)
		metrics.RecordStageRetry(stageFromError(err))
		e.requeueAfter(job, e.backoffDelay(job.AttemptCount))
		return
	}

	job.State = core.StatusFailed
	job.LastError = err.Error()
	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	_ = e.store.PutIngestionJob(ctx, job)

	resource.IngestionStatus = core.StatusFailed
	_ = e.store.PutResource(ctx, resource)

	e.mu.Lock()
	delete(e.active, resource.Source)
	e.mu.Unlock()

	metrics.RecordJobFailed()
	e.bus.Publish(events.Event{Name: events.ResourceFailed, ResourceID: resource.ID})
}

// stageFromError reports the classifier kind as the metric label when a
// more specific stage name isn't available at this call site; callers
// closer to a specific stage (e.g. the enrichment pipeline) label their
// own degradable failures directly via metrics.RecordStageDegraded.
func stageFromError(err error) string {
	kind, ok := apperr.ClassifyKind(err)
	if !ok {
		return "unknown"
	}
	return string(kind)
}

// backoffDelay computes base*2^(attempt-1) plus up to 50% random jitter,
// capped at MaxBackoff. The cenkalti/backoff ExponentialBackOff only holds
// the policy's parameters (initial interval, multiplier, randomization
// factor, max interval); the delay itself is computed here from them.
func (e *Engine) backoffDelay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.BackoffBase
	bo.MaxInterval = e.cfg.MaxBackoff
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.5

	delay := bo.InitialInterval
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * bo.Multiplier)
		if delay > bo.MaxInterval {
			delay = bo.MaxInterval
			break
		}
	}
	jitter := time.Duration(rand.Float64() * bo.RandomizationFactor * float64(delay))
	delay += jitter
	if delay > bo.MaxInterval {
		delay = bo.MaxInterval
	}
	return delay
}

func (e *Engine) requeueAfter(job *core.IngestionJob, delay time.Duration) {
	time.AfterFunc(delay, func() {
		select {
		case e.queue <- job:
		case <-e.stopCh:
		}
	})
}
