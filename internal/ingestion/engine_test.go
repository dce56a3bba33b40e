package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/core"
	"neoalexandria/internal/events"
	"neoalexandria/internal/store"
)

func testConfig() Config {
	return Config{
		WorkerPoolSize:         3,
		MaxAttempts:            3,
		BackoffBase:            10 * time.Millisecond,
		MaxBackoff:             50 * time.Millisecond,
		FetchTimeout:           time.Second,
		FingerprintLockTimeout: time.Second,
		QueueCapacity:          32,
	}
}

func newTestEngine(t *testing.T, fetcher Fetcher, enricher Enricher) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	e := NewEngine(testConfig(), st, fetcher, enricher, events.NewBus(), nil)
	t.Cleanup(e.Stop)
	return e, st
}

// fixedFetcher always returns the same bytes for any URL.
type fixedFetcher struct {
	body []byte
	err  error
	hits int32
}

func (f *fixedFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	atomic.AddInt32(&f.hits, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &FetchResult{RawBytes: f.body, ContentType: "text/html"}, nil
}

// slowFetcher blocks past the caller's context deadline on its first N
// calls (simulating a slow upstream), then returns normally.
type slowFetcher struct {
	body      []byte
	slowCalls int32
	calls     int32
}

func (f *slowFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.slowCalls {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &FetchResult{RawBytes: f.body, ContentType: "text/html"}, nil
}

// noopEnricher marks every resource completed without doing anything else.
type noopEnricher struct{}

func (noopEnricher) Enrich(ctx context.Context, resource *core.Resource, raw *FetchResult) error {
	resource.Title = "enriched"
	return nil
}

// flakyEnricher fails the first N calls with a degradable-looking
// transient error, then succeeds — used to exercise retry without
// incrementing past MaxAttempts.
type flakyEnricher struct {
	failuresRemaining int32
}

func (f *flakyEnricher) Enrich(ctx context.Context, resource *core.Resource, raw *FetchResult) error {
	if atomic.AddInt32(&f.failuresRemaining, -1) >= 0 {
		return apperr.Transient("enrichment hiccup", nil)
	}
	resource.Title = "eventually enriched"
	return nil
}

// alwaysFailEnricher fails every call with a non-retryable error.
type alwaysFailEnricher struct{}

func (alwaysFailEnricher) Enrich(ctx context.Context, resource *core.Resource, raw *FetchResult) error {
	return apperr.Fatal("parser exploded", nil)
}

// blockingEnricher blocks until ctx is cancelled, for exercising S6.
type blockingEnricher struct{}

func (blockingEnricher) Enrich(ctx context.Context, resource *core.Resource, raw *FetchResult) error {
	<-ctx.Done()
	return ctx.Err()
}

func waitForStatus(t *testing.T, st store.Store, resourceID string, want core.IngestionStatus, timeout time.Duration) *core.Resource {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r, err := st.GetResource(context.Background(), resourceID)
		if err == nil && r.IngestionStatus == want {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("resource %s did not reach status %s within %s", resourceID, want, timeout)
	return nil
}

// TestConcurrentSubmissionDedupesToOneJob exercises S1 / invariant 3:
// submitting the same URL twice while the first is still in flight must
// not create a second resource.
func TestConcurrentSubmissionDedupesToOneJob(t *testing.T) {
	fetcher := &fixedFetcher{body: []byte("hello world")}
	e, st := newTestEngine(t, fetcher, noopEnricher{})

	var wg sync.WaitGroup
	results := make([]*SubmitResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Submit(context.Background(), "https://example.com/article?utm_source=x")
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if results[0] == nil || results[1] == nil {
		t.Fatal("expected both submissions to succeed")
	}
	if results[0].ResourceID != results[1].ResourceID {
		t.Errorf("expected both submissions to dedupe to the same resource, got %s and %s", results[0].ResourceID, results[1].ResourceID)
	}

	waitForStatus(t, st, results[0].ResourceID, core.StatusCompleted, 2*time.Second)

	all, err := st.ListResources(context.Background(), store.ListOptions{})
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one resource to be created, got %d", len(all))
	}
}

// TestDegradableRetrySucceedsAfterTransientFailures exercises S2: a
// transient enrichment error is retried, and the resource ends up
// completed with the enricher's output (its title) applied.
func TestDegradableRetrySucceedsAfterTransientFailures(t *testing.T) {
	fetcher := &fixedFetcher{body: []byte("hello world")}
	enricher := &flakyEnricher{failuresRemaining: 1}
	e, st := newTestEngine(t, fetcher, enricher)

	res, err := e.Submit(context.Background(), "https://example.com/flaky")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got := waitForStatus(t, st, res.ResourceID, core.StatusCompleted, 2*time.Second)
	if got.Title != "eventually enriched" {
		t.Errorf("expected resource to be enriched after retry, got title %q", got.Title)
	}
}

// TestPersistentFailureReachesFailedStateAfterMaxAttempts exercises the
// non-retryable / exhausted-retries failure path.
func TestPersistentFailureReachesFailedStateAfterMaxAttempts(t *testing.T) {
	fetcher := &fixedFetcher{body: []byte("hello world")}
	e, st := newTestEngine(t, fetcher, alwaysFailEnricher{})

	res, err := e.Submit(context.Background(), "https://example.com/broken")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitForStatus(t, st, res.ResourceID, core.StatusFailed, 2*time.Second)
}

// TestZeroByteFetchIsNonRetryableAfterAttemptsExhausted covers the
// boundary behavior where a fetch keeps returning 0 bytes: each attempt
// is treated as a transient error, and after MaxAttempts the resource
// lands on failed rather than retrying forever.
func TestZeroByteFetchIsNonRetryableAfterAttemptsExhausted(t *testing.T) {
	fetcher := &fixedFetcher{body: []byte{}}
	e, st := newTestEngine(t, fetcher, noopEnricher{})

	res, err := e.Submit(context.Background(), "https://example.com/empty")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitForStatus(t, st, res.ResourceID, core.StatusFailed, 2*time.Second)
}

// TestFetchTimeoutRetriesWithBackoffThenCompletes guards against a fetch
// deadline being misclassified as job cancellation: a fetch that exceeds
// FetchTimeout must count against MaxAttempts and retry with backoff,
// not roll back to pending forever (which would livelock the resource
// between pending/processing and never reach completed).
func TestFetchTimeoutRetriesWithBackoffThenCompletes(t *testing.T) {
	fetcher := &slowFetcher{body: []byte("hello world"), slowCalls: 1}
	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	st, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	e := NewEngine(cfg, st, fetcher, noopEnricher{}, events.NewBus(), nil)
	t.Cleanup(e.Stop)

	res, err := e.Submit(context.Background(), "https://example.com/slow")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got := waitForStatus(t, st, res.ResourceID, core.StatusCompleted, 2*time.Second)
	if got.Title != "enriched" {
		t.Errorf("expected resource to be enriched after the slow fetch retried, got title %q", got.Title)
	}

	job, err := st.GetIngestionJob(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("GetIngestionJob failed: %v", err)
	}
	if job.AttemptCount < 2 {
		t.Errorf("expected attempt_count >= 2 (one timed-out attempt plus the successful retry), got %d", job.AttemptCount)
	}
}

// TestCancellationRollsBackToPendingWithUnchangedAttemptCount exercises
// S6: a job cancelled mid-enrichment reverts to pending with its
// attempt_count restored to the pre-claim value, and a subsequent
// worker can re-claim and complete it.
func TestCancellationRollsBackToPendingWithUnchangedAttemptCount(t *testing.T) {
	fetcher := &fixedFetcher{body: []byte("hello world")}
	cfg := testConfig()
	cfg.WorkerPoolSize = 1

	st, err := store.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	e := NewEngine(cfg, st, fetcher, blockingEnricher{}, events.NewBus(), nil)

	res, err := e.Submit(context.Background(), "https://example.com/cancel-me")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitForStatus(t, st, res.ResourceID, core.StatusProcessing, time.Second)

	job, err := st.GetIngestionJob(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("GetIngestionJob failed: %v", err)
	}
	if job.AttemptCount != 1 {
		t.Fatalf("expected attempt_count 1 after claim, got %d", job.AttemptCount)
	}

	e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var rolledBack *core.Resource
	for time.Now().Before(deadline) {
		r, err := st.GetResource(context.Background(), res.ResourceID)
		if err == nil && r.IngestionStatus == core.StatusPending {
			rolledBack = r
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rolledBack == nil {
		t.Fatal("expected resource to roll back to pending after Stop cancels in-flight work")
	}

	job, err = st.GetIngestionJob(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("GetIngestionJob failed: %v", err)
	}
	if job.AttemptCount != 0 {
		t.Errorf("expected attempt_count restored to 0 after rollback, got %d", job.AttemptCount)
	}
}
