// Package enrichment implements the analyzer DAG of spec.md §4.6: Parse
// and Archive run as mandatory serial stages, Summarize/Tag/Classify/Dense
// embed/Sparse embed/Extract citations/Scholarly extract run concurrently,
// and Quality score runs last. Grounded on the teacher's
// internal/pipeline/pipeline.go staged orchestration and the per-concern
// analyzer packages it wires (internal/fetch, internal/tags,
// internal/citations, internal/quality).
package enrichment

import (
	"context"
	"io"
	"net/http"
	"time"

	"neoalexandria/internal/apperr"
	"neoalexandria/internal/ingestion"
)

// HTTPFetcher implements ingestion.Fetcher against net/http, the same
// plain http.Get-and-read-all approach as the teacher's
// internal/fetch.FetchArticle, generalized to return raw bytes plus
// content-type instead of populating an Article directly.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with a client timeout, since the
// per-stage fetch timeout is also enforced by the caller's context but a
// belt-and-suspenders client-level timeout avoids a hung dial outliving
// ctx cancellation on some transports.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*ingestion.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Validation("malformed fetch request", err)
	}
	req.Header.Set("User-Agent", "neoalexandria/1.0 (+resource ingestion)")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Transient("fetch request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, apperr.Transient("fetch returned server error", nil)
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.Validation("fetch returned client error", nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient("failed to read fetch response body", err)
	}

	return &ingestion.FetchResult{RawBytes: body, ContentType: resp.Header.Get("Content-Type")}, nil
}
