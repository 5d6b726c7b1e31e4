// package catalog defines interface Client for querying external music catalogs
//
// Spotify (primary), MusicBrainz (community), Deezer (fallback)
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

// Client defines the interface for catalog sources consulted during reconciliation.
type Client interface {
	// Source returns the catalog identity used in merge provenance.
	Source() models.Source

	// Search finds release candidates for an artist and release name.
	// The country code is optional and may be empty.
	Search(ctx context.Context, artist, release, country string) ([]Candidate, error)

	// FetchDetails retrieves the full release record for a search candidate.
	FetchDetails(ctx context.Context, id string) (*models.CatalogResult, error)

	// Close releases client resources. Safe to call multiple times.
	Close() error
}

// Candidate is a single search hit prior to detail retrieval.
type Candidate struct {
	ID       string
	Artist   string
	Title    string
	Country  string
	Official bool
}

const (
	defaultTimeout = 10 * time.Second

	maxAttempts   = 3
	backoffStart  = time.Second
	backoffFactor = 2
)

func retryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doWithRetry performs an idempotent GET with exponential backoff.
//
// Transport errors and retryable 5xx statuses consume an attempt; 429
// responses honor Retry-After without counting against the attempt cap.
// The caller owns the response body when the returned error is nil.
func doWithRetry(ctx context.Context, client *http.Client, backoff time.Duration, build func() (*http.Request, error)) (*http.Response, error) {
	if backoff <= 0 {
		backoff = backoffStart
	}

	attempt := 0
	for {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return nil, ctxErr
			}
			attempt++
			if attempt >= maxAttempts {
				return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
			}
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= backoffFactor
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := retryAfter(resp)
			resp.Body.Close()
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
			continue

		case retryableStatus(resp.StatusCode):
			resp.Body.Close()
			attempt++
			if attempt >= maxAttempts {
				return nil, fmt.Errorf("%w: status %d", shared.ErrSourceUnavailable, resp.StatusCode)
			}
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= backoffFactor
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", shared.ErrAuthFailed, resp.StatusCode)

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", shared.ErrSourceUnavailable, resp.StatusCode)
		}

		return resp, nil
	}
}

// retryAfter reads the Retry-After header in seconds, defaulting to one second.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return contextError(ctx)
	}
}

func contextError(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
	case context.Canceled:
		return fmt.Errorf("%w: %v", shared.ErrCancelled, ctx.Err())
	}
	return nil
}
