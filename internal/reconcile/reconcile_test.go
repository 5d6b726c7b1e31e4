package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tonearm/internal/cache"
	"tonearm/internal/catalog"
	"tonearm/internal/models"
	"tonearm/internal/shared"
)

// stubCatalog is a deterministic catalog.Client double.
type stubCatalog struct {
	source      models.Source
	candidates  []catalog.Candidate
	result      *models.CatalogResult
	searchErr   error
	detailsErr  error
	block       bool
	searchCalls atomic.Int32
	fetchCalls  atomic.Int32
}

func (s *stubCatalog) Source() models.Source { return s.source }

func (s *stubCatalog) Search(ctx context.Context, artist, release, country string) ([]catalog.Candidate, error) {
	s.searchCalls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.candidates, nil
}

func (s *stubCatalog) FetchDetails(ctx context.Context, id string) (*models.CatalogResult, error) {
	s.fetchCalls.Add(1)
	if s.detailsErr != nil {
		return nil, s.detailsErr
	}
	return s.result, nil
}

func (s *stubCatalog) Close() error { return nil }

func matchingCandidate(id string) []catalog.Candidate {
	return []catalog.Candidate{{ID: id, Artist: "Gojira", Title: "Fortitude", Country: "FR", Official: true}}
}

func completeResult(source models.Source) *models.CatalogResult {
	isrc := "FR-XXX-00-00001"
	return &models.CatalogResult{
		Source: source,
		Artist: "Gojira",
		Title:  "Fortitude",
		Tracks: []models.Track{{Position: 1, Title: "Title A", ISRC: &isrc}},
	}
}

func gapResult(source models.Source) *models.CatalogResult {
	return &models.CatalogResult{
		Source: source,
		Artist: "Gojira",
		Title:  "Fortitude",
		Tracks: []models.Track{{Position: 1, Title: "Title A"}},
	}
}

var testQuery = models.Query{Artist: "Gojira", Release: "Fortitude", Country: "FR"}

func TestOrchestrator(t *testing.T) {
	t.Run("fallback skipped when primary is complete", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary, candidates: matchingCandidate("p1"), result: completeResult(models.SourcePrimary)}
		community := &stubCatalog{source: models.SourceCommunity, candidates: matchingCandidate("c1"), result: completeResult(models.SourceCommunity)}
		fallback := &stubCatalog{source: models.SourceFallback}

		o := NewOrchestrator(primary, community, fallback, Options{})
		record, err := o.Reconcile(context.Background(), testQuery)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if fallback.searchCalls.Load() != 0 {
			t.Error("expected fallback to be skipped")
		}
		if community.searchCalls.Load() != 1 {
			t.Error("expected community to be consulted")
		}
		if record.SourcesUsed[0] != models.SourcePrimary {
			t.Errorf("expected primary base, got %v", record.SourcesUsed)
		}
	})

	t.Run("fallback invoked when primary absent", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary, searchErr: shared.ErrSourceUnavailable}
		community := &stubCatalog{source: models.SourceCommunity, candidates: matchingCandidate("c1"), result: completeResult(models.SourceCommunity)}
		fallback := &stubCatalog{source: models.SourceFallback, candidates: matchingCandidate("f1"), result: completeResult(models.SourceFallback)}

		o := NewOrchestrator(primary, community, fallback, Options{})
		record, err := o.Reconcile(context.Background(), testQuery)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if fallback.searchCalls.Load() != 1 {
			t.Error("expected fallback to be consulted")
		}
		// Base comes from the fallback catalog when the primary is out.
		if record.SourcesUsed[len(record.SourcesUsed)-1] != models.SourceFallback {
			t.Errorf("unexpected sources: %v", record.SourcesUsed)
		}
	})

	t.Run("fallback invoked for ISRC gaps and backfills", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary, candidates: matchingCandidate("p1"), result: gapResult(models.SourcePrimary)}
		fallback := &stubCatalog{source: models.SourceFallback, candidates: matchingCandidate("f1"), result: completeResult(models.SourceFallback)}

		o := NewOrchestrator(primary, nil, fallback, Options{})
		record, err := o.Reconcile(context.Background(), testQuery)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if fallback.searchCalls.Load() != 1 {
			t.Error("expected fallback to be consulted for ISRC gaps")
		}
		if record.Tracks[0].ISRC == nil || *record.Tracks[0].ISRC != "FR-XXX-00-00001" {
			t.Errorf("expected backfilled ISRC, got %v", record.Tracks[0].ISRC)
		}
	})

	t.Run("auth failure absorbed as source miss", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary, searchErr: fmt.Errorf("%w: bad credentials", shared.ErrAuthFailed)}
		community := &stubCatalog{source: models.SourceCommunity, candidates: matchingCandidate("c1"), result: completeResult(models.SourceCommunity)}

		o := NewOrchestrator(primary, community, nil, Options{})
		record, err := o.Reconcile(context.Background(), testQuery)
		if err != nil {
			t.Fatalf("expected community result despite primary auth failure, got %v", err)
		}
		if record.SourcesUsed[0] != models.SourceCommunity {
			t.Errorf("expected community base, got %v", record.SourcesUsed)
		}
	})

	t.Run("not found when all sources empty", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary}
		community := &stubCatalog{source: models.SourceCommunity}
		fallback := &stubCatalog{source: models.SourceFallback}

		o := NewOrchestrator(primary, community, fallback, Options{})
		_, err := o.Reconcile(context.Background(), testQuery)
		if !errors.Is(err, shared.ErrReleaseNotFound) {
			t.Errorf("expected ErrReleaseNotFound, got %v", err)
		}
	})

	t.Run("no loose match is not found", func(t *testing.T) {
		primary := &stubCatalog{
			source:     models.SourcePrimary,
			candidates: []catalog.Candidate{{ID: "x", Artist: "Unrelated", Title: "Nothing Alike"}},
		}

		o := NewOrchestrator(primary, nil, nil, Options{})
		_, err := o.Reconcile(context.Background(), testQuery)
		if !errors.Is(err, shared.ErrReleaseNotFound) {
			t.Errorf("expected ErrReleaseNotFound, got %v", err)
		}
		if primary.fetchCalls.Load() != 0 {
			t.Error("expected no detail fetch without a candidate match")
		}
	})

	t.Run("outer deadline yields timeout", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary, block: true}
		community := &stubCatalog{source: models.SourceCommunity, block: true}

		o := NewOrchestrator(primary, community, nil, Options{Timeout: 20 * time.Millisecond})
		_, err := o.Reconcile(context.Background(), testQuery)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("per-source memoization avoids repeat lookups", func(t *testing.T) {
		primary := &stubCatalog{source: models.SourcePrimary, candidates: matchingCandidate("p1"), result: completeResult(models.SourcePrimary)}

		store := cache.NewMemory()
		o := NewOrchestrator(primary, nil, nil, Options{Store: store, ReleaseTTL: time.Minute})

		for i := 0; i < 2; i++ {
			if _, err := o.Reconcile(context.Background(), testQuery); err != nil {
				t.Fatalf("expected success, got %v", err)
			}
		}

		if primary.searchCalls.Load() != 1 {
			t.Errorf("expected a single upstream lookup, got %d", primary.searchCalls.Load())
		}
	})

	t.Run("search candidates memoized independently of details", func(t *testing.T) {
		primary := &stubCatalog{
			source:     models.SourcePrimary,
			candidates: matchingCandidate("p1"),
			detailsErr: fmt.Errorf("%w: detail endpoint down", shared.ErrSourceUnavailable),
		}

		store := cache.NewMemory()
		o := NewOrchestrator(primary, nil, nil, Options{Store: store, SearchTTL: time.Minute, ReleaseTTL: time.Minute})

		for i := 0; i < 2; i++ {
			if _, err := o.Reconcile(context.Background(), testQuery); !errors.Is(err, shared.ErrReleaseNotFound) {
				t.Fatalf("expected ErrReleaseNotFound, got %v", err)
			}
		}

		if primary.searchCalls.Load() != 1 {
			t.Errorf("expected cached candidates on retry, got %d searches", primary.searchCalls.Load())
		}
		if primary.fetchCalls.Load() != 2 {
			t.Errorf("expected details retried each run, got %d", primary.fetchCalls.Load())
		}
	})
}
