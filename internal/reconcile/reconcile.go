// package reconcile implements the multi-source release reconciliation engine.
//
// The Orchestrator consults the primary and community catalogs concurrently,
// falls back to the fallback catalog when the primary comes up short, and
// merges the results into a single canonical record. Individual source
// failures degrade the result instead of failing the run.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"tonearm/internal/cache"
	"tonearm/internal/catalog"
	"tonearm/internal/models"
	"tonearm/internal/shared"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultSourceTimeout = 10 * time.Second
)

// Options configures an Orchestrator.
type Options struct {
	// Timeout bounds a whole reconciliation run.
	Timeout time.Duration

	// SourceTimeout bounds each catalog request pair (search + details).
	SourceTimeout time.Duration

	// Store memoizes per-source search candidates and release details
	// between runs. Optional; failures here are logged and absorbed,
	// never fatal.
	Store cache.Store

	// SearchTTL is the per-source search candidate memoization TTL.
	SearchTTL time.Duration

	// ReleaseTTL is the per-source release details memoization TTL.
	ReleaseTTL time.Duration

	Logger *log.Logger
}

// Orchestrator coordinates catalog lookups and merging for one query.
type Orchestrator struct {
	primary   catalog.Client
	community catalog.Client
	fallback  catalog.Client

	store         cache.Store
	timeout       time.Duration
	sourceTimeout time.Duration
	searchTTL     time.Duration
	releaseTTL    time.Duration
	logger        *log.Logger
}

// NewOrchestrator wires the three catalog clients. Any client may be nil,
// in which case that source is simply never consulted.
func NewOrchestrator(primary, community, fallback catalog.Client, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = defaultSourceTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Orchestrator{
		primary:       primary,
		community:     community,
		fallback:      fallback,
		store:         opts.Store,
		timeout:       opts.Timeout,
		sourceTimeout: opts.SourceTimeout,
		searchTTL:     opts.SearchTTL,
		releaseTTL:    opts.ReleaseTTL,
		logger:        shared.WithLogger(opts.Logger, "component", "reconcile"),
	}
}

// Reconcile resolves a query into a canonical record.
//
// The primary and community catalogs are consulted concurrently. The
// fallback catalog is consulted only when the primary yields nothing or its
// tracks are missing ISRCs. When no source yields a usable release the run
// fails with [shared.ErrReleaseNotFound], or with [shared.ErrTimeout] /
// [shared.ErrCancelled] when the deadline cut the run short.
func (o *Orchestrator) Reconcile(ctx context.Context, q models.Query) (*models.CanonicalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	fingerprint := cache.Fingerprint(q)

	var primaryRes, communityRes, fallbackRes *models.CatalogResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		primaryRes = o.lookup(gctx, o.primary, q, fingerprint)
		return nil
	})
	g.Go(func() error {
		communityRes = o.lookup(gctx, o.community, q, fingerprint)
		return nil
	})
	g.Wait()

	if o.fallback != nil && (primaryRes == nil || missingISRCs(primaryRes.Tracks)) {
		fallbackRes = o.lookup(ctx, o.fallback, q, fingerprint)
	}

	record := Merge(primaryRes, communityRes, fallbackRes)
	if record == nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: reconciliation deadline exceeded", shared.ErrTimeout)
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, fmt.Errorf("%w: reconciliation cancelled", shared.ErrCancelled)
		}
		return nil, fmt.Errorf("%w: %s - %s", shared.ErrReleaseNotFound, q.Artist, q.Release)
	}

	o.logger.Info("reconciled release", "artist", record.Artist, "release", record.Release, "sources", record.SourcesUsed)
	return record, nil
}

// lookup runs search, candidate selection, and detail retrieval against one
// catalog. All failures are absorbed into a nil result.
func (o *Orchestrator) lookup(ctx context.Context, client catalog.Client, q models.Query, fingerprint string) *models.CatalogResult {
	if client == nil {
		return nil
	}
	logger := shared.WithLogger(o.logger, "source", client.Source())

	if cached := o.cachedResult(ctx, client.Source(), fingerprint, logger); cached != nil {
		return cached
	}

	candidates := o.cachedCandidates(ctx, client.Source(), fingerprint, logger)
	if candidates == nil {
		searchCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
		defer cancel()

		var err error
		candidates, err = client.Search(searchCtx, q.Artist, q.Release, q.Country)
		if err != nil {
			o.absorb(logger, "search", err)
			return nil
		}
		o.storeCandidates(ctx, client.Source(), fingerprint, candidates, logger)
	}

	candidate, ok := catalog.SelectCandidate(candidates, q.Artist, q.Release, q.Country)
	if !ok {
		logger.Info("no matching candidate", "candidates", len(candidates))
		return nil
	}

	detailCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
	defer cancel()

	result, err := client.FetchDetails(detailCtx, candidate.ID)
	if err != nil {
		o.absorb(logger, "details", err)
		return nil
	}

	o.storeResult(ctx, client.Source(), fingerprint, result, logger)
	return result
}

func (o *Orchestrator) cachedCandidates(ctx context.Context, source models.Source, fingerprint string, logger *log.Logger) []catalog.Candidate {
	if o.store == nil {
		return nil
	}

	data, ok, err := o.store.Get(ctx, cache.SearchKey(source, fingerprint))
	if err != nil {
		logger.Warn("search cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var candidates []catalog.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		logger.Warn("search cache entry corrupt", "error", err)
		return nil
	}
	if candidates == nil {
		candidates = []catalog.Candidate{}
	}
	return candidates
}

func (o *Orchestrator) storeCandidates(ctx context.Context, source models.Source, fingerprint string, candidates []catalog.Candidate, logger *log.Logger) {
	if o.store == nil {
		return
	}

	data, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	if err := o.store.Put(ctx, cache.SearchKey(source, fingerprint), data, o.searchTTL); err != nil {
		logger.Warn("search cache write failed", "error", err)
	}
}

func (o *Orchestrator) cachedResult(ctx context.Context, source models.Source, fingerprint string, logger *log.Logger) *models.CatalogResult {
	if o.store == nil {
		return nil
	}

	data, ok, err := o.store.Get(ctx, cache.ReleaseKey(source, fingerprint))
	if err != nil {
		logger.Warn("source cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var result models.CatalogResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warn("source cache entry corrupt", "error", err)
		return nil
	}
	return &result
}

func (o *Orchestrator) storeResult(ctx context.Context, source models.Source, fingerprint string, result *models.CatalogResult, logger *log.Logger) {
	if o.store == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.store.Put(ctx, cache.ReleaseKey(source, fingerprint), data, o.releaseTTL); err != nil {
		logger.Warn("source cache write failed", "error", err)
	}
}

// absorb logs a source failure without propagating it. Authentication
// failures are logged at error level so credential problems stand out from
// transient outages.
func (o *Orchestrator) absorb(logger *log.Logger, op string, err error) {
	if errors.Is(err, shared.ErrAuthFailed) {
		logger.Error("authentication failure", "op", op, "error", err)
		return
	}
	logger.Warn("source lookup failed", "op", op, "error", err)
}

// missingISRCs reports whether any track lacks an ISRC.
func missingISRCs(tracks []models.Track) bool {
	for _, t := range tracks {
		if t.ISRC == nil {
			return true
		}
	}
	return false
}
