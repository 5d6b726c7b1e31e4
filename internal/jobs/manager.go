// package jobs manages asynchronous reconciliation jobs
//
// The [Manager] accepts release queries, deduplicates concurrent
// submissions by fingerprint, runs reconciliations in the background,
// and persists job state through a [JobStore]. A cache lease keeps
// at most one reconciliation per fingerprint running across processes;
// a submitter that loses the lease attaches to the winner's cached
// result instead of issuing its own catalog calls.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"tonearm/internal/cache"
	"tonearm/internal/models"
	"tonearm/internal/shared"
)

const (
	defaultRunTimeout = 30 * time.Second
	defaultResultTTL  = 24 * time.Hour
	defaultErrorTTL   = 10 * time.Minute

	// attachInterval is how often a lease-losing job polls the result
	// cache for the winner's record.
	attachInterval = 250 * time.Millisecond
)

// Reconciler runs a release lookup across the configured catalogs.
type Reconciler interface {
	Reconcile(ctx context.Context, query models.Query) (*models.CanonicalRecord, error)
}

// ManagerOpts configures a [Manager]. Zero durations fall back to defaults,
// and a nil logger falls back to the package default.
type ManagerOpts struct {
	Store      *JobStore
	Cache      cache.Store
	Reconciler Reconciler
	Logger     *log.Logger

	RunTimeout time.Duration
	ResultTTL  time.Duration
	ErrorTTL   time.Duration
}

// Manager coordinates job submission, polling, and cancellation.
type Manager struct {
	store      *JobStore
	cache      cache.Store
	reconciler Reconciler
	logger     *log.Logger

	runTimeout time.Duration
	resultTTL  time.Duration
	errorTTL   time.Duration

	mu       sync.Mutex
	inflight map[string]string             // fingerprint to job ID
	cancels  map[string]context.CancelFunc // job ID to cancel func
	wg       sync.WaitGroup
}

// NewManager builds a manager from opts.
func NewManager(opts ManagerOpts) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	m := &Manager{
		store:      opts.Store,
		cache:      opts.Cache,
		reconciler: opts.Reconciler,
		logger:     shared.WithLogger(logger, "component", "jobs"),
		runTimeout: opts.RunTimeout,
		resultTTL:  opts.ResultTTL,
		errorTTL:   opts.ErrorTTL,
		inflight:   make(map[string]string),
		cancels:    make(map[string]context.CancelFunc),
	}

	if m.runTimeout <= 0 {
		m.runTimeout = defaultRunTimeout
	}
	if m.resultTTL <= 0 {
		m.resultTTL = defaultResultTTL
	}
	if m.errorTTL <= 0 {
		m.errorTTL = defaultErrorTTL
	}
	return m
}

// Submit registers a reconciliation job for a query.
//
// A cached result yields an immediately completed job, and a submission
// whose fingerprint is already in flight returns the existing job instead
// of starting another reconciliation. Cache backend failures are returned
// to the caller rather than absorbed.
func (m *Manager) Submit(ctx context.Context, query models.Query) (*models.Job, error) {
	if query.Artist == "" || query.Release == "" {
		return nil, fmt.Errorf("%w: artist_name and release_name are required", shared.ErrInvalidInput)
	}

	fingerprint := cache.Fingerprint(query)

	record, ok, err := cache.GetRecord(ctx, m.cache, fingerprint)
	if err != nil {
		return nil, err
	}
	if ok {
		return m.createTerminal(ctx, fingerprint, record, nil)
	}

	if data, found, err := m.cache.Get(ctx, cache.ErrorKey(fingerprint)); err == nil && found {
		jobErr := &models.JobError{Kind: models.ErrorKindNotFound, Message: string(data)}
		return m.createTerminal(ctx, fingerprint, nil, jobErr)
	}

	m.mu.Lock()
	if id, busy := m.inflight[fingerprint]; busy {
		m.mu.Unlock()
		return m.store.Get(ctx, id)
	}

	// Submissions from before a restart survive in the store even though
	// the inflight map starts empty.
	existing, err := m.store.FindActive(ctx, fingerprint)
	if err == nil {
		m.mu.Unlock()
		return existing, nil
	}
	if !errors.Is(err, shared.ErrJobNotFound) {
		m.mu.Unlock()
		return nil, err
	}

	job := &models.Job{
		ID:          shared.GenerateID(),
		Fingerprint: fingerprint,
		State:       models.JobPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.store.Create(ctx, job); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.inflight[fingerprint] = job.ID
	m.cancels[job.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx, job.ID, fingerprint, query)

	return job, nil
}

// Poll returns the current state of a job without blocking. Unknown IDs
// yield [shared.ErrJobNotFound].
func (m *Manager) Poll(ctx context.Context, id string) (*models.Job, error) {
	return m.store.Get(ctx, id)
}

// Cancel requests best-effort cancellation of a job. Terminal jobs are
// returned unchanged; a result arriving after cancellation is discarded.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}

	m.mu.Lock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}
	m.mu.Unlock()

	if _, err := m.store.Fail(ctx, id, models.ErrorKindCancelled, "cancelled by request"); err != nil {
		return nil, err
	}
	return m.store.Get(ctx, id)
}

// Prune removes terminal jobs older than the retention window.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return m.store.PruneTerminal(ctx, retention)
}

// Shutdown cancels every in-flight job and waits for their goroutines.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) createTerminal(ctx context.Context, fingerprint string, record *models.CanonicalRecord, jobErr *models.JobError) (*models.Job, error) {
	now := time.Now().UTC()
	state := models.JobCompleted
	if jobErr != nil {
		state = models.JobFailed
	}

	job := &models.Job{
		ID:          shared.GenerateID(),
		Fingerprint: fingerprint,
		State:       state,
		Result:      record,
		Error:       jobErr,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (m *Manager) run(ctx context.Context, jobID, fingerprint string, query models.Query) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		if m.inflight[fingerprint] == jobID {
			delete(m.inflight, fingerprint)
		}
		delete(m.cancels, jobID)
		m.mu.Unlock()
	}()

	started, err := m.store.MarkRunning(context.Background(), jobID)
	if err != nil {
		m.logger.Error("failed to start job", "job_id", jobID, "error", err)
		return
	}
	if !started {
		// Cancelled before the goroutine could start.
		return
	}

	leaseKey := cache.LeaseKey(fingerprint)
	leased, err := m.cache.AcquireLease(ctx, leaseKey, m.runTimeout)
	if err != nil {
		m.logger.Error("failed to acquire lease", "job_id", jobID, "error", err)
		if _, serr := m.store.Fail(context.Background(), jobID, models.ErrorKindCacheUnavailable, "failed to acquire reconciliation lease"); serr != nil {
			m.logger.Error("failed to record job failure", "job_id", jobID, "error", serr)
		}
		return
	}

	if !leased {
		m.attach(ctx, jobID, fingerprint)
		return
	}
	defer func() {
		if err := m.cache.ReleaseLease(context.Background(), leaseKey); err != nil {
			m.logger.Warn("failed to release lease", "fingerprint", fingerprint, "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, m.runTimeout)
	defer cancel()

	record, err := m.reconciler.Reconcile(runCtx, query)
	if err != nil {
		m.fail(jobID, fingerprint, err)
		return
	}

	if err := cache.PutRecord(context.Background(), m.cache, fingerprint, record, m.resultTTL); err != nil {
		m.logger.Error("failed to cache result", "job_id", jobID, "error", err)
		if _, err := m.store.Fail(context.Background(), jobID, models.ErrorKindCacheUnavailable, "failed to store reconciliation result"); err != nil {
			m.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
		}
		return
	}

	if _, err := m.store.Complete(context.Background(), jobID, record); err != nil {
		m.logger.Error("failed to complete job", "job_id", jobID, "error", err)
	}
}

// attach waits for another process holding the lease to publish its result,
// completing the local job from the cache instead of reconciling again.
func (m *Manager) attach(ctx context.Context, jobID, fingerprint string) {
	ticker := time.NewTicker(attachInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(m.runTimeout)
	defer deadline.Stop()

	for {
		record, ok, err := cache.GetRecord(context.Background(), m.cache, fingerprint)
		if err == nil && ok {
			if _, err := m.store.Complete(context.Background(), jobID, record); err != nil {
				m.logger.Error("failed to complete job", "job_id", jobID, "error", err)
			}
			return
		}

		if data, found, err := m.cache.Get(context.Background(), cache.ErrorKey(fingerprint)); err == nil && found {
			if _, err := m.store.Fail(context.Background(), jobID, models.ErrorKindNotFound, string(data)); err != nil {
				m.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			m.fail(jobID, fingerprint, fmt.Errorf("%w: %v", shared.ErrCancelled, context.Cause(ctx)))
			return
		case <-deadline.C:
			m.fail(jobID, fingerprint, shared.ErrTimeout)
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) fail(jobID, fingerprint string, err error) {
	kind := models.ErrorKindInternal
	switch {
	case errors.Is(err, shared.ErrReleaseNotFound):
		kind = models.ErrorKindNotFound
	case errors.Is(err, shared.ErrTimeout):
		kind = models.ErrorKindTimeout
	case errors.Is(err, shared.ErrCancelled):
		kind = models.ErrorKindCancelled
	case errors.Is(err, shared.ErrCacheUnavailable):
		kind = models.ErrorKindCacheUnavailable
	}

	if kind == models.ErrorKindNotFound {
		// Cache the miss briefly so repeated submissions for an unknown
		// release do not hammer the catalogs.
		if cerr := m.cache.Put(context.Background(), cache.ErrorKey(fingerprint), []byte(err.Error()), m.errorTTL); cerr != nil {
			m.logger.Warn("failed to cache negative result", "fingerprint", fingerprint, "error", cerr)
		}
	}

	if _, serr := m.store.Fail(context.Background(), jobID, kind, err.Error()); serr != nil {
		m.logger.Error("failed to record job failure", "job_id", jobID, "error", serr)
	}
}
