package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/cache"
	"github.com/snarg/stt-engine/internal/catalog"
	"github.com/snarg/stt-engine/internal/media"
	"github.com/snarg/stt-engine/internal/metrics"
	"github.com/snarg/stt-engine/internal/pricing"
	"github.com/snarg/stt-engine/internal/queue"
	"github.com/snarg/stt-engine/internal/transcribe"
)

// Archiver persists completed transcripts outside the in-memory job map.
// Archiving is best effort; a failed archive never fails the job.
type Archiver interface {
	Store(ctx context.Context, jobID string, res *transcribe.Result) error
}

// ProbeFunc extracts media characteristics from a file on disk.
type ProbeFunc func(ctx context.Context, path string) (*media.Info, error)

// PreprocessFunc converts a file into a form the provider accepts, returning
// the path to submit and a cleanup function for any temp output.
type PreprocessFunc func(ctx context.Context, path string, info *media.Info, desc catalog.Descriptor) (string, func(), error)

// Options configures an Engine. Zero values fall back to production defaults.
type Options struct {
	Catalog   *catalog.Catalog
	Providers map[string]transcribe.Provider
	Cache     cache.Store // nil disables result caching
	Queue     queue.Store // nil selects an in-memory queue
	Archive   Archiver    // nil disables transcript archiving

	Workers          int           // concurrent transcriptions, default 3
	RetryBudget      int           // retries after the first attempt, default 2
	RetryBaseDelay   time.Duration // backoff base, default 2s
	JobTimeout       time.Duration // wall clock budget per job, default 30m
	Retention        time.Duration // how long terminal jobs stay queryable, default 1h
	MaxFileSizeBytes int64         // global submission cap, default 2GiB
	CacheTTL         time.Duration // default 24h
	PollInterval     time.Duration // worker idle poll, default 250ms

	// Probe and Preprocess default to the ffprobe/ffmpeg implementations.
	// Tests swap them out.
	Probe      ProbeFunc
	Preprocess PreprocessFunc

	Log zerolog.Logger
}

const (
	defaultWorkers        = 3
	defaultRetryBudget    = 2
	defaultRetryBaseDelay = 2 * time.Second
	defaultJobTimeout     = 30 * time.Minute
	defaultRetention      = time.Hour
	defaultMaxFileSize    = 2 << 30
	defaultCacheTTL       = 24 * time.Hour
	defaultPollInterval   = 250 * time.Millisecond
)

// Engine is the transcription scheduler: it validates and prices submissions,
// routes them to a provider, runs a bounded worker pool against the queue
// store, and tracks every job to a terminal state.
type Engine struct {
	opts    Options
	catalog *catalog.Catalog
	pricing *pricing.Calculator
	store   queue.Store
	usage   usageTracker
	log     zerolog.Logger

	mu        sync.RWMutex
	jobs      map[string]*Job   // by job ID
	byRequest map[string]string // request ID → job ID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine. Start must be called before submissions are processed.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if len(opts.Providers) == 0 {
		return nil, fmt.Errorf("engine: no providers configured")
	}
	// Selection only ever considers providers with a configured adapter;
	// descriptors without one would accept jobs that can never run.
	names := make([]string, 0, len(opts.Providers))
	for name := range opts.Providers {
		names = append(names, name)
	}
	opts.Catalog = opts.Catalog.Restrict(names...)
	if opts.Catalog.Len() == 0 {
		return nil, fmt.Errorf("engine: no configured provider is in the catalog")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.RetryBudget < 0 {
		opts.RetryBudget = defaultRetryBudget
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.MaxFileSizeBytes <= 0 {
		opts.MaxFileSizeBytes = defaultMaxFileSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Queue == nil {
		opts.Queue = queue.NewMemoryStore(opts.JobTimeout + 5*time.Minute)
	}
	if opts.Probe == nil {
		opts.Probe = media.Probe
	}
	if opts.Preprocess == nil {
		opts.Preprocess = media.EnsureCompatible
	}

	return &Engine{
		opts:      opts,
		catalog:   opts.Catalog,
		pricing:   pricing.NewCalculator(opts.Catalog),
		store:     opts.Queue,
		log:       opts.Log.With().Str("component", "engine").Logger(),
		jobs:      make(map[string]*Job),
		byRequest: make(map[string]string),
	}, nil
}

// Start launches the worker pool, the janitor, and the claim reaper.
func (e *Engine) Start() {
	e.ctx, e.cancel = context.WithCancel(context.Background())

	// Claims orphaned by a previous run become claimable again before the
	// workers start polling.
	if n, err := e.store.ReapExpired(e.ctx); err == nil && n > 0 {
		e.log.Warn().Int("reclaimed", n).Msg("recovered claims from previous run")
	}

	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.wg.Add(1)
	go e.janitor()

	e.log.Info().
		Int("workers", e.opts.Workers).
		Int("retry_budget", e.opts.RetryBudget).
		Dur("job_timeout", e.opts.JobTimeout).
		Str("queue", e.store.Type()).
		Msg("engine started")
}

// Stop halts the workers. In-flight provider calls are cancelled; their jobs
// stay claimed until the visibility timeout reaps them on the next run.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.log.Info().Msg("engine stopped")
}

// SubmitRequest describes one file to transcribe.
type SubmitRequest struct {
	Path         string
	ProviderHint string             // force a provider instead of automatic selection
	Options      transcribe.Options // passed through to the provider
	Criteria     catalog.Criteria   // narrows automatic selection
}

// Receipt is returned by Submit. For a cache hit the status is already
// Completed and the queue fields are zero.
type Receipt struct {
	RequestID       string  `json:"request_id"`
	JobID           string  `json:"job_id"`
	Status          Status  `json:"status"`
	Provider        string  `json:"provider"`
	EstimatedUSD    float64 `json:"estimated_usd"`
	EstimatedCredit int64   `json:"estimated_credits"`
	EstimatedMs     int64   `json:"estimated_processing_ms"`
	QueuePosition   int     `json:"queue_position"`
}

// Submit validates a file, resolves its provider, consults the result cache,
// and enqueues a job. Validation, selection, and unreadable-media errors are
// returned synchronously; everything downstream surfaces through GetStatus.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	st, err := os.Stat(req.Path)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("file not accessible: %v", err)}
	}
	if st.IsDir() {
		return nil, &ValidationError{Reason: "path is a directory"}
	}
	if st.Size() == 0 {
		return nil, &ValidationError{Reason: "file is empty"}
	}
	if st.Size() > e.opts.MaxFileSizeBytes {
		return nil, &ValidationError{Reason: fmt.Sprintf("file size %d exceeds limit %d", st.Size(), e.opts.MaxFileSizeBytes)}
	}

	info, err := e.opts.Probe(ctx, req.Path)
	if err != nil {
		return nil, err
	}

	providerName, desc, err := e.resolveProvider(req, info, st.Size())
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	jobID := uuid.NewString()
	now := time.Now()

	estUSD, _ := e.pricing.Estimate(info.DurationSeconds, providerName)

	var cacheKey string
	if e.opts.Cache != nil {
		cacheKey, err = cache.Key(req.Path, providerName, req.Options)
		if err != nil {
			// An unhashable file is treated as uncacheable, not fatal.
			e.log.Warn().Err(err).Str("path", req.Path).Msg("cache key failed")
			cacheKey = ""
		}
	}

	if cacheKey != "" {
		if res, ok, cerr := e.opts.Cache.Get(ctx, cacheKey); cerr != nil {
			e.log.Warn().Err(cerr).Msg("cache lookup failed, treating as miss")
		} else if ok {
			return e.completeFromCache(requestID, jobID, providerName, res, now), nil
		}
		metrics.CacheMissesTotal.Inc()
	}

	job := &Job{
		ID:            jobID,
		RequestID:     requestID,
		SourceFile:    req.Path,
		FileSizeBytes: st.Size(),
		Provider:      providerName,
		Options:       req.Options,
		Priority:      jobPriority(providerName, st.Size()),
		CacheKey:      cacheKey,
		Media:         info,
		CreatedAt:     now,
		status:        StatusQueued,
		progress:      progressProbed,
	}
	e.register(job)

	payload, err := json.Marshal(jobPayload{
		RequestID:     job.RequestID,
		SourceFile:    job.SourceFile,
		FileSizeBytes: job.FileSizeBytes,
		Provider:      job.Provider,
		Options:       job.Options,
		Priority:      job.Priority,
		CacheKey:      job.CacheKey,
		Media:         job.Media,
		CreatedAt:     job.CreatedAt,
	})
	if err != nil {
		e.unregister(job)
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	if err := e.store.Enqueue(ctx, queue.Item{
		JobID:      jobID,
		Priority:   job.Priority,
		Attempt:    1,
		EnqueuedAt: now,
		Payload:    payload,
	}); err != nil {
		e.unregister(job)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.JobsSubmittedTotal.Inc()
	pos, _ := e.store.Len(ctx)
	metrics.QueueDepth.Set(float64(pos))

	e.log.Info().
		Str("request_id", requestID).
		Str("job_id", jobID).
		Str("provider", providerName).
		Str("file", req.Path).
		Float64("duration_s", info.DurationSeconds).
		Float64("estimated_usd", estUSD).
		Msg("job submitted")

	return &Receipt{
		RequestID:       requestID,
		JobID:           jobID,
		Status:          StatusQueued,
		Provider:        providerName,
		EstimatedUSD:    estUSD,
		EstimatedCredit: pricing.Credits(estUSD),
		EstimatedMs:     estimateProcessingMs(info.DurationSeconds, desc.Quality, pos),
		QueuePosition:   pos,
	}, nil
}

func (e *Engine) resolveProvider(req SubmitRequest, info *media.Info, size int64) (string, catalog.Descriptor, error) {
	if req.ProviderHint != "" {
		desc, err := e.catalog.Get(req.ProviderHint)
		if err != nil {
			return "", catalog.Descriptor{}, &ValidationError{Reason: fmt.Sprintf("unknown provider %q", req.ProviderHint)}
		}
		if !desc.SupportsFormat(info.ContainerFormat) {
			return "", catalog.Descriptor{}, &ValidationError{
				Reason: fmt.Sprintf("provider %q does not accept format %q", desc.Name, info.ContainerFormat)}
		}
		if size > desc.MaxFileSizeBytes {
			return "", catalog.Descriptor{}, &ValidationError{
				Reason: fmt.Sprintf("file size %d exceeds provider %q limit %d", size, desc.Name, desc.MaxFileSizeBytes)}
		}
		return desc.Name, desc, nil
	}

	name, err := e.catalog.Select(info.ContainerFormat, size, info.DurationSeconds, req.Criteria)
	if err != nil {
		return "", catalog.Descriptor{}, err
	}
	desc, _ := e.catalog.Get(name)
	return name, desc, nil
}

// completeFromCache registers a terminal job carrying the cached result so
// GetStatus works uniformly for hits and misses.
func (e *Engine) completeFromCache(requestID, jobID, providerName string, res *transcribe.Result, now time.Time) *Receipt {
	cp := *res
	cp.Cached = true

	job := &Job{
		ID:        jobID,
		RequestID: requestID,
		Provider:  providerName,
		CreatedAt: now,
		status:    StatusCompleted,
		progress:  progressDone,
		result:    &cp,
	}
	job.finishedAt = now
	e.register(job)

	metrics.CacheHitsTotal.Inc()
	e.usage.recordCacheHit()
	e.log.Info().
		Str("request_id", requestID).
		Str("provider", providerName).
		Msg("served from cache")

	return &Receipt{
		RequestID: requestID,
		JobID:     jobID,
		Status:    StatusCompleted,
		Provider:  providerName,
	}
}

// GetStatus returns the current snapshot for a request.
func (e *Engine) GetStatus(requestID string) (*JobStatus, error) {
	e.mu.RLock()
	jobID, ok := e.byRequest[requestID]
	var job *Job
	if ok {
		job = e.jobs[jobID]
	}
	e.mu.RUnlock()

	if job == nil {
		return nil, ErrUnknownRequest
	}
	return job.snapshot(), nil
}

// CostEstimate prices a hypothetical transcription without touching the file.
type CostEstimate struct {
	Provider      string  `json:"provider"`
	BilledMinutes int     `json:"billed_minutes"`
	USD           float64 `json:"usd"`
	Credits       int64   `json:"credits"`
}

// EstimateCost prices a file by size and duration before submission. With no
// hint it applies the same selection policy as Submit, minus the format
// constraint (the format is unknown until probe time).
func (e *Engine) EstimateCost(fileSizeBytes int64, durationSeconds float64, providerHint string) (*CostEstimate, error) {
	name := providerHint
	if name == "" {
		var err error
		name, err = e.catalog.Select("", fileSizeBytes, durationSeconds, catalog.Criteria{})
		if err != nil {
			return nil, err
		}
	}
	usd, err := e.pricing.Estimate(durationSeconds, name)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown provider %q", name)}
	}
	return &CostEstimate{
		Provider:      name,
		BilledMinutes: pricing.BilledMinutes(durationSeconds),
		USD:           usd,
		Credits:       pricing.Credits(usd),
	}, nil
}

// Usage returns the aggregate billing snapshot since startup.
func (e *Engine) Usage() UsageSnapshot {
	return e.usage.snapshot()
}

// Stats summarizes scheduler state for the ops endpoint.
type Stats struct {
	Queued    int    `json:"queued"`
	Tracked   int    `json:"tracked_jobs"`
	Workers   int    `json:"workers"`
	QueueType string `json:"queue_type"`
}

func (e *Engine) StatsSnapshot(ctx context.Context) Stats {
	n, _ := e.store.Len(ctx)
	e.mu.RLock()
	tracked := len(e.jobs)
	e.mu.RUnlock()
	return Stats{Queued: n, Tracked: tracked, Workers: e.opts.Workers, QueueType: e.store.Type()}
}

func (e *Engine) register(j *Job) {
	e.mu.Lock()
	e.jobs[j.ID] = j
	e.byRequest[j.RequestID] = j.ID
	e.mu.Unlock()
}

func (e *Engine) unregister(j *Job) {
	e.mu.Lock()
	delete(e.jobs, j.ID)
	delete(e.byRequest, j.RequestID)
	e.mu.Unlock()
}

func (e *Engine) lookup(jobID string) *Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.jobs[jobID]
}

// jobPayload is what survives in the durable queue. A restarted engine
// rebuilds its Job record from this when it claims an item it has never seen.
type jobPayload struct {
	RequestID     string             `json:"request_id"`
	SourceFile    string             `json:"source_file"`
	FileSizeBytes int64              `json:"file_size_bytes"`
	Provider      string             `json:"provider"`
	Options       transcribe.Options `json:"options"`
	Priority      int                `json:"priority"`
	CacheKey      string             `json:"cache_key,omitempty"`
	Media         *media.Info        `json:"media"`
	CreatedAt     time.Time          `json:"created_at"`
}

// basePriorities favors the self-hosted endpoint; remote APIs share a tier.
var basePriorities = map[string]int{
	"whisper": 15,
}

const (
	defaultBasePriority = 10
	smallFileBonus      = 5
	smallFileBytes      = 10 << 20
)

// jobPriority derives queue priority from the provider and file size. Small
// files jump ahead because they free a worker slot quickly.
func jobPriority(providerName string, sizeBytes int64) int {
	p, ok := basePriorities[providerName]
	if !ok {
		p = defaultBasePriority
	}
	if sizeBytes < smallFileBytes {
		p += smallFileBonus
	}
	return p
}

// realtimeFactors approximate processing seconds per media second by quality
// tier. Rough numbers for queue-time hints only.
var realtimeFactors = map[catalog.Tier]float64{
	catalog.TierBasic:     0.5,
	catalog.TierGood:      0.3,
	catalog.TierVeryGood:  0.2,
	catalog.TierExcellent: 0.15,
}

func estimateProcessingMs(durationSeconds float64, quality catalog.Tier, queuePosition int) int64 {
	rtf, ok := realtimeFactors[quality]
	if !ok {
		rtf = 0.3
	}
	return int64(durationSeconds*rtf*1000) + int64(queuePosition)*500
}
