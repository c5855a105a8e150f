package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/metrics"
	"github.com/snarg/stt-engine/internal/pricing"
	"github.com/snarg/stt-engine/internal/queue"
	"github.com/snarg/stt-engine/internal/transcribe"
)

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	log := e.log.With().Int("worker", id).Logger()

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		it, ok, err := e.store.Claim(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("claim failed")
			e.idle()
			continue
		}
		if !ok {
			e.idle()
			continue
		}
		e.process(log, it)
	}
}

func (e *Engine) idle() {
	select {
	case <-e.ctx.Done():
	case <-time.After(e.opts.PollInterval):
	}
}

// process runs one claimed attempt to a terminal state, a retry release, or a
// timeout. The queue item is always acked except on retry.
func (e *Engine) process(log zerolog.Logger, it queue.Item) {
	j := e.lookup(it.JobID)
	if j == nil {
		var err error
		j, err = e.rehydrate(it)
		if err != nil {
			log.Error().Err(err).Str("job_id", it.JobID).Msg("dropping undecodable queue item")
			e.ack(it.JobID)
			return
		}
		log.Info().Str("job_id", j.ID).Str("request_id", j.RequestID).Msg("rehydrated job from queue payload")
	}

	if !j.CASStatus(StatusQueued, StatusActive) {
		// Terminal already (janitor timeout sweep) or raced another claim.
		e.ack(it.JobID)
		return
	}
	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()
	j.markStarted(it.Attempt)

	deadline := j.CreatedAt.Add(e.opts.JobTimeout)
	if !time.Now().Before(deadline) {
		e.failJob(log, j, ErrKindTimeout, fmt.Sprintf("job exceeded %s wall-clock budget", e.opts.JobTimeout))
		e.ack(it.JobID)
		return
	}

	ctx, cancel := context.WithDeadline(e.ctx, deadline)
	defer cancel()

	desc, err := e.catalog.Get(j.Provider)
	if err != nil {
		e.failJob(log, j, ErrKindValidation, fmt.Sprintf("provider %q no longer in catalog", j.Provider))
		e.ack(it.JobID)
		return
	}
	prov, ok := e.opts.Providers[j.Provider]
	if !ok {
		e.failJob(log, j, ErrKindValidation, fmt.Sprintf("no adapter configured for provider %q", j.Provider))
		e.ack(it.JobID)
		return
	}

	path, cleanup, err := e.opts.Preprocess(ctx, j.SourceFile, j.Media, desc)
	if err != nil {
		if ctxExpired(ctx) {
			e.failJob(log, j, ErrKindTimeout, "timed out during preprocessing")
		} else {
			e.failJob(log, j, classifyKind(err), err.Error())
		}
		e.ack(it.JobID)
		return
	}
	defer cleanup()
	j.setProgress(progressPreprocessed)

	j.setProgress(progressCallStarted)
	start := time.Now()
	res, err := prov.Transcribe(ctx, path, j.Options)
	metrics.ProviderCallDuration.WithLabelValues(j.Provider).Observe(time.Since(start).Seconds())

	if err != nil {
		e.handleCallError(ctx, log, j, it, err)
		return
	}
	j.setProgress(progressCallFinished)

	if res.DurationSeconds <= 0 && j.Media != nil {
		res.DurationSeconds = j.Media.DurationSeconds
	}
	usd, perr := e.pricing.Estimate(res.DurationSeconds, j.Provider)
	if perr != nil {
		usd = 0
	}
	res.Provider = j.Provider
	res.CostUSD = usd
	res.Cached = false
	if res.ProcessedAt.IsZero() {
		res.ProcessedAt = time.Now().UTC()
	}

	if e.opts.Cache != nil && j.CacheKey != "" {
		if cerr := e.opts.Cache.Set(ctx, j.CacheKey, res, e.opts.CacheTTL); cerr != nil {
			log.Warn().Err(cerr).Str("job_id", j.ID).Msg("cache store failed")
		}
	}
	if e.opts.Archive != nil {
		if aerr := e.opts.Archive.Store(ctx, j.ID, res); aerr != nil {
			log.Warn().Err(aerr).Str("job_id", j.ID).Msg("transcript archive failed")
		}
	}

	j.complete(res)
	if !j.CASStatus(StatusActive, StatusCompleted) {
		// Janitor raced us to a timeout; the result is kept but the terminal
		// state stands.
		e.ack(it.JobID)
		return
	}
	e.usage.recordCompleted(pricing.BilledMinutes(res.DurationSeconds), usd, pricing.Credits(usd))
	metrics.JobsCompletedTotal.WithLabelValues(j.Provider).Inc()
	metrics.CostUSDTotal.WithLabelValues(j.Provider).Add(usd)
	metrics.JobAttempts.Observe(float64(j.Attempts()))
	e.ack(it.JobID)

	log.Info().
		Str("job_id", j.ID).
		Str("request_id", j.RequestID).
		Str("provider", j.Provider).
		Int("attempt", it.Attempt).
		Float64("duration_s", res.DurationSeconds).
		Float64("cost_usd", usd).
		Dur("took", time.Since(start)).
		Msg("job completed")
}

// handleCallError decides between retry (release with backoff) and permanent
// failure after a provider call error.
func (e *Engine) handleCallError(ctx context.Context, log zerolog.Logger, j *Job, it queue.Item, err error) {
	if ctxExpired(ctx) {
		if e.ctx.Err() != nil {
			// Shutdown, not a job timeout. Leave the claim for the visibility
			// timeout and put the job back where the next run expects it.
			j.CASStatus(StatusActive, StatusQueued)
			return
		}
		e.failJob(log, j, ErrKindTimeout, fmt.Sprintf("provider call exceeded %s wall-clock budget", e.opts.JobTimeout))
		e.ack(it.JobID)
		return
	}

	retryable := transcribe.IsRetryable(err)
	metrics.ProviderCallErrorsTotal.WithLabelValues(j.Provider, strconv.FormatBool(retryable)).Inc()

	if retryable && it.Attempt < e.opts.RetryBudget+1 {
		delay := backoffDelay(e.opts.RetryBaseDelay, it.Attempt)
		if !j.CASStatus(StatusActive, StatusQueued) {
			e.ack(it.JobID)
			return
		}
		if rerr := e.store.Release(context.Background(), j.ID, time.Now().Add(delay)); rerr != nil {
			log.Error().Err(rerr).Str("job_id", j.ID).Msg("release failed, failing job")
			j.CASStatus(StatusQueued, StatusActive)
			e.failJob(log, j, classifyKind(err), err.Error())
			e.ack(it.JobID)
			return
		}
		log.Warn().
			Err(err).
			Str("job_id", j.ID).
			Int("attempt", it.Attempt).
			Dur("retry_in", delay).
			Msg("retryable provider error, requeued")
		return
	}

	e.failJob(log, j, classifyKind(err), err.Error())
	e.ack(it.JobID)
}

// failJob moves an Active job to Failed and records the terminal error.
func (e *Engine) failJob(log zerolog.Logger, j *Job, kind ErrKind, msg string) {
	j.fail(kind, msg)
	if !j.CASStatus(StatusActive, StatusFailed) {
		return
	}
	e.usage.recordFailed()
	metrics.JobsFailedTotal.WithLabelValues(string(kind)).Inc()
	metrics.JobAttempts.Observe(float64(j.Attempts()))
	log.Error().
		Str("job_id", j.ID).
		Str("request_id", j.RequestID).
		Str("kind", string(kind)).
		Str("error", msg).
		Msg("job failed")
}

func (e *Engine) ack(jobID string) {
	if err := e.store.Ack(context.Background(), jobID); err != nil {
		e.log.Warn().Err(err).Str("job_id", jobID).Msg("ack failed")
	}
}

// rehydrate rebuilds a Job from its queue payload after a restart.
func (e *Engine) rehydrate(it queue.Item) (*Job, error) {
	if len(it.Payload) == 0 {
		return nil, errors.New("empty payload")
	}
	var p jobPayload
	if err := json.Unmarshal(it.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	j := &Job{
		ID:            it.JobID,
		RequestID:     p.RequestID,
		SourceFile:    p.SourceFile,
		FileSizeBytes: p.FileSizeBytes,
		Provider:      p.Provider,
		Options:       p.Options,
		Priority:      p.Priority,
		CacheKey:      p.CacheKey,
		Media:         p.Media,
		CreatedAt:     p.CreatedAt,
		status:        StatusQueued,
		progress:      progressProbed,
	}
	e.register(j)
	return j, nil
}

// janitor evicts terminal jobs past retention, times out jobs stuck in the
// queue, refreshes the depth gauge, and reaps expired claims.
func (e *Engine) janitor() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := e.store.ReapExpired(e.ctx); err != nil && e.ctx.Err() == nil {
			e.log.Warn().Err(err).Msg("reap failed")
		}
		if n, err := e.store.Len(e.ctx); err == nil {
			metrics.QueueDepth.Set(float64(n))
		}
		e.sweepJobs()
	}
}

func (e *Engine) sweepJobs() {
	now := time.Now()
	cutoff := now.Add(-e.opts.Retention)

	e.mu.RLock()
	tracked := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		tracked = append(tracked, j)
	}
	e.mu.RUnlock()

	for _, j := range tracked {
		if j.finishedBefore(cutoff) {
			e.unregister(j)
			continue
		}
		// A job that aged out while still waiting gets a timeout instead of
		// sitting queued forever. Its queue item is acked by whichever worker
		// claims the now-terminal job.
		if !now.Before(j.CreatedAt.Add(e.opts.JobTimeout)) && j.Status() == StatusQueued {
			if j.CASStatus(StatusQueued, StatusActive) {
				e.failJob(e.log, j, ErrKindTimeout, fmt.Sprintf("job exceeded %s wall-clock budget while queued", e.opts.JobTimeout))
			}
		}
	}
}

// ctxExpired reports whether a step failed because its context expired rather
// than because of a provider-side problem.
func ctxExpired(ctx context.Context) bool {
	return ctx.Err() != nil
}

// backoffDelay is base × 2^attempt, capped so a deep retry chain cannot
// outlive the job budget on its own.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	const maxDelay = 5 * time.Minute
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}
