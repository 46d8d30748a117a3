// Package worker implements the claim/search/extract/persist execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meodash/meorank/internal/metrics"
	"github.com/meodash/meorank/internal/rank"
)

// Config controls Worker behavior.
type Config struct {
	// IdleInterval is how long the loop sleeps before the next claim
	// attempt. One job is processed end-to-end per iteration.
	IdleInterval time.Duration
	// EventTopic, when set together with a publisher, receives a message
	// after each successful observation.
	EventTopic string
}

// Worker runs one synchronous claim, search, extract, persist cycle at a
// time. Parallelism comes from running multiple worker processes; the
// claimer keeps that safe.
type Worker struct {
	claimer   rank.Claimer
	sink      rank.ResultSink
	driver    rank.SearchDriver
	extractor rank.Extractor
	retry     *RetryPolicy
	publisher rank.Publisher
	clock     rank.Clock
	cfg       Config
	logger    *zap.Logger

	busy atomic.Bool
}

// New constructs a Worker.
func New(
	claimer rank.Claimer,
	sink rank.ResultSink,
	driver rank.SearchDriver,
	extractor rank.Extractor,
	retry *RetryPolicy,
	publisher rank.Publisher,
	clock rank.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		claimer:   claimer,
		sink:      sink,
		driver:    driver,
		extractor: extractor,
		retry:     retry,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Busy reports whether a job (and therefore a browser session) is currently
// in flight.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Run blocks, claiming and processing jobs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.claimer.ClaimNext(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			metrics.ObserveClaim("error")
			w.logger.Error("claim failed", zap.Error(err))
		case job == nil:
			metrics.ObserveClaim("empty")
		default:
			metrics.ObserveClaim("job")
			w.processJob(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.IdleInterval):
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job *rank.ClaimedJob) {
	w.busy.Store(true)
	metrics.SetBrowserActive(true)
	defer func() {
		w.busy.Store(false)
		metrics.SetBrowserActive(false)
	}()

	logger := w.logger.With(
		zap.Int64("job_id", job.ID),
		zap.Int64("shop_id", job.ShopID),
		zap.Int64("keyword_id", job.KeywordID),
		zap.String("keyword", job.Keyword),
	)
	logger.Info("job claimed", zap.Time("target_date", job.TargetDate))

	page, err := w.search(ctx, job, logger)
	if err != nil {
		if rank.IsBlocked(err) {
			w.fail(ctx, job.ID, err.Error(), metrics.OutcomeBlocked, logger)
			return
		}
		w.fail(ctx, job.ID, fmt.Sprintf("search failed: %v", err), metrics.OutcomeError, logger)
		return
	}

	extraction, err := w.extractor.Extract(page.HTML, job.ShopName)
	if err != nil {
		if errors.Is(err, rank.ErrNoCandidates) {
			w.fail(ctx, job.ID, "no results extracted from page", metrics.OutcomeNoCandidates, logger)
			return
		}
		w.fail(ctx, job.ID, fmt.Sprintf("extraction failed: %v", err), metrics.OutcomeError, logger)
		return
	}

	if err := w.sink.RecordRank(ctx, job, extraction.OrganicRank); err != nil {
		// The sweep command requeues jobs left running by persistence
		// failures; here the error just has to be visible.
		metrics.ObserveJob(metrics.OutcomeError)
		logger.Error("persist observation failed", zap.Error(err))
		return
	}

	metrics.ObserveJob(metrics.OutcomeSuccess)
	logger.Info("job completed",
		zap.Intp("organic_rank", extraction.OrganicRank),
		zap.Intp("naive_rank", extraction.NaiveRank),
		zap.Int("candidates", extraction.AllCount),
		zap.Int("organic", extraction.OrganicCount),
		zap.Int("sponsored", extraction.SponsoredCount),
	)

	w.publishObservation(ctx, job, extraction)
}

// search runs the browser navigation with bounded, jittered retries for
// transient errors. Blocked outcomes surface immediately.
func (w *Worker) search(ctx context.Context, job *rank.ClaimedJob, logger *zap.Logger) (rank.SearchPage, error) {
	var lastErr error
	for attempt := 0; attempt < w.retry.MaxAttempts(); attempt++ {
		if attempt > 0 {
			metrics.ObserveSearchRetry()
			backoff := w.retry.Backoff(attempt - 1)
			logger.Warn("retrying search",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return rank.SearchPage{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		page, err := w.driver.Search(ctx, job.ID, job.Keyword)
		if err == nil {
			metrics.ObserveSearchDuration(page.Duration)
			return page, nil
		}
		lastErr = err
		if !w.retry.ShouldRetry(err, attempt) {
			return rank.SearchPage{}, err
		}
	}
	return rank.SearchPage{}, lastErr
}

func (w *Worker) fail(ctx context.Context, jobID int64, reason, outcome string, logger *zap.Logger) {
	metrics.ObserveJob(outcome)
	logger.Warn("job failed", zap.String("reason", reason), zap.String("outcome", outcome))
	if err := w.sink.RecordFailure(ctx, jobID, reason); err != nil {
		logger.Error("record failure failed", zap.Error(err))
	}
}

func (w *Worker) publishObservation(ctx context.Context, job *rank.ClaimedJob, extraction rank.Extraction) {
	if w.publisher == nil || w.cfg.EventTopic == "" {
		return
	}
	payload := map[string]any{
		"job_id":          job.ID,
		"shop_id":         job.ShopID,
		"meo_keyword_id":  job.KeywordID,
		"checked_at":      job.TargetDate.Format("2006-01-02"),
		"position":        extraction.OrganicRank,
		"organic_count":   extraction.OrganicCount,
		"sponsored_count": extraction.SponsoredCount,
		"observed_at":     w.now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.EventTopic, payload); err != nil {
		w.logger.Warn("publish observation event failed",
			zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}
