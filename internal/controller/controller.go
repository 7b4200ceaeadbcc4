// Package controller drives the topic listing: it discovers article links page by page,
// hands each new batch to the worker pool and decides when to stop.
package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
	"github.com/JakeFAU/topic-harvester/internal/timestamp"
)

// Listing component ids used when the config leaves them blank.
const (
	DefaultConsentID   = "CookieBanner_AcceptABCRequired"
	DefaultCardID      = "CardHeading"
	DefaultTimestampID = "Timestamp"
	DefaultLoadMoreID  = "PaginationLoadMoreButton"

	defaultProgressEvery = 100
)

// Dispatcher runs one batch of acquisitions to completion.
type Dispatcher interface {
	RunBatch(ctx context.Context, urls []string) []crawler.AcquireResult
}

// Config captures the listing and termination settings for one run.
type Config struct {
	ListingURL  string
	ConsentID   string
	CardID      string
	TimestampID string
	LoadMoreID  string
	// CutoffYear stops pagination once the oldest visible item is from an earlier year.
	CutoffYear int
	// SettleDelay is waited before every link collection so the listing can finish rendering.
	SettleDelay   time.Duration
	ProgressEvery int
	RunID         string
}

// Controller is single-threaded: every step blocks before the next begins.
type Controller struct {
	browser crawler.BrowserSession
	pool    Dispatcher
	runLog  crawler.RunLog
	clock   crawler.Clock
	norm    *timestamp.Normalizer
	cfg     Config
	logger  *zap.Logger
}

// New wires a Controller. runLog may be nil.
func New(
	browser crawler.BrowserSession,
	pool Dispatcher,
	runLog crawler.RunLog,
	clock crawler.Clock,
	norm *timestamp.Normalizer,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if cfg.ConsentID == "" {
		cfg.ConsentID = DefaultConsentID
	}
	if cfg.CardID == "" {
		cfg.CardID = DefaultCardID
	}
	if cfg.TimestampID == "" {
		cfg.TimestampID = DefaultTimestampID
	}
	if cfg.LoadMoreID == "" {
		cfg.LoadMoreID = DefaultLoadMoreID
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		browser: browser,
		pool:    pool,
		runLog:  runLog,
		clock:   clock,
		norm:    norm,
		cfg:     cfg,
		logger:  logger,
	}
}

// run holds the mutable state of one crawl.
type run struct {
	state         State
	processed     *crawler.ProcessedSet
	moreAvailable bool
	newLinks      []string
	summary       crawler.CrawlSummary
	started       time.Time
}

// Run executes the state machine until DONE. A non-nil error wraps crawler.ErrControllerFatal
// or the context error; per-article failures never surface here.
func (c *Controller) Run(ctx context.Context) (crawler.CrawlSummary, error) {
	r := &run{
		state:         StateLoadingListing,
		processed:     crawler.NewProcessedSet(),
		moreAvailable: true,
		started:       c.clock.Now(),
	}
	r.summary.RunID = c.cfg.RunID

	for r.state != StateDone {
		if err := ctx.Err(); err != nil {
			c.finish(r, StopCanceled)
			return r.summary, fmt.Errorf("crawl interrupted in %s: %w", r.state, err)
		}
		metrics.ObserveControllerStep(r.state.String())

		var err error
		switch r.state {
		case StateLoadingListing:
			err = c.loadListing(ctx, r)
		case StateCollectingLinks:
			err = c.collectLinks(ctx, r)
		case StateDispatching:
			c.dispatch(ctx, r)
		case StateCheckingTermination:
			c.checkTermination(ctx, r)
		case StatePaginating:
			c.paginate(ctx, r)
		}
		if err != nil {
			reason := StopFatal
			if ctx.Err() != nil {
				reason = StopCanceled
			}
			c.finish(r, reason)
			return r.summary, err
		}
	}
	metrics.ObserveControllerStep(StateDone.String())

	c.logger.Info("crawl finished",
		zap.String("run_id", r.summary.RunID),
		zap.String("reason", r.summary.StopReason),
		zap.Int("discovered", r.summary.Discovered),
		zap.Int("acquired", r.summary.Acquired),
		zap.Int("skipped", r.summary.Skipped),
		zap.Int("failed", r.summary.Failed),
		zap.Duration("elapsed", r.summary.Elapsed),
	)
	return r.summary, nil
}

func (c *Controller) finish(r *run, reason string) {
	r.state = StateDone
	r.summary.StopReason = reason
	r.summary.Discovered = r.processed.Len()
	r.summary.Elapsed = c.clock.Now().Sub(r.started)
}

func (c *Controller) loadListing(ctx context.Context, r *run) error {
	if err := c.browser.Navigate(ctx, c.cfg.ListingURL); err != nil {
		return fmt.Errorf("%w: load listing %s: %v", crawler.ErrControllerFatal, c.cfg.ListingURL, err)
	}
	if c.browser.DismissConsent(ctx, c.cfg.ConsentID) {
		c.logger.Debug("consent banner dismissed")
	}
	r.state = StateCollectingLinks
	return nil
}

func (c *Controller) collectLinks(ctx context.Context, r *run) error {
	if err := c.clock.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return fmt.Errorf("settle listing: %w", err)
	}
	r.summary.CollectPasses++

	visible, err := c.browser.ListingLinks(ctx, c.cfg.CardID)
	if err != nil {
		return fmt.Errorf("%w: read listing links: %v", crawler.ErrControllerFatal, err)
	}
	if len(visible) == 0 {
		c.finish(r, StopNoItems)
		return nil
	}

	r.newLinks = r.processed.NewLinks(visible)
	if len(r.newLinks) == 0 && !r.moreAvailable {
		c.finish(r, StopExhausted)
		return nil
	}
	c.logger.Info("stories to process",
		zap.Int("visible", len(visible)),
		zap.Int("new", len(r.newLinks)),
	)
	r.state = StateDispatching
	return nil
}

func (c *Controller) dispatch(ctx context.Context, r *run) {
	before := r.summary.Acquired
	if len(r.newLinks) > 0 {
		results := c.pool.RunBatch(ctx, r.newLinks)
		for _, res := range results {
			c.tally(r, res)
		}
	}
	r.processed.AddAll(r.newLinks)
	r.newLinks = nil

	every := c.cfg.ProgressEvery
	if r.summary.Acquired/every > before/every {
		c.logger.Info("progress",
			zap.Int("acquired", r.summary.Acquired),
			zap.Duration("elapsed", c.clock.Now().Sub(r.started)),
		)
	}
	r.state = StateCheckingTermination
}

func (c *Controller) tally(r *run, res crawler.AcquireResult) {
	switch res.Outcome {
	case crawler.OutcomeAcquired:
		r.summary.Acquired++
	case crawler.OutcomeSkippedExisting:
		r.summary.Skipped++
	default:
		r.summary.Failed++
	}
	if c.runLog == nil {
		return
	}
	key := res.Key
	if key == "" {
		key = res.URL
	}
	if err := c.runLog.Record(key, res.Outcome.Code()); err != nil {
		c.logger.Warn("run log write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Controller) checkTermination(ctx context.Context, r *run) {
	r.summary.CheckPasses++
	r.state = StatePaginating

	raw, err := c.browser.OldestVisibleTimestamp(ctx, c.cfg.TimestampID)
	if err != nil {
		c.logger.Warn("oldest timestamp unavailable", zap.Error(err))
		return
	}
	oldest, err := c.norm.Parse(raw, timestamp.LayoutUTC)
	if err != nil {
		c.logger.Warn("oldest timestamp unparseable", zap.String("value", raw), zap.Error(err))
		return
	}
	r.summary.OldestSeen = oldest
	if oldest.Year() < c.cfg.CutoffYear {
		c.logger.Info("cutoff reached",
			zap.Time("oldest", oldest),
			zap.Int("cutoff_year", c.cfg.CutoffYear),
		)
		c.finish(r, StopCutoff)
	}
}

func (c *Controller) paginate(ctx context.Context, r *run) {
	r.summary.Paginations++
	more, err := c.browser.LoadMore(ctx, c.cfg.LoadMoreID)
	if err != nil {
		c.logger.Info("load more failed, treating listing as exhausted", zap.Error(err))
		more = false
	}
	if !more {
		r.moreAvailable = false
		c.finish(r, StopExhausted)
		return
	}
	r.state = StateCollectingLinks
}
