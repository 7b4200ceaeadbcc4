// Package worker implements the acquisition worker: one article URL in, document and images persisted.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
	"github.com/JakeFAU/topic-harvester/internal/telemetry"
)

// TracerName names the spans of this package.
const TracerName = "github.com/JakeFAU/topic-harvester/internal/worker"

// Config controls Worker behavior.
type Config struct {
	Keys           crawler.KeyScheme
	DocumentDelay  time.Duration
	ImageDelay     time.Duration
	ImageCDNPrefix string
	ContentType    string
	Topic          string
	RunID          string

	// Tracer defaults to the global provider.
	Tracer trace.Tracer
}

// Worker acquires single articles. Workers share nothing but the object store.
type Worker struct {
	store      crawler.ObjectStore
	fetcher    crawler.Fetcher
	politeness crawler.Politeness
	publisher  crawler.Publisher
	hasher     crawler.Hasher
	clock      crawler.Clock
	images     *imageLocalizer
	tracer     trace.Tracer
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. publisher may be nil when no events are wanted.
func New(
	store crawler.ObjectStore,
	fetcher crawler.Fetcher,
	politeness crawler.Politeness,
	publisher crawler.Publisher,
	hasher crawler.Hasher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Worker{
		store:      store,
		fetcher:    fetcher,
		politeness: politeness,
		publisher:  publisher,
		hasher:     hasher,
		clock:      clock,
		images:     newImageLocalizer(cfg.ImageCDNPrefix),
		tracer:     telemetry.Tracer(cfg.Tracer, TracerName),
		cfg:        cfg,
		logger:     logger,
	}
}

// Acquire fetches url and persists it with its images, unless its document already exists.
func (w *Worker) Acquire(ctx context.Context, url string) crawler.AcquireResult {
	ctx, span := w.tracer.Start(ctx, "worker.acquire", trace.WithAttributes(attribute.String("harvester.url", url)))
	result := w.acquire(ctx, url)
	span.SetAttributes(
		attribute.String("harvester.key", result.Key),
		attribute.String("harvester.outcome", result.Outcome.String()),
		attribute.Int("harvester.images", result.Images),
		attribute.Int("harvester.images_failed", result.ImagesFailed),
	)
	telemetry.EndSpan(span, result.Err)
	return result
}

func (w *Worker) acquire(ctx context.Context, url string) crawler.AcquireResult {
	result := crawler.AcquireResult{URL: url, Outcome: crawler.OutcomeFailed}
	key, err := w.cfg.Keys.DocumentKey(url)
	if err != nil {
		return w.fail(result, err)
	}
	result.Key = key

	docPath := crawler.DocumentPath(key)
	exists, err := w.store.Exists(ctx, docPath)
	if err != nil {
		return w.fail(result, fmt.Errorf("check existing document: %w", err))
	}
	if exists {
		result.Outcome = crawler.OutcomeSkippedExisting
		w.logger.Debug("document exists, skipping", zap.String("url", url), zap.String("key", key))
		metrics.ObserveDocument(url, result.Outcome.String(), 0)
		return result
	}

	if err := w.politeness.Wait(ctx, url, w.cfg.DocumentDelay); err != nil {
		return w.fail(result, err)
	}
	resp, err := w.fetchDocument(ctx, url)
	if err != nil {
		return w.fail(result, err)
	}

	content, stats, err := w.localizeImages(ctx, url, resp.Body)
	if err != nil {
		return w.fail(result, err)
	}
	result.Images = stats.stored
	result.ImagesFailed = stats.failed

	putCtx, putSpan := w.tracer.Start(ctx, "worker.put_document")
	uri, err := w.store.Put(putCtx, docPath, w.cfg.ContentType, content)
	telemetry.EndSpan(putSpan, err)
	if err != nil {
		return w.fail(result, fmt.Errorf("%w: put document: %v", crawler.ErrSerialization, err))
	}

	result.Outcome = crawler.OutcomeAcquired
	metrics.ObserveDocument(url, result.Outcome.String(), len(resp.Body))
	w.publishAcquired(ctx, result, uri, content)
	w.logger.Debug("document acquired",
		zap.String("url", url),
		zap.String("key", key),
		zap.Int("images", stats.stored),
		zap.Int("images_failed", stats.failed),
	)
	return result
}

func (w *Worker) fetchDocument(ctx context.Context, url string) (resp crawler.FetchResponse, err error) {
	ctx, span := w.tracer.Start(ctx, "worker.fetch_document")
	defer func() {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		telemetry.EndSpan(span, err)
	}()
	resp, err = w.fetcher.Get(ctx, url)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, fmt.Errorf("%w: status %d", crawler.ErrFetchFailed, resp.StatusCode)
	}
	return resp, nil
}

func (w *Worker) fail(result crawler.AcquireResult, err error) crawler.AcquireResult {
	result.Outcome = crawler.OutcomeFailed
	result.Err = err
	w.logger.Warn("acquisition failed",
		zap.String("url", result.URL),
		zap.String("key", result.Key),
		zap.Error(err),
	)
	metrics.ObserveDocument(result.URL, result.Outcome.String(), 0)
	return result
}

// localizeImages stores every CDN image and returns the document with rewritten references.
// The original bytes are kept when nothing was rewritten.
func (w *Worker) localizeImages(ctx context.Context, pageURL string, body []byte) ([]byte, imageStats, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, imageStats{}, fmt.Errorf("parse document: %w", err)
	}
	refs := w.images.rewrite(doc)
	if len(refs) == 0 {
		return body, imageStats{}, nil
	}

	var stats imageStats
	for _, ref := range refs {
		if err := w.storeImage(ctx, ref); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, stats, ctxErr
			}
			stats.failed++
			metrics.ObserveImage("failed")
			w.logger.Warn("image skipped",
				zap.String("url", pageURL),
				zap.String("image", ref.url),
				zap.Error(err),
			)
			continue
		}
		stats.stored++
	}

	html, err := doc.Html()
	if err != nil {
		return nil, stats, fmt.Errorf("render document: %w", err)
	}
	return []byte(html), stats, nil
}

func (w *Worker) storeImage(ctx context.Context, ref imageRef) (err error) {
	ctx, span := w.tracer.Start(ctx, "worker.store_image", trace.WithAttributes(attribute.String("harvester.image_id", ref.id)))
	defer func() { telemetry.EndSpan(span, err) }()

	path := crawler.ImagePath(ref.id)
	exists, err := w.store.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("check existing image: %w", err)
	}
	if exists {
		metrics.ObserveImage("existing")
		return nil
	}
	if err := w.politeness.Wait(ctx, ref.url, w.cfg.ImageDelay); err != nil {
		return err
	}
	resp, err := w.fetcher.Get(ctx, ref.url)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: image status %d", crawler.ErrFetchFailed, resp.StatusCode)
	}
	if _, err := w.store.Put(ctx, path, "image/jpeg", resp.Body); err != nil {
		return fmt.Errorf("put image: %w", err)
	}
	metrics.ObserveImage("stored")
	return nil
}

// publishAcquired emits the acquisition event. The document is already persisted, so failures only warn.
func (w *Worker) publishAcquired(ctx context.Context, result crawler.AcquireResult, uri string, content []byte) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := crawler.AcquiredEvent{
		RunID:     w.cfg.RunID,
		URL:       result.URL,
		Key:       result.Key,
		URI:       uri,
		Images:    result.Images,
		FetchedAt: w.clock.Now(),
	}
	if w.hasher != nil {
		hash, err := w.hasher.Hash(content)
		if err != nil {
			w.logger.Warn("hash document failed", zap.String("key", result.Key), zap.Error(err))
		}
		event.ContentHash = hash
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		level := zap.WarnLevel
		if errors.Is(err, context.Canceled) {
			level = zap.DebugLevel
		}
		w.logger.Log(level, "publish acquired event failed", zap.String("key", result.Key), zap.Error(err))
	}
}
