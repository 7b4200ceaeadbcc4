// Package extractrun converts every stored document into a Record in one bounded parallel pass.
package extractrun

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
	"github.com/JakeFAU/topic-harvester/internal/telemetry"
)

// TracerName names the spans of this package.
const TracerName = "github.com/JakeFAU/topic-harvester/internal/extractrun"

// Extractor produces Fields for one document.
type Extractor interface {
	Extract(doc crawler.RawDocument) (crawler.Fields, error)
}

// Assembler persists one Record and returns its 0/1 code.
type Assembler interface {
	Assemble(ctx context.Context, key string, fields crawler.Fields) (int, error)
}

// Config controls a Runner.
type Config struct {
	Concurrency int
	RunID       string
	Tracer      trace.Tracer
}

// Runner walks articles/ and converts each document independently.
type Runner struct {
	store     crawler.ObjectStore
	extractor Extractor
	assembler Assembler
	runLog    crawler.RunLog
	clock     crawler.Clock
	tracer    trace.Tracer
	cfg       Config
	logger    *zap.Logger
}

// New wires a Runner. runLog may be nil.
func New(
	store crawler.ObjectStore,
	extractor Extractor,
	assembler Assembler,
	runLog crawler.RunLog,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:     store,
		extractor: extractor,
		assembler: assembler,
		runLog:    runLog,
		clock:     clock,
		tracer:    telemetry.Tracer(cfg.Tracer, TracerName),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run converts all stored documents. Individual failures are counted, not returned;
// the error is non-nil only when listing fails or ctx is canceled.
func (r *Runner) Run(ctx context.Context) (crawler.ExtractSummary, error) {
	start := r.clock.Now()
	summary := crawler.ExtractSummary{RunID: r.cfg.RunID}

	objects, err := r.store.List(ctx, crawler.DocumentPrefix)
	if err != nil {
		return summary, fmt.Errorf("list documents: %w", err)
	}

	var converted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, object := range objects {
		key, ok := crawler.KeyFromDocumentPath(object)
		if !ok {
			continue
		}
		summary.Documents++
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if r.convert(gctx, key) == 1 {
				converted.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	summary.Converted = int(converted.Load())
	summary.Failed = int(failed.Load())
	summary.Elapsed = r.clock.Now().Sub(start)
	r.logger.Info("extraction finished",
		zap.String("run_id", summary.RunID),
		zap.Int("documents", summary.Documents),
		zap.Int("converted", summary.Converted),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	if waitErr != nil {
		return summary, fmt.Errorf("extraction interrupted: %w", waitErr)
	}
	return summary, nil
}

// convert handles one key end to end and returns its run log code.
func (r *Runner) convert(ctx context.Context, key string) int {
	ctx, span := r.tracer.Start(ctx, "extractrun.convert", trace.WithAttributes(attribute.String("harvester.key", key)))
	code, status, err := r.process(ctx, key)
	span.SetAttributes(attribute.String("harvester.status", status), attribute.Int("harvester.code", code))
	telemetry.EndSpan(span, err)
	if err != nil {
		r.logger.Warn("conversion failed", zap.String("key", key), zap.String("status", status), zap.Error(err))
	}
	metrics.ObserveRecord(status)
	if r.runLog != nil {
		if logErr := r.runLog.Record(key, code); logErr != nil {
			r.logger.Warn("run log write failed", zap.String("key", key), zap.Error(logErr))
		}
	}
	return code
}

func (r *Runner) process(ctx context.Context, key string) (int, string, error) {
	content, err := r.store.Get(ctx, crawler.DocumentPath(key))
	if err != nil {
		return 0, "read_failed", fmt.Errorf("read document: %w", err)
	}
	_, extractSpan := r.tracer.Start(ctx, "extractrun.extract")
	fields, err := r.extractor.Extract(crawler.RawDocument{Key: key, Content: content})
	telemetry.EndSpan(extractSpan, err)
	if err != nil {
		if errors.Is(err, crawler.ErrMandatoryFieldMissing) {
			return 0, "missing_field", err
		}
		return 0, "parse_failed", err
	}
	asmCtx, asmSpan := r.tracer.Start(ctx, "extractrun.assemble")
	code, err := r.assembler.Assemble(asmCtx, key, fields)
	telemetry.EndSpan(asmSpan, err)
	if err != nil {
		return code, "write_failed", err
	}
	return code, "converted", nil
}
