package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/linkprobe/internal/model"
)

// DefaultBatchConcurrency is how many start URLs are crawled at once when
// no concurrency is configured.
const DefaultBatchConcurrency = 2

// BatchProcessor crawls several start URLs concurrently, one Pipeline each.
//
// Design decision: a separate type rather than a Pipeline feature, so a
// Pipeline stays about one start URL and the factory can give each URL its
// own site configuration.
type BatchProcessor struct {
	pipelineFactory func(startURL string) *Pipeline
	mode            model.Mode
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets how many start URLs are crawled at once.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithMode sets the mode of every report the batch creates.
func WithMode(m model.Mode) BatchOption {
	return func(b *BatchProcessor) {
		b.mode = m
	}
}

// NewBatchProcessor returns a BatchProcessor that builds the pipeline for
// each start URL with pipelineFactory.
func NewBatchProcessor(pipelineFactory func(startURL string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		mode:            model.ModeCheck,
		concurrency:     DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch crawls every start URL and returns the reports in the order
// of startURLs. A failed pipeline does not stop the others; its error is in
// its report. Entries for URLs that never started because ctx was cancelled
// are nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, startURLs []string) ([]*model.CrawlReport, error) {
	results := make([]*model.CrawlReport, len(startURLs))
	err := bp.ProcessBatchWithCallback(ctx, startURLs, func(report *model.CrawlReport, index int) {
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback crawls every start URL and calls callback with
// each report as soon as its pipeline ends. callback runs on the worker
// goroutine and must be safe for concurrent use.
//
// Design decision: errgroup.SetLimit instead of a worker pool; every URL
// gets a goroutine but only concurrency of them run at once.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	startURLs []string,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch",
		"targets", len(startURLs),
		"concurrency", bp.concurrency,
	)
	started := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("crawling",
				"url", startURL,
				"index", i+1,
				"total", len(startURLs),
			)
			report := model.NewCrawlReport(startURL, bp.mode)
			if err := bp.pipelineFactory(startURL).Execute(ctx, report); err != nil {
				bp.logger.Warn("crawl failed", "url", startURL, "error", err)
			}
			callback(report, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete",
		"targets", len(startURLs),
		"elapsed", time.Since(started),
	)
	return err
}
