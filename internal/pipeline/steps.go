package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/linkprobe/internal/crawler"
	"github.com/nao1215/linkprobe/internal/extract"
	"github.com/nao1215/linkprobe/internal/model"
)

// CrawlStep crawls the report's start URL with a fresh HTTPProcessor and
// Driver, recording broken links and pages straight into the report.
type CrawlStep struct {
	client     *http.Client
	extractor  *extract.Extractor
	driverOpts []crawler.DriverOption
	procOpts   []crawler.ProcessorOption
	onProgress func(crawler.Progress)
	logger     *slog.Logger
}

// CrawlOption configures a CrawlStep.
type CrawlOption func(*CrawlStep)

// WithDriverOptions passes options to every Driver the step creates.
func WithDriverOptions(opts ...crawler.DriverOption) CrawlOption {
	return func(s *CrawlStep) {
		s.driverOpts = append(s.driverOpts, opts...)
	}
}

// WithProcessorOptions passes options to every HTTPProcessor the step creates.
func WithProcessorOptions(opts ...crawler.ProcessorOption) CrawlOption {
	return func(s *CrawlStep) {
		s.procOpts = append(s.procOpts, opts...)
	}
}

// WithProgress calls fn for every progress event, from the goroutine
// running the step.
func WithProgress(fn func(crawler.Progress)) CrawlOption {
	return func(s *CrawlStep) {
		s.onProgress = fn
	}
}

// WithStepLogger sets the logger.
func WithStepLogger(logger *slog.Logger) CrawlOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep returns a CrawlStep fetching through client and extracting
// hrefs with ex.
func NewCrawlStep(client *http.Client, ex *extract.Extractor, opts ...CrawlOption) *CrawlStep {
	s := &CrawlStep{
		client:    client,
		extractor: ex,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Name implements Step.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do implements Step. A cancelled crawl is not an error: the report keeps
// what was found and is marked cancelled.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	procOpts := make([]crawler.ProcessorOption, 0, len(s.procOpts)+3)
	procOpts = append(procOpts, s.procOpts...)
	procOpts = append(procOpts,
		crawler.WithMode(report.Mode),
		crawler.WithRecorder(report),
		crawler.WithProcessorLogger(s.logger),
	)
	proc := crawler.NewHTTPProcessor(s.client, s.extractor, procOpts...)

	driverOpts := make([]crawler.DriverOption, 0, len(s.driverOpts)+1)
	driverOpts = append(driverOpts, s.driverOpts...)
	driverOpts = append(driverOpts, crawler.WithDriverLogger(s.logger))
	driver := crawler.NewDriver(driverOpts...)

	events, err := driver.Crawl(ctx, model.NewStartLink(report.StartURL), proc)
	if err != nil {
		return fmt.Errorf("failed to start crawl: %w", err)
	}

	skipped := 0
	for ev := range events {
		if s.onProgress != nil {
			s.onProgress(ev)
		}
		switch {
		case ev.Err == nil, errors.Is(ev.Err, crawler.ErrBrokenLink):
		case errors.Is(ev.Err, crawler.ErrDisallowedByRobots):
			skipped++
		case errors.Is(ev.Err, context.Canceled), errors.Is(ev.Err, context.DeadlineExceeded):
		default:
			s.logger.Debug("link failed", "url", ev.Link.Target, "error", ev.Err)
		}
	}

	stats := driver.Stats()
	report.Finish(stats.LinksChecked, stats.Cancelled)
	s.logger.Info("crawl finished",
		"url", report.StartURL,
		"links", stats.LinksChecked,
		"waves", stats.Waves,
		"broken", len(report.Broken),
		"robotsSkipped", skipped,
		"fetched", proc.Fetched(),
		"limitReached", stats.LimitReached,
		"cancelled", stats.Cancelled,
	)
	return nil
}

// DescribeStep fills in anchor text and line numbers of broken links by
// re-reading their referring pages.
type DescribeStep struct {
	locator *crawler.Locator
}

// NewDescribeStep returns a DescribeStep using locator.
func NewDescribeStep(locator *crawler.Locator) *DescribeStep {
	return &DescribeStep{locator: locator}
}

// Name implements Step.
func (s *DescribeStep) Name() string {
	return "describe"
}

// Do implements Step.
func (s *DescribeStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if len(report.Broken) == 0 {
		return nil
	}
	report.Broken = s.locator.Describe(ctx, report.Broken)
	return nil
}
