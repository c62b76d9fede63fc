package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/imagecrawl/internal/config"
	"github.com/nao1215/imagecrawl/internal/crawler"
	"github.com/nao1215/imagecrawl/internal/downloader"
	"github.com/nao1215/imagecrawl/internal/fetch"
	"github.com/nao1215/imagecrawl/internal/model"
	"github.com/nao1215/imagecrawl/internal/progress"
)

// CrawlStep discovers pages and image addresses from run.Seed.
type CrawlStep struct {
	spider *crawler.Spider
	logger *slog.Logger
}

// NewCrawlStep creates a crawl step around a configured spider.
func NewCrawlStep(spider *crawler.Spider, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{spider: spider, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls the seed. On cancellation the pages and images found so far are
// still stored in run.
func (s *CrawlStep) Do(ctx context.Context, run *model.Run) error {
	result, err := s.spider.Crawl(ctx, run.Seed)
	if result == nil {
		return err
	}

	run.Seed = result.Seed
	run.Pages = make([]model.PageVisit, 0, len(result.Visited))
	for _, p := range result.Visited {
		visit := model.PageVisit{URL: p.URL, Depth: p.Depth, Title: p.Title}
		if p.Err != nil {
			visit.Error = p.Err.Error()
		}
		run.Pages = append(run.Pages, visit)
	}
	run.Images = result.Images

	s.logger.Info("crawl finished",
		"seed", run.Seed,
		"pages", len(run.Pages),
		"fetched", result.Fetched(),
		"images", len(run.Images))
	return err
}

// imageTotaler is implemented by sinks that draw a bar toward a known total.
type imageTotaler interface {
	SetImageTotal(n int)
}

// DownloadStep downloads run.Images into the output directory.
type DownloadStep struct {
	downloader *downloader.Downloader
	sink       progress.Sink
}

// NewDownloadStep creates a download step. sink may be nil; when it can show
// a total, it is told the number of images before downloading starts.
func NewDownloadStep(dl *downloader.Downloader, sink progress.Sink) *DownloadStep {
	return &DownloadStep{downloader: dl, sink: sink}
}

// Name returns the step name.
func (s *DownloadStep) Name() string {
	return "download"
}

// Do downloads every collected image. Images not attempted because of
// cancellation are recorded as failed and the cancellation error is returned.
func (s *DownloadStep) Do(ctx context.Context, run *model.Run) error {
	if t, ok := s.sink.(imageTotaler); ok {
		t.SetImageTotal(len(run.Images))
	}
	summary := s.downloader.DownloadAll(ctx, run.Images)
	run.Downloads = summary.Results
	return ctx.Err()
}

// DefaultPipeline builds the crawl and download steps from a run
// configuration and the site entry it was resolved with (see
// config.Config.ForSite). Both steps report to sink.
func DefaultPipeline(cfg *config.Config, site config.SiteConfig, sink progress.Sink, opts ...Option) (*Pipeline, error) {
	p := New(opts...)
	if sink == nil {
		sink = progress.Nop{}
	}

	client, err := fetch.NewClient(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithHeaders(site.Headers),
		fetch.WithCookie(site.Cookie),
		fetch.WithProxy(cfg.ProxyAddress),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	policy, err := downloader.ParseCollisionPolicy(cfg.CollisionPolicy)
	if err != nil {
		return nil, err
	}

	attrs := site.ImageAttributes
	if len(attrs) == 0 {
		attrs = config.DefaultImageAttributes()
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxDepth(cfg.CrawlDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithPageTimeout(cfg.PageTimeout),
		crawler.WithWorkers(cfg.CrawlWorkers),
		crawler.WithProgress(sink),
		crawler.WithLogger(p.logger),
		crawler.WithImageAttributes(attrs),
	}
	if len(site.IgnorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(site.FollowPatterns))
	}

	dl := downloader.NewDownloader(client, cfg.OutputDir,
		downloader.WithTimeout(cfg.ImageTimeout),
		downloader.WithWorkers(cfg.DownloadWorkers),
		downloader.WithCollisionPolicy(policy),
		downloader.WithExif(cfg.ExtractExif),
		downloader.WithProgress(sink),
		downloader.WithLogger(p.logger),
	)

	p.AddSteps(
		NewCrawlStep(crawler.NewSpider(client, spiderOpts...), p.logger),
		NewDownloadStep(dl, sink),
	)
	return p, nil
}
