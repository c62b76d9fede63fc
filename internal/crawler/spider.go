package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imagecrawl/internal/fetch"
	"github.com/nao1215/imagecrawl/internal/progress"
)

// ErrInvalidSeed is returned when the starting address has no host or
// is not an http(s) URL.
var ErrInvalidSeed = errors.New("invalid seed URL")

// PageFetcher fetches a page body. *fetch.Client implements it.
type PageFetcher interface {
	GetPage(ctx context.Context, rawURL string, timeout time.Duration) (*fetch.Page, error)
}

// Spider crawls one site breadth-first and collects image addresses.
// It holds only configuration; every Crawl call starts from empty state,
// so a Spider can be reused.
//
// Design decision: We call it "Spider" rather than "Crawler" to keep it
// distinct from the package name (crawler.NewSpider vs crawler.NewCrawler).
type Spider struct {
	fetcher PageFetcher

	// maxDepth limits how many link hops are followed from the seed.
	// 0 means only the seed is fetched.
	maxDepth int

	// maxPages caps the number of successfully fetched pages. 0 means no cap.
	maxPages int

	// delay is the pause after each successfully fetched page.
	delay time.Duration

	// pageTimeout bounds each page fetch.
	pageTimeout time.Duration

	// workers is the number of pages of one level fetched concurrently.
	workers int

	// imageAttributes is the <img> attribute preference list.
	imageAttributes []string

	filter linkFilter
	sink   progress.Sink
	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages caps the number of fetched pages. 0 disables the cap.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the pause after each successfully fetched page.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithPageTimeout sets the timeout for each page fetch.
func WithPageTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.pageTimeout = d
	}
}

// WithWorkers sets how many pages of one depth level are fetched concurrently.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithImageAttributes replaces the <img> attribute preference list.
func WithImageAttributes(attrs []string) SpiderOption {
	return func(s *Spider) {
		if len(attrs) > 0 {
			s.imageAttributes = attrs
		}
	}
}

// WithIgnorePatterns sets link path patterns that are never followed.
// Patterns use glob syntax (e.g., "/tag/*", "*.pdf").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.ignore = patterns
	}
}

// WithFollowPatterns restricts link-following to paths matching at least one pattern.
// An empty slice allows every path not ignored.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.follow = patterns
	}
}

// WithProgress sets the sink notified after each crawled page.
func WithProgress(sink progress.Sink) SpiderOption {
	return func(s *Spider) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the logger for per-page failures.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches pages with fetcher.
func NewSpider(fetcher PageFetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:         fetcher,
		maxDepth:        2,
		delay:           500 * time.Millisecond,
		pageTimeout:     10 * time.Second,
		workers:         1,
		imageAttributes: []string{"data-src", "data-lazyload", "src"},
		sink:            progress.Nop{},
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Result is the outcome of a crawl.
type Result struct {
	// Seed is the normalized starting address.
	Seed string

	// Visited lists every page the crawl attempted, in traversal order.
	// Pages that failed carry a non-nil Err.
	Visited []Page

	// Images lists the unique image addresses in discovery order.
	Images []string
}

// Fetched returns the number of visited pages without an error.
func (r *Result) Fetched() int {
	n := 0
	for _, p := range r.Visited {
		if p.Err == nil {
			n++
		}
	}
	return n
}

// NormalizeSeed prepends "https://" when raw does not start with "http",
// then checks that the result is an http(s) URL with a host.
func NormalizeSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeed, raw)
	}
	return u.String(), nil
}

// Crawl traverses the site reachable from seed and returns the visited pages
// and unique image addresses. If ctx is cancelled the partial result is
// returned together with ctx.Err().
func (s *Spider) Crawl(ctx context.Context, seed string) (*Result, error) {
	normalized, err := NormalizeSeed(seed)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	t := newTraversal(s, normalized, u.Host)
	err = t.run(ctx)
	return &Result{
		Seed:    normalized,
		Visited: t.pages,
		Images:  t.images.List(),
	}, err
}

// traversal is the state of one crawl.
type traversal struct {
	spider   *Spider
	domain   string
	visited  *VisitedSet
	frontier *Frontier
	images   *ImageSet
	pages    []Page
	fetched  int
}

func newTraversal(s *Spider, seed, domain string) *traversal {
	t := &traversal{
		spider:   s,
		domain:   domain,
		visited:  NewVisitedSet(),
		frontier: &Frontier{},
		images:   NewImageSet(),
		pages:    make([]Page, 0),
	}
	t.visited.MarkIfNotVisited(seed)
	t.frontier.Push(Page{URL: seed, Depth: 0})
	return t
}

// pageResult is the fetch-and-parse outcome for one frontier entry.
type pageResult struct {
	parsed *ParseResult
	err    error
}

func (t *traversal) run(ctx context.Context) error {
	for t.frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		if t.capReached() {
			return nil
		}

		// Entries beyond the depth bound are dropped; keep draining.
		batch := t.nextBatch()
		if len(batch) == 0 {
			continue
		}

		results := t.fetchBatch(ctx, batch)
		succeeded := 0
		for i, item := range batch {
			if t.apply(item, results[i]) {
				succeeded++
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if succeeded > 0 && t.frontier.Len() > 0 && t.spider.delay > 0 {
			timer := time.NewTimer(t.spider.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

func (t *traversal) capReached() bool {
	return t.spider.maxPages > 0 && t.fetched >= t.spider.maxPages
}

// nextBatch pops up to workers pages that share the head's depth. With a
// page cap the batch never exceeds the remaining allowance, so the cap is
// honored exactly regardless of concurrency.
func (t *traversal) nextBatch() []Page {
	limit := t.spider.workers
	if t.spider.maxPages > 0 {
		limit = min(limit, t.spider.maxPages-t.fetched)
	}

	batch := make([]Page, 0, limit)
	for len(batch) < limit {
		head, ok := t.frontier.Peek()
		if !ok {
			break
		}
		if len(batch) > 0 && head.Depth != batch[0].Depth {
			break
		}
		t.frontier.Pop()
		if head.Depth > t.spider.maxDepth {
			continue
		}
		batch = append(batch, head)
	}
	return batch
}

func (t *traversal) fetchBatch(ctx context.Context, batch []Page) []pageResult {
	results := make([]pageResult, len(batch))
	if len(batch) == 1 {
		results[0] = t.fetchOne(ctx, batch[0])
		return results
	}

	var g errgroup.Group
	g.SetLimit(t.spider.workers)
	for i, item := range batch {
		g.Go(func() error {
			results[i] = t.fetchOne(ctx, item)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors
	return results
}

func (t *traversal) fetchOne(ctx context.Context, item Page) pageResult {
	page, err := t.spider.fetcher.GetPage(ctx, item.URL, t.spider.pageTimeout)
	if err != nil {
		return pageResult{err: err}
	}
	parser, err := NewParser(item.URL, t.spider.imageAttributes)
	if err != nil {
		return pageResult{err: err}
	}
	parsed, err := parser.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return pageResult{err: fmt.Errorf("failed to parse %s: %w", item.URL, err)}
	}
	return pageResult{parsed: parsed}
}

// apply records the outcome for item in frontier order and enqueues its links.
// It reports whether the page was crawled successfully.
func (t *traversal) apply(item Page, res pageResult) bool {
	if res.err != nil {
		item.Err = res.err
		t.pages = append(t.pages, item)
		t.spider.logger.Debug("page fetch failed",
			"url", item.URL,
			"depth", item.Depth,
			"error", res.err)
		return false
	}

	item.Title = res.parsed.Title
	t.pages = append(t.pages, item)
	t.fetched++

	for _, img := range res.parsed.Images {
		t.images.Add(img)
	}

	if item.Depth < t.spider.maxDepth {
		for _, link := range res.parsed.Links {
			if t.shouldEnqueue(link) && t.visited.MarkIfNotVisited(link) {
				t.frontier.Push(Page{URL: link, Depth: item.Depth + 1})
			}
		}
	}

	t.spider.sink.PageCrawled(item.URL, item.Depth)
	return true
}

// shouldEnqueue reports whether link is on the crawl domain, fragment free
// and allowed by the link patterns.
func (t *traversal) shouldEnqueue(link string) bool {
	if strings.Contains(link, "#") {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || u.Host != t.domain {
		return false
	}
	return t.spider.filter.allows(u)
}
