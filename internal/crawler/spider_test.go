package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/imagecrawl/internal/fetch"
	"github.com/nao1215/imagecrawl/internal/progress"
)

// newSite starts a server serving the given path -> HTML map. Unknown paths 404.
// {{.}} in a page body is replaced by the server URL.
func newSite(t *testing.T, pages map[string]string) (*httptest.Server, *sync.Map) {
	t.Helper()
	hits := &sync.Map{}
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		n.(*atomic.Int64).Add(1) //nolint:forcetypeassert // only *atomic.Int64 is stored
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{.}}", server.URL)))
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func hitCount(hits *sync.Map, path string) int64 {
	n, ok := hits.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load() //nolint:forcetypeassert // only *atomic.Int64 is stored
}

func newTestSpider(t *testing.T, opts ...SpiderOption) *Spider {
	t.Helper()
	client, err := fetch.NewClient()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	opts = append([]SpiderOption{WithDelay(0), WithPageTimeout(5 * time.Second)}, opts...)
	return NewSpider(client, opts...)
}

func visitedURLs(r *Result) []string {
	out := make([]string, len(r.Visited))
	for i, p := range r.Visited {
		out[i] = p.URL
	}
	return out
}

// TestSpiderCrawlDepth covers depth bounds, domain restriction and image collection.
func TestSpiderCrawlDepth(t *testing.T) {
	t.Parallel()

	other, otherHits := newSite(t, map[string]string{
		"/c": `<img src="/never.jpg">`,
	})

	site, _ := newSite(t, map[string]string{
		"/": `<title>Start</title><img data-src="/img/a1.jpg" src="/img/placeholder.gif">
<img src="/img/a1.jpg">
<a href="/b">B</a>
<a href="` + other.URL + `/c">C</a>
<a href="/b#top">B again</a>`,
		"/b": `<img src="/img/b1.jpg"><a href="/d">D</a><a href="/">home</a>`,
		"/d": `<img src="/img/d1.jpg"><a href="/e">E</a>`,
		"/e": `<img src="/img/e1.jpg">`,
	})
	seed := site.URL + "/"

	t.Run("depth 0 visits only the seed", func(t *testing.T) {
		t.Parallel()
		result, err := newTestSpider(t, WithMaxDepth(0)).Crawl(context.Background(), seed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := visitedURLs(result); len(got) != 1 || got[0] != seed {
			t.Fatalf("expected only seed, got %v", got)
		}
		if result.Visited[0].Title != "Start" {
			t.Errorf("expected seed title Start, got %q", result.Visited[0].Title)
		}
		if len(result.Images) != 1 || result.Images[0] != site.URL+"/img/a1.jpg" {
			t.Errorf("expected seed image only, got %v", result.Images)
		}
	})

	t.Run("depth 1 follows same-domain links only", func(t *testing.T) {
		t.Parallel()
		result, err := newTestSpider(t, WithMaxDepth(1)).Crawl(context.Background(), seed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := []string{seed, site.URL + "/b"}
		if strings.Join(visitedURLs(result), " ") != strings.Join(expected, " ") {
			t.Errorf("expected %v, got %v", expected, visitedURLs(result))
		}
		if hitCount(otherHits, "/c") != 0 {
			t.Error("off-domain page was fetched")
		}

		expectedImages := []string{site.URL + "/img/a1.jpg", site.URL + "/img/b1.jpg"}
		if strings.Join(result.Images, " ") != strings.Join(expectedImages, " ") {
			t.Errorf("expected %v, got %v", expectedImages, result.Images)
		}
	})

	t.Run("images on pages at max depth are collected", func(t *testing.T) {
		t.Parallel()
		result, err := newTestSpider(t, WithMaxDepth(2)).Crawl(context.Background(), seed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		depths := map[string]int{}
		for _, p := range result.Visited {
			if _, dup := depths[p.URL]; dup {
				t.Errorf("page %s visited twice", p.URL)
			}
			depths[p.URL] = p.Depth
		}
		if depths[seed] != 0 || depths[site.URL+"/b"] != 1 || depths[site.URL+"/d"] != 2 {
			t.Errorf("unexpected depths %v", depths)
		}
		if _, ok := depths[site.URL+"/e"]; ok {
			t.Error("page at depth 3 must not be visited")
		}

		found := false
		for _, img := range result.Images {
			if img == site.URL+"/img/d1.jpg" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected image from depth-2 page, got %v", result.Images)
		}
	})
}

// TestSpiderFragmentLinks verifies links containing '#' never enter the frontier.
func TestSpiderFragmentLinks(t *testing.T) {
	t.Parallel()

	site, hits := newSite(t, map[string]string{
		"/":     `<a href="/page#x">x</a><a href="/other">o</a>`,
		"/page": `<img src="p.jpg">`,
	})

	result, err := newTestSpider(t, WithMaxDepth(3)).Crawl(context.Background(), site.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hitCount(hits, "/page") != 0 {
		t.Error("link with fragment was followed")
	}
	if len(result.Visited) != 2 {
		t.Errorf("expected seed and /other, got %v", visitedURLs(result))
	}
}

// TestSpiderFailureIsolation verifies failed pages are recorded and the crawl continues.
func TestSpiderFailureIsolation(t *testing.T) {
	t.Parallel()

	site, _ := newSite(t, map[string]string{
		"/":   `<a href="/missing">m</a><a href="/ok">ok</a>`,
		"/ok": `<img src="ok.jpg">`,
	})

	result, err := newTestSpider(t, WithMaxDepth(1)).Crawl(context.Background(), site.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Visited) != 3 {
		t.Fatalf("expected 3 attempted pages, got %v", visitedURLs(result))
	}
	if result.Visited[1].Err == nil || !errors.Is(result.Visited[1].Err, fetch.ErrHTTPStatus) {
		t.Errorf("expected HTTP status error for /missing, got %v", result.Visited[1].Err)
	}
	if result.Fetched() != 2 {
		t.Errorf("expected 2 fetched pages, got %d", result.Fetched())
	}
	if len(result.Images) != 1 || result.Images[0] != site.URL+"/ok.jpg" {
		t.Errorf("unexpected images %v", result.Images)
	}
}

// TestSpiderPatterns verifies ignore patterns stop link-following.
func TestSpiderPatterns(t *testing.T) {
	t.Parallel()

	site, hits := newSite(t, map[string]string{
		"/":         `<a href="/tag/cats">t</a><a href="/albums/1">a</a>`,
		"/tag/cats": `<img src="t.jpg">`,
		"/albums/1": `<img src="a.jpg">`,
	})

	result, err := newTestSpider(t, WithMaxDepth(1), WithIgnorePatterns([]string{"/tag/*"})).
		Crawl(context.Background(), site.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hitCount(hits, "/tag/cats") != 0 {
		t.Error("ignored path was fetched")
	}
	if len(result.Visited) != 2 {
		t.Errorf("expected 2 pages, got %v", visitedURLs(result))
	}
}

// TestSpiderProgressAndDelay verifies sink events and the politeness delay.
func TestSpiderProgressAndDelay(t *testing.T) {
	t.Parallel()

	site, _ := newSite(t, map[string]string{
		"/":  `<a href="/a">a</a><a href="/b">b</a><a href="/gone">g</a>`,
		"/a": ``,
		"/b": ``,
	})

	var counter progress.Counter
	spider := newTestSpider(t, WithMaxDepth(1), WithProgress(&counter), WithDelay(40*time.Millisecond))

	start := time.Now()
	if _, err := spider.Crawl(context.Background(), site.URL+"/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	if counter.Pages() != 3 {
		t.Errorf("expected 3 page events, got %d", counter.Pages())
	}
	// Every successful page is followed by a delay while pages remain queued;
	// the failing /gone page is last and adds none.
	if elapsed < 120*time.Millisecond {
		t.Errorf("expected three delays, took %v", elapsed)
	}
}

// TestSpiderMaxPages verifies the page cap.
func TestSpiderMaxPages(t *testing.T) {
	t.Parallel()

	site, _ := newSite(t, map[string]string{
		"/":  `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>`,
		"/a": ``, "/b": ``, "/c": ``,
	})

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			result, err := newTestSpider(t, WithMaxDepth(1), WithMaxPages(2), WithWorkers(workers)).
				Crawl(context.Background(), site.URL+"/")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Fetched() != 2 {
				t.Errorf("expected 2 pages, got %v", visitedURLs(result))
			}
		})
	}
}

// TestTraversalSkipsEntriesBeyondMaxDepth verifies over-deep frontier entries
// are dropped without ending the crawl.
func TestTraversalSkipsEntriesBeyondMaxDepth(t *testing.T) {
	t.Parallel()

	const base = "https://example.com"
	f := &fakeFetcher{pages: map[string]string{
		base + "/":     `<img src="/a.jpg"><a href="/next">next</a>`,
		base + "/next": `<img src="/b.jpg">`,
		base + "/deep": `<img src="/deep.jpg">`,
	}}

	for _, workers := range []int{1, 2} {
		spider := NewSpider(f, WithMaxDepth(1), WithDelay(0), WithWorkers(workers))
		tr := newTraversal(spider, base+"/", "example.com")
		tr.frontier = &Frontier{}
		tr.frontier.Push(Page{URL: base + "/deep", Depth: 2})
		tr.frontier.Push(Page{URL: base + "/deep", Depth: 3})
		tr.frontier.Push(Page{URL: base + "/", Depth: 0})

		if err := tr.run(context.Background()); err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}

		var got []string
		for _, p := range tr.pages {
			got = append(got, fmt.Sprintf("%s@%d", strings.TrimPrefix(p.URL, base), p.Depth))
		}
		if want := "/@0 /next@1"; strings.Join(got, " ") != want {
			t.Errorf("workers=%d: expected %q, got %q", workers, want, strings.Join(got, " "))
		}
		if imgs := strings.Join(tr.images.List(), " "); strings.Contains(imgs, "deep.jpg") {
			t.Errorf("workers=%d: over-deep page was crawled: %s", workers, imgs)
		}
	}
}

// fakeFetcher serves pages from memory and counts requests.
type fakeFetcher struct {
	pages map[string]string
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeFetcher) GetPage(ctx context.Context, rawURL string, _ time.Duration) (*fetch.Page, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, &fetch.StatusError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return &fetch.Page{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

// wideSite builds a three-level tree with shared children and images.
func wideSite() map[string]string {
	const base = "https://example.com"
	pages := map[string]string{}
	var root strings.Builder
	for i := range 6 {
		fmt.Fprintf(&root, `<a href="/p%d">p</a>`, i)
	}
	root.WriteString(`<img src="/root.jpg">`)
	pages[base+"/"] = root.String()
	for i := range 6 {
		pages[fmt.Sprintf("%s/p%d", base, i)] = fmt.Sprintf(
			`<img src="/shared.jpg"><img src="/p%d.jpg"><a href="/q%d">q</a><a href="/q%d">q</a><a href="/">home</a>`,
			i, i%3, (i+1)%3)
	}
	for i := range 3 {
		pages[fmt.Sprintf("%s/q%d", base, i)] = fmt.Sprintf(`<img src="/q%d.jpg">`, i)
	}
	return pages
}

// TestSpiderConcurrentMatchesSequential verifies level-parallel fetching is deterministic.
func TestSpiderConcurrentMatchesSequential(t *testing.T) {
	t.Parallel()

	crawl := func(workers int) *Result {
		f := &fakeFetcher{pages: wideSite(), delay: time.Millisecond}
		spider := NewSpider(f, WithMaxDepth(2), WithDelay(0), WithWorkers(workers))
		result, err := spider.Crawl(context.Background(), "https://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if int(f.calls.Load()) != len(result.Visited) {
			t.Errorf("workers=%d: %d fetches for %d pages", workers, f.calls.Load(), len(result.Visited))
		}
		return result
	}

	sequential := crawl(1)
	parallel := crawl(4)

	if len(sequential.Visited) != 10 {
		t.Fatalf("expected 10 pages, got %d", len(sequential.Visited))
	}
	for i := range sequential.Visited {
		s, p := sequential.Visited[i], parallel.Visited[i]
		if s.URL != p.URL || s.Depth != p.Depth {
			t.Errorf("page %d differs: %+v vs %+v", i, s, p)
		}
	}
	if strings.Join(sequential.Images, " ") != strings.Join(parallel.Images, " ") {
		t.Errorf("image order differs:\n%v\n%v", sequential.Images, parallel.Images)
	}
	if len(sequential.Images) != 11 {
		t.Errorf("expected 11 unique images, got %d", len(sequential.Images))
	}
}

// TestSpiderCancellation verifies a cancelled crawl returns partial results.
func TestSpiderCancellation(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: wideSite()}
	ctx, cancel := context.WithCancel(context.Background())

	sink := &cancelAfter{n: 1, cancel: cancel}
	result, err := NewSpider(f, WithMaxDepth(2), WithDelay(time.Second), WithProgress(sink)).
		Crawl(ctx, "https://example.com/")

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || len(result.Visited) != 1 {
		t.Fatalf("expected partial result with the seed, got %+v", result)
	}
	if len(result.Images) != 1 {
		t.Errorf("expected seed image, got %v", result.Images)
	}
}

type cancelAfter struct {
	progress.Nop
	n      int
	seen   int
	cancel context.CancelFunc
}

func (c *cancelAfter) PageCrawled(string, int) {
	c.seen++
	if c.seen >= c.n {
		c.cancel()
	}
}

// TestNormalizeSeed tests seed normalization.
func TestNormalizeSeed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"example.com", "https://example.com", false},
		{"  example.com/gallery ", "https://example.com/gallery", false},
		{"http://example.com:8080/a", "http://example.com:8080/a", false},
		{"https://example.com/", "https://example.com/", false},
		{"httpbin.org", "", true},
		{"", "", true},
		{"https://", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeSeed(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidSeed) {
					t.Errorf("expected ErrInvalidSeed, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

// TestSpiderInvalidSeed verifies Crawl rejects a seed without host.
func TestSpiderInvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := NewSpider(&fakeFetcher{}).Crawl(context.Background(), "https://")
	if !errors.Is(err, ErrInvalidSeed) {
		t.Errorf("expected ErrInvalidSeed, got %v", err)
	}
}
