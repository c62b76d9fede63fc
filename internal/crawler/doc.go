// Package crawler maps a web site by bounded breadth-first traversal and
// collects every image address found on the visited pages.
//
// # Traversal
//
// The Spider starts from a seed page at depth 0 and follows <a href> links
// whose network location (host and port) equals the seed's. A page at depth d
// contributes links at depth d+1 only while d is below the maximum depth, so
// images on the deepest pages are still collected. Every page address is
// marked visited when it is enqueued, so no page is queued or fetched twice.
// Any resolved link containing "#" is ignored.
//
// Fetch failures (network errors, timeouts, HTTP status >= 400) drop the page
// and the crawl continues.
//
// # Components
//
//   - Spider: configuration and the Crawl entry point
//   - Frontier: FIFO queue of pages with their depth
//   - VisitedSet: concurrency-safe set of enqueued page addresses
//   - ImageSet: insertion-ordered set of image addresses
//   - Parser: HTML parser that extracts image candidates and anchors
//
// # Concurrency
//
// With WithWorkers(n) the pages of one depth level are fetched with at most n
// requests in flight. Results are applied in queue order, so the visited
// pages, their depths and the image order match a sequential crawl.
//
// # Usage
//
//	spider := crawler.NewSpider(client, crawler.WithMaxDepth(2))
//	result, err := spider.Crawl(ctx, "https://example.com")
package crawler
