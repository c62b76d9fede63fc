package model

import (
	"time"
)

// PageVisit is a page the crawl attempted to fetch.
type PageVisit struct {
	// URL is the absolute page address exactly as it was enqueued.
	URL string `json:"url"`

	// Depth is the number of link hops from the seed. The seed has depth 0.
	Depth int `json:"depth"`

	// Title is the text of the page's <title> element, if any.
	Title string `json:"title,omitempty"`

	// Error is set when the page could not be fetched or parsed.
	Error string `json:"error,omitempty"`
}

// ImageDownload is the result of downloading one image address.
type ImageDownload struct {
	// URL is the absolute image address collected by the crawler.
	URL string `json:"url"`

	// Filename is the sanitized local file name, empty when none could be derived.
	Filename string `json:"filename,omitempty"`

	// Outcome classifies the result.
	Outcome Outcome `json:"outcome"`

	// Bytes is the number of bytes written. Zero unless Outcome is OutcomeSaved.
	Bytes int64 `json:"bytes,omitempty"`

	// Digest is the hex SHA3-256 of the written content.
	Digest string `json:"digest,omitempty"`

	// Error describes why the image was skipped or failed.
	Error string `json:"error,omitempty"`

	// Metadata holds selected EXIF tags when EXIF extraction is enabled.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Run is the result of one crawl-and-download session for a single site.
//
// Design decision: The crawler and downloader fill disjoint fields of the same
// Run as pipeline steps. This keeps the one-way handoff explicit: the crawler
// writes Images, the downloader only reads them.
type Run struct {
	// ID is the history database identifier. Zero until the run is saved.
	ID int64 `json:"id,omitempty"`

	// Seed is the starting page address.
	Seed string `json:"seed"`

	// MaxDepth is the link-depth bound used for the crawl.
	MaxDepth int `json:"max_depth"`

	// OutputDir is the directory images were written to.
	OutputDir string `json:"output_dir"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended.
	FinishedAt time.Time `json:"finished_at"`

	// Pages lists the visited pages in traversal order.
	Pages []PageVisit `json:"pages"`

	// Images lists the unique image addresses in discovery order.
	Images []string `json:"images"`

	// Downloads holds one entry per image address once downloading is done.
	Downloads []ImageDownload `json:"downloads,omitempty"`

	// PerformedSteps records the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Interrupted is set when the run was cancelled before completion.
	Interrupted bool `json:"interrupted,omitempty"`

	// ErrorMessage holds the last step error, if any.
	ErrorMessage string `json:"error,omitempty"`
}

// NewRun creates a Run for the given seed and settings.
func NewRun(seed string, maxDepth int, outputDir string) *Run {
	return &Run{
		Seed:      seed,
		MaxDepth:  maxDepth,
		OutputDir: outputDir,
		StartedAt: time.Now(),
		Pages:     make([]PageVisit, 0),
		Images:    make([]string, 0),
	}
}

// Succeeded returns the number of images that were saved or already present.
func (r *Run) Succeeded() int {
	n := 0
	for _, d := range r.Downloads {
		if d.Outcome.Succeeded() {
			n++
		}
	}
	return n
}

// OutcomeCounts returns the number of downloads per outcome.
// Every outcome is present in the map, with zero when unused.
func (r *Run) OutcomeCounts() map[Outcome]int {
	counts := make(map[Outcome]int, len(outcomeNames))
	for _, o := range AllOutcomes() {
		counts[o] = 0
	}
	for _, d := range r.Downloads {
		counts[d.Outcome]++
	}
	return counts
}

// BytesWritten returns the total bytes written by saved downloads.
func (r *Run) BytesWritten() int64 {
	var total int64
	for _, d := range r.Downloads {
		total += d.Bytes
	}
	return total
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedPages returns the number of pages that could not be fetched.
func (r *Run) FailedPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Error != "" {
			n++
		}
	}
	return n
}

// MaxVisitedDepth returns the deepest page depth reached, or -1 with no pages.
func (r *Run) MaxVisitedDepth() int {
	deepest := -1
	for _, p := range r.Pages {
		if p.Depth > deepest {
			deepest = p.Depth
		}
	}
	return deepest
}
