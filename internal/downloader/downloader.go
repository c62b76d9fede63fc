package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imagecrawl/internal/fetch"
	"github.com/nao1215/imagecrawl/internal/model"
	"github.com/nao1215/imagecrawl/internal/progress"
)

// Reasons recorded for skipped images.
var (
	// ErrNoFilename means no usable file name could be derived from the address.
	ErrNoFilename = errors.New("no usable file name in URL path")

	// ErrNotImage means the response Content-Type does not start with "image".
	ErrNotImage = errors.New("response is not image content")
)

// ImageFetcher opens a streaming response. *fetch.Client implements it.
type ImageFetcher interface {
	Get(ctx context.Context, rawURL string, idleTimeout time.Duration) (*fetch.Response, error)
}

// Result is the outcome of downloading one image address.
type Result = model.ImageDownload

// Downloader writes images into a single output directory.
//
// Design decision: DownloadAll hands all addresses sharing a file name to a
// single worker, in input order. DownloadImage additionally holds a per-name
// lock around the existence check and the write, so direct concurrent callers
// never interleave on one file.
type Downloader struct {
	fetcher   ImageFetcher
	outputDir string

	// timeout is the idle-read timeout per image.
	timeout time.Duration

	// workers bounds concurrent downloads in DownloadAll.
	workers int

	collision   CollisionPolicy
	extractExif bool
	sink        progress.Sink
	logger      *slog.Logger
	locks       *nameLocks
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithTimeout sets the idle-read timeout for each image.
func WithTimeout(d time.Duration) Option {
	return func(dl *Downloader) {
		dl.timeout = d
	}
}

// WithWorkers sets the number of concurrent downloads.
func WithWorkers(n int) Option {
	return func(dl *Downloader) {
		if n > 0 {
			dl.workers = n
		}
	}
}

// WithCollisionPolicy sets how file names are derived.
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(dl *Downloader) {
		dl.collision = p
	}
}

// WithExif enables EXIF extraction from saved images.
func WithExif(enabled bool) Option {
	return func(dl *Downloader) {
		dl.extractExif = enabled
	}
}

// WithProgress sets the sink for byte and completion events.
func WithProgress(sink progress.Sink) Option {
	return func(dl *Downloader) {
		if sink != nil {
			dl.sink = sink
		}
	}
}

// WithLogger sets the logger for per-image failures.
func WithLogger(logger *slog.Logger) Option {
	return func(dl *Downloader) {
		if logger != nil {
			dl.logger = logger
		}
	}
}

// NewDownloader creates a Downloader writing into outputDir, which must exist.
func NewDownloader(fetcher ImageFetcher, outputDir string, opts ...Option) *Downloader {
	dl := &Downloader{
		fetcher:   fetcher,
		outputDir: outputDir,
		timeout:   20 * time.Second,
		workers:   4,
		collision: CollisionSkip,
		sink:      progress.Nop{},
		logger:    slog.Default(),
		locks:     newNameLocks(),
	}
	for _, opt := range opts {
		opt(dl)
	}
	return dl
}

// Summary collects the results of DownloadAll in input order.
type Summary struct {
	Results []Result
}

// Succeeded returns the number of images saved or already present.
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome.Succeeded() {
			n++
		}
	}
	return n
}

// Count returns the number of results with the given outcome.
func (s *Summary) Count(o model.Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// DownloadAll downloads every address with bounded concurrency. Every input
// address gets exactly one result; addresses not started before ctx was
// cancelled are Failed with the context error.
//
// Addresses that derive the same file name are handled by one worker in
// input order, so the first of them is the one saved, as in a sequential run.
func (d *Downloader) DownloadAll(ctx context.Context, images []string) *Summary {
	results := make([]Result, len(images))
	done := make([]bool, len(images))

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, group := range groupByFilename(images, d.collision) {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, i := range group {
				if ctx.Err() != nil {
					return nil
				}
				results[i] = d.DownloadImage(ctx, images[i])
				done[i] = true
				d.sink.ImageDone()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	for i, img := range images {
		if !done[i] {
			results[i] = Result{URL: img, Outcome: model.OutcomeFailed, Error: context.Cause(ctx).Error()}
		}
	}
	return &Summary{Results: results}
}

// groupByFilename partitions the indices of images by derived file name.
// Groups are ordered by first occurrence and keep input order inside. An
// address without a usable name forms a group of its own.
func groupByFilename(images []string, policy CollisionPolicy) [][]int {
	groups := make([][]int, 0, len(images))
	byName := make(map[string]int, len(images))
	for i, img := range images {
		name := DeriveFilename(img, policy)
		if name == "" {
			groups = append(groups, []int{i})
			continue
		}
		if g, ok := byName[name]; ok {
			groups[g] = append(groups[g], i)
			continue
		}
		byName[name] = len(groups)
		groups = append(groups, []int{i})
	}
	return groups
}

// DownloadImage downloads a single address.
func (d *Downloader) DownloadImage(ctx context.Context, rawURL string) Result {
	result := Result{URL: rawURL}

	name := DeriveFilename(rawURL, d.collision)
	if name == "" {
		return d.finish(result, model.OutcomeSkipped, ErrNoFilename)
	}
	result.Filename = name

	unlock := d.locks.lock(name)
	defer unlock()

	target := filepath.Join(d.outputDir, name)
	if _, err := os.Stat(target); err == nil {
		return d.finish(result, model.OutcomeAlreadyPresent, nil)
	}

	resp, err := d.fetcher.Get(ctx, rawURL, d.timeout)
	if err != nil {
		return d.finish(result, model.OutcomeFailed, err)
	}
	defer resp.Close()

	if !strings.HasPrefix(strings.ToLower(resp.ContentType), "image") {
		return d.finish(result, model.OutcomeSkipped, fmt.Errorf("%w: %q", ErrNotImage, resp.ContentType))
	}

	written, digest, err := d.writeFile(target, resp.Body)
	if err != nil {
		return d.finish(result, model.OutcomeFailed, err)
	}
	result.Bytes = written
	result.Digest = digest

	if d.extractExif {
		meta, err := ExtractExif(target)
		if err != nil {
			d.logger.Debug("exif extraction failed", "url", rawURL, "error", err)
		}
		result.Metadata = meta
	}

	return d.finish(result, model.OutcomeSaved, nil)
}

func (d *Downloader) finish(result Result, outcome model.Outcome, err error) Result {
	result.Outcome = outcome
	if err != nil {
		result.Error = err.Error()
		d.logger.Debug("image not saved",
			"url", result.URL,
			"outcome", outcome.String(),
			"error", err)
	}
	return result
}

// writeFile streams body into a temporary file next to target and renames it
// into place. It returns the byte count and hex SHA3-256 digest.
func (d *Downloader) writeFile(target string, body io.Reader) (int64, string, error) {
	tmp, err := os.CreateTemp(d.outputDir, ".imagecrawl-*.part")
	if err != nil {
		return 0, "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha3.New256()
	w := io.MultiWriter(tmp, hasher, &progressWriter{sink: d.sink})
	written, err := io.Copy(w, body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to write %s: %w", filepath.Base(target), err)
	}

	if err := tmp.Chmod(0o644); err != nil { //nolint:gosec // images are meant to be readable
		return 0, "", fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return 0, "", fmt.Errorf("failed to move image into place: %w", err)
	}
	committed = true

	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// progressWriter reports written byte counts to a sink.
type progressWriter struct {
	sink progress.Sink
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.sink.ImageBytes(int64(len(p)))
	return len(p), nil
}

// nameLocks is a set of mutexes keyed by file name. Entries are removed
// once no goroutine holds or waits for them.
type nameLocks struct {
	mu      sync.Mutex
	entries map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{entries: make(map[string]*nameLock)}
}

// lock acquires the mutex for name and returns its release function.
func (l *nameLocks) lock(name string) func() {
	l.mu.Lock()
	e, ok := l.entries[name]
	if !ok {
		e = &nameLock{}
		l.entries[name] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, name)
		}
		l.mu.Unlock()
	}
}
