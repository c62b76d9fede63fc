package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// Sink receives progress events.
type Sink interface {
	// PageCrawled is called once for every successfully fetched page.
	PageCrawled(url string, depth int)

	// ImageBytes is called as image content is written to disk.
	ImageBytes(n int64)

	// ImageDone is called once per image address, whatever its outcome.
	ImageDone()
}

// Nop discards all events.
type Nop struct{}

// PageCrawled implements Sink.
func (Nop) PageCrawled(string, int) {}

// ImageBytes implements Sink.
func (Nop) ImageBytes(int64) {}

// ImageDone implements Sink.
func (Nop) ImageDone() {}

// Counter counts events. It is useful on its own and as the state behind Terminal.
type Counter struct {
	pages  atomic.Int64
	bytes  atomic.Int64
	images atomic.Int64
}

// PageCrawled implements Sink.
func (c *Counter) PageCrawled(string, int) { c.pages.Add(1) }

// ImageBytes implements Sink.
func (c *Counter) ImageBytes(n int64) { c.bytes.Add(n) }

// ImageDone implements Sink.
func (c *Counter) ImageDone() { c.images.Add(1) }

// Pages returns the number of PageCrawled events.
func (c *Counter) Pages() int64 { return c.pages.Load() }

// Bytes returns the sum of ImageBytes events.
func (c *Counter) Bytes() int64 { return c.bytes.Load() }

// Images returns the number of ImageDone events.
func (c *Counter) Images() int64 { return c.images.Load() }

const (
	barFilled   = "█"
	barEmpty    = "░"
	barWidth    = 20
	defaultCols = 80
)

// Terminal renders a single status line, rewritten in place with "\r".
//
// Design decision: Only one line is ever drawn so the renderer does not need
// cursor movement escape codes and degrades to plain carriage returns.
type Terminal struct {
	Counter

	mu    sync.Mutex
	out   io.Writer
	width int
	total int
	drawn bool
}

// NewTerminal creates a Terminal writing to out, truncating lines to width
// columns. A non-positive width uses 80.
func NewTerminal(out io.Writer, width int) *Terminal {
	if width <= 0 {
		width = defaultCols
	}
	return &Terminal{out: out, width: width}
}

// New returns a Terminal on f when f is a terminal, otherwise Nop.
func New(f *os.File) Sink {
	fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return Nop{}
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = defaultCols
	}
	return NewTerminal(f, width)
}

// SetImageTotal sets the number of images the download bar counts toward.
func (t *Terminal) SetImageTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = n
}

// PageCrawled implements Sink.
func (t *Terminal) PageCrawled(url string, depth int) {
	t.Counter.PageCrawled(url, depth)
	t.draw(fmt.Sprintf("Crawling: %d pages [depth %d] %s", t.Pages(), depth, url))
}

// ImageBytes implements Sink.
func (t *Terminal) ImageBytes(n int64) {
	t.Counter.ImageBytes(n)
	t.draw(t.downloadLine())
}

// ImageDone implements Sink.
func (t *Terminal) ImageDone() {
	t.Counter.ImageDone()
	t.draw(t.downloadLine())
}

// Finish ends the status line so later output starts on a fresh line.
func (t *Terminal) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn {
		fmt.Fprintln(t.out)
	}
	t.drawn = false
}

func (t *Terminal) downloadLine() string {
	t.mu.Lock()
	total := t.total
	t.mu.Unlock()
	return fmt.Sprintf("Downloading: %s %s", Bar(int(t.Images()), total, barWidth), humanize.Bytes(uint64(max(t.Bytes(), 0)))) //nolint:gosec // clamped above
}

func (t *Terminal) draw(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := []rune(line); len(r) > t.width-1 {
		line = string(r[:t.width-1])
	}
	fmt.Fprintf(t.out, "\r%-*s", t.width-1, line)
	t.drawn = true
}

// Bar renders "[███░░] done/total". A zero total renders an empty bar.
func Bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(done*width/total, width)
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(barFilled, filled),
		strings.Repeat(barEmpty, width-filled),
		done, total)
}
