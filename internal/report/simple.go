package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/imagecrawl/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs the plain-text summary. By default it writes only the
// two closing lines; verbose mode adds a breakdown and every page and image
// that did not succeed.
type SimpleWriter struct {
	baseWriter
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the detailed breakdown.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs run as text.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder

	if w.verbose {
		w.writeHeader(&sb, run)
		w.writePages(&sb, run)
		w.writeImages(&sb, run)
		w.writeProblems(&sb, run)
	}
	sb.WriteString(CrawlFinishedLine(run))
	sb.WriteString("\n")
	sb.WriteString(DownloadCompleteLine(run))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.Run) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                          IMAGECRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:      %s\n", run.Seed)
	fmt.Fprintf(sb, "Output:    %s\n", run.OutputDir)
	fmt.Fprintf(sb, "Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:    %s\n", statusText(run))
	if run.ID != 0 {
		fmt.Fprintf(sb, "Run ID:    %d\n", run.ID)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, run *model.Run) {
	section(sb, "PAGES")
	fmt.Fprintf(sb, "  Visited:  %d (%d failed)\n", len(run.Pages), run.FailedPages())
	fmt.Fprintf(sb, "  Deepest:  %d of max %d\n", max(run.MaxVisitedDepth(), 0), run.MaxDepth)
	sb.WriteString("\n")
	for _, p := range run.Pages {
		if p.Error != "" {
			continue
		}
		if p.Title == "" {
			fmt.Fprintf(sb, "  [%d] %s\n", p.Depth, p.URL)
			continue
		}
		fmt.Fprintf(sb, "  [%d] %s\n      %s\n", p.Depth, p.URL, p.Title)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeImages(sb *strings.Builder, run *model.Run) {
	section(sb, "IMAGES")
	fmt.Fprintf(sb, "  %-16s %d\n", "Found:", len(run.Images))
	counts := run.OutcomeCounts()
	for _, o := range model.AllOutcomes() {
		fmt.Fprintf(sb, "  %-16s %d\n", OutcomeLabel(o)+":", counts[o])
	}
	fmt.Fprintf(sb, "  %-16s %s\n", "Written:", humanize.Bytes(uint64(max(run.BytesWritten(), 0)))) //nolint:gosec // clamped
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeProblems(sb *strings.Builder, run *model.Run) {
	var lines []string
	for _, p := range run.Pages {
		if p.Error != "" {
			lines = append(lines, fmt.Sprintf("  [page] %s\n         %s\n", p.URL, p.Error))
		}
	}
	for _, d := range run.Downloads {
		if d.Outcome == model.OutcomeSkipped || d.Outcome == model.OutcomeFailed {
			lines = append(lines, fmt.Sprintf("  [%s] %s\n         %s\n", d.Outcome, d.URL, d.Error))
		}
	}
	if len(lines) == 0 {
		return
	}

	section(sb, "PROBLEMS")
	for _, l := range lines {
		sb.WriteString(l)
	}
	sb.WriteString("\n")
}
