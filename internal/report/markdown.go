package report

import (
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/imagecrawl/internal/model"
)

// maxMarkdownRows bounds the per-item tables so reports of large sites stay readable.
const maxMarkdownRows = 200

// MarkdownWriter outputs runs as Markdown.
//
// Design decision: nao1215/markdown builds tables, alerts and the mermaid
// chart, so the writer contains no hand-assembled Markdown syntax.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs run as a Markdown document.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeOutcomes(md, run)
	w.writePages(md, run)
	w.writeFailedPages(md, run)
	w.writeImages(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run) {
	md.H1("imagecrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Site", "`" + run.Seed + "`"},
		{"Output Directory", "`" + run.OutputDir + "`"},
		{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", run.Duration().Round(time.Millisecond).String()},
		{"Max Depth", strconv.Itoa(run.MaxDepth)},
		{"Pages Visited", strconv.Itoa(len(run.Pages))},
		{"Unique Images", strconv.Itoa(len(run.Images))},
		{"Status", statusText(run)},
	}
	if run.ID != 0 {
		rows = append(rows, []string{"Run ID", strconv.FormatInt(run.ID, 10)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, run *model.Run) {
	md.H2("Download Outcomes")
	md.PlainText("")

	counts := run.OutcomeCounts()
	rows := make([][]string, 0, len(counts)+1)
	for _, o := range model.AllOutcomes() {
		rows = append(rows, []string{OutcomeLabel(o), strconv.Itoa(counts[o])})
	}
	rows = append(rows, []string{"**Bytes Written**", "**" + humanize.Bytes(uint64(max(run.BytesWritten(), 0))) + "**"}) //nolint:gosec // clamped
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(run.Downloads) > 0 {
		w.writePieChart(md, counts)
	}
	w.writeAlert(md, run, counts)
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.Outcome]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Image Outcomes"),
		piechart.WithShowData(true),
	)
	for _, o := range model.AllOutcomes() {
		if counts[o] > 0 {
			chart.LabelAndIntValue(OutcomeLabel(o), uint64(counts[o])) //nolint:gosec // counts are non-negative
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.Run, counts map[model.Outcome]int) {
	switch {
	case run.Interrupted:
		md.Warningf("The run was interrupted. %d of %d images were handled before it stopped.",
			len(run.Downloads), len(run.Images))
	case run.ErrorMessage != "":
		md.Cautionf("The run stopped with an error: %s", run.ErrorMessage)
	case counts[model.OutcomeFailed] > 0:
		md.Importantf("%d image(s) could not be downloaded.", counts[model.OutcomeFailed])
	case len(run.Images) == 0:
		md.Note("No images were found on the crawled pages.")
	default:
		md.Tip("Every image was saved, already present, or skipped as non-image content.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, run *model.Run) {
	crawled := len(run.Pages) - run.FailedPages()
	if crawled == 0 {
		return
	}
	md.H2("Pages")
	md.PlainText("")

	rows := make([][]string, 0, min(crawled, maxMarkdownRows))
	for _, p := range run.Pages {
		if p.Error != "" {
			continue
		}
		if len(rows) == maxMarkdownRows {
			break
		}
		title := p.Title
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{truncateString(p.URL, 60), strconv.Itoa(p.Depth), truncateString(title, 50)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Title"},
		Rows:   rows,
	})
	if crawled > maxMarkdownRows {
		md.PlainTextf("*%d more pages not shown.*", crawled-maxMarkdownRows)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailedPages(md *markdown.Markdown, run *model.Run) {
	if run.FailedPages() == 0 {
		return
	}
	md.H2("Failed Pages")
	md.PlainText("")

	rows := make([][]string, 0, run.FailedPages())
	for _, p := range run.Pages {
		if p.Error == "" {
			continue
		}
		rows = append(rows, []string{truncateString(p.URL, 60), strconv.Itoa(p.Depth), truncateString(p.Error, 60)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeImages(md *markdown.Markdown, run *model.Run) {
	if len(run.Downloads) == 0 {
		return
	}
	md.H2("Images")
	md.PlainText("")

	rows := make([][]string, 0, min(len(run.Downloads), maxMarkdownRows))
	for _, d := range run.Downloads {
		if len(rows) == maxMarkdownRows {
			break
		}
		name := d.Filename
		if name == "" {
			name = "-"
		}
		size := "-"
		if d.Bytes > 0 {
			size = humanize.Bytes(uint64(d.Bytes))
		}
		rows = append(rows, []string{truncateString(name, 40), OutcomeLabel(d.Outcome), size, truncateString(d.URL, 60)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Outcome", "Size", "URL"},
		Rows:   rows,
	})
	if len(run.Downloads) > maxMarkdownRows {
		md.PlainTextf("*%d more images not shown.*", len(run.Downloads)-maxMarkdownRows)
	}
	md.PlainText("")

	for _, d := range run.Downloads {
		if len(d.Metadata) == 0 {
			continue
		}
		details := make([]string, 0, len(d.Metadata))
		for _, key := range slices.Sorted(maps.Keys(d.Metadata)) {
			details = append(details, key+": "+d.Metadata[key])
		}
		md.Details(d.Filename, strings.Join(details, "\n"))
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [imagecrawl](https://github.com/nao1215/imagecrawl)*")
}
