package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/imagecrawl/internal/model"
)

// Writer outputs a run in one format.
type Writer interface {
	// Write renders run to the configured destination and returns the
	// number of bytes written.
	Write(run *model.Run) (int, error)
}

// MultiWriter writes a run to several Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs run to every writer. It stops at the first error.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// CrawlFinishedLine returns the line printed when crawling ends.
func CrawlFinishedLine(run *model.Run) string {
	return fmt.Sprintf("Crawl finished. Found %d pages and %d unique image URLs.", len(run.Pages), len(run.Images))
}

// DownloadCompleteLine returns the line printed when downloading ends.
func DownloadCompleteLine(run *model.Run) string {
	return fmt.Sprintf("Download process complete. Successfully downloaded or found %d images in '%s'.",
		run.Succeeded(), run.OutputDir)
}

// OutcomeLabel returns a display label such as "Already Present".
func OutcomeLabel(o model.Outcome) string {
	return cases.Title(language.English).String(strings.ReplaceAll(o.String(), "_", " "))
}

// statusText describes how the run ended.
func statusText(run *model.Run) string {
	switch {
	case run.Interrupted:
		return "Interrupted (partial results)"
	case run.ErrorMessage != "":
		return "Error - " + run.ErrorMessage
	default:
		return "Complete"
	}
}

// truncateString shortens s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
