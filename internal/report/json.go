package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/imagecrawl/internal/model"
)

// Summary holds totals computed from a run.
type Summary struct {
	Pages           int                   `json:"pages"`
	FailedPages     int                   `json:"failed_pages"`
	DeepestPage     int                   `json:"deepest_page"`
	Images          int                   `json:"images"`
	Outcomes        map[model.Outcome]int `json:"outcomes"`
	Succeeded       int                   `json:"succeeded"`
	BytesWritten    int64                 `json:"bytes_written"`
	DurationSeconds float64               `json:"duration_seconds"`
}

// NewSummary computes the totals of run.
func NewSummary(run *model.Run) Summary {
	return Summary{
		Pages:           len(run.Pages),
		FailedPages:     run.FailedPages(),
		DeepestPage:     run.MaxVisitedDepth(),
		Images:          len(run.Images),
		Outcomes:        run.OutcomeCounts(),
		Succeeded:       run.Succeeded(),
		BytesWritten:    run.BytesWritten(),
		DurationSeconds: run.Duration().Seconds(),
	}
}

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	// Version is the imagecrawl version that produced the run.
	Version string `json:"version,omitempty"`

	Summary Summary    `json:"summary"`
	Run     *model.Run `json:"run"`
}

// JSONWriter outputs runs as JSON.
type JSONWriter struct {
	baseWriter
	version      string
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs run wrapped in a JSONReport.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	doc := JSONReport{
		Version: w.version,
		Summary: NewSummary(run),
		Run:     run,
	}

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
