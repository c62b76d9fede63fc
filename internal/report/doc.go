// Package report renders a finished run for the operator.
//
// Writers for different output formats:
//   - SimpleWriter: the closing summary lines, plus a breakdown in verbose mode
//   - JSONWriter: the complete run with computed totals, for tooling
//   - MarkdownWriter: a shareable document with an outcome chart
//
// Design decision: Writers only read model.Run; all numbers they show come
// from the Run's own accessors or NewSummary, so every format agrees.
package report
