package report

import (
	"io"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/nao1215/linkprobe/internal/model"
)

// Writer renders a crawl report to its destination.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *model.CrawlReport) (int, error)
}

// MultiWriter writes a report to several Writers in turn.
//
// Design decision: io.MultiWriter does not fit because each Writer renders
// its own format from the report, not from the same bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter returns a Writer writing to all writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to every writer and stops at the first error.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
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

// failureOrder lists failure categories from most to least serious.
var failureOrder = []model.Failure{
	model.FailureTransport,
	model.FailureServerError,
	model.FailureClientError,
}

// groupByFailure splits broken links by category, keeping report order.
func groupByFailure(broken []model.BrokenLink) map[model.Failure][]model.BrokenLink {
	groups := make(map[model.Failure][]model.BrokenLink)
	for _, b := range broken {
		f := b.Failure()
		groups[f] = append(groups[f], b)
	}
	return groups
}

// statusLabel renders a status for tables, "-" for transport errors.
func statusLabel(status int) string {
	if status == 0 {
		return "-"
	}
	return strconv.Itoa(status)
}

// sortedStatuses returns the keys of a status histogram in ascending order.
func sortedStatuses(byStatus map[int]int) []int {
	out := make([]int, 0, len(byStatus))
	for s := range byStatus {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// statusText describes how a crawl ended.
func statusText(report *model.CrawlReport) string {
	switch {
	case report.Cancelled:
		return "Cancelled (partial results)"
	case len(report.Errors) > 0:
		return "Completed with errors"
	default:
		return "Complete"
	}
}

// truncateString shortens s to maxLen bytes with an ellipsis, never
// cutting a multi-byte rune.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// DiffWriter renders the comparison of two runs of the same site.
// SimpleWriter, JSONWriter and MarkdownWriter implement it.
type DiffWriter interface {
	WriteDiff(site string, diff model.ReportDiff) (int, error)
}
