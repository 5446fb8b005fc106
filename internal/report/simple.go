package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/linkprobe/internal/model"
)

const ruleWidth = 70

// SimpleWriter renders a plain-text report for the terminal.
//
// Design decision: no ANSI colors, so the output stays readable when piped
// to a file or another tool.
type SimpleWriter struct {
	baseWriter

	// verbose adds the page table and the error list.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose includes every fetched page in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter returns a SimpleWriter writing to output.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders the report.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder
	summary := report.Summarize()

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report, summary)
	if report.Mode == model.ModeWarm || w.verbose {
		w.writePages(&sb, report)
	}
	w.writeBroken(&sb, report)
	w.writeErrors(&sb, report)
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%*s\n", (ruleWidth+len("LINKPROBE REPORT"))/2, "LINKPROBE REPORT")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:      %s\n", report.StartURL)
	fmt.Fprintf(sb, "Mode:           %s\n", report.Mode)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:         %s\n\n", statusText(report))
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport, s model.Summary) {
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Links checked:  %s\n", humanize.Comma(int64(s.LinksChecked)))
	fmt.Fprintf(sb, "  Broken links:   %s\n", humanize.Comma(int64(s.Broken)))
	for _, f := range failureOrder {
		if n := s.ByFailure[f]; n > 0 {
			fmt.Fprintf(sb, "    %-16s %s\n", f.String()+":", humanize.Comma(int64(n)))
		}
	}
	fmt.Fprintf(sb, "  Pages fetched:  %s (%s)\n", humanize.Comma(int64(s.Pages)), humanize.Bytes(uint64(max(0, s.Bytes))))
	if report.Mode == model.ModeWarm {
		fmt.Fprintf(sb, "  Cache hits:     %s\n", humanize.Comma(int64(s.CacheHits)))
		fmt.Fprintf(sb, "  Cache misses:   %s\n", humanize.Comma(int64(s.CacheMisses)))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Pages) == 0 {
		return
	}
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	for _, p := range report.Pages {
		cache := p.CacheStatus
		if cache == "" {
			cache = model.CacheUnknown
		}
		fmt.Fprintf(sb, "  %3d %-7s %9s %8s  %s\n",
			p.StatusCode, cache, humanize.Bytes(uint64(max(0, p.Bytes))),
			p.Duration.Round(time.Millisecond), p.URL)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBroken(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("BROKEN LINKS\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")

	if len(report.Broken) == 0 {
		sb.WriteString("  No broken links found.\n\n")
		return
	}

	groups := groupByFailure(report.Broken)
	for _, f := range failureOrder {
		links := groups[f]
		if len(links) == 0 {
			continue
		}
		fmt.Fprintf(sb, "\n[%s] (%d)\n", f, len(links))
		for _, b := range links {
			fmt.Fprintf(sb, "  %s\n", b.Target)
			fmt.Fprintf(sb, "    Reason:   %s\n", b.Reason())
			if b.Referrer != "" {
				fmt.Fprintf(sb, "    Found on: %s", b.Referrer)
				if b.Line > 0 {
					fmt.Fprintf(sb, " (line %d)", b.Line)
				}
				sb.WriteString("\n")
			}
			if b.Text != "" {
				fmt.Fprintf(sb, "    Text:     %q\n", b.Text)
			}
			if b.External {
				sb.WriteString("    External: yes\n")
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Errors) == 0 {
		return
	}
	sb.WriteString("ERRORS\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	for _, e := range report.Errors {
		fmt.Fprintf(sb, "  - %s\n", e)
	}
	sb.WriteString("\n")
}

// WriteDiff renders a history comparison.
func (w *SimpleWriter) WriteDiff(site string, diff model.ReportDiff) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "History for %s\n", site)
	fmt.Fprintf(&sb, "  previous run: %s\n", diff.PreviousID)
	fmt.Fprintf(&sb, "  current run:  %s\n\n", diff.CurrentID)

	if !diff.HasChanges() {
		sb.WriteString("No changes since the previous run.\n")
	}
	section := func(title string, links []model.BrokenLink, withReason bool) {
		if len(links) == 0 {
			return
		}
		fmt.Fprintf(&sb, "%s (%d)\n", title, len(links))
		for _, b := range links {
			if withReason {
				fmt.Fprintf(&sb, "  + %s  [%s]\n", b.Target, b.Reason())
				continue
			}
			fmt.Fprintf(&sb, "  - %s\n", b.Target)
		}
		sb.WriteString("\n")
	}
	section("NEW BROKEN", diff.NewBroken, true)
	section("FIXED", diff.Fixed, false)
	if n := len(diff.StillBroken); n > 0 {
		fmt.Fprintf(&sb, "Still broken: %d\n", n)
	}
	if len(diff.ChangedPages) > 0 {
		fmt.Fprintf(&sb, "CHANGED PAGES (%d)\n", len(diff.ChangedPages))
		for _, u := range diff.ChangedPages {
			fmt.Fprintf(&sb, "  * %s\n", u)
		}
	}
	return io.WriteString(w.output, sb.String())
}
