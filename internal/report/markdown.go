package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/linkprobe/internal/model"
)

// MarkdownWriter renders GitHub-flavored Markdown, suitable for pull
// request comments and CI job summaries.
//
// Design decision: nao1215/markdown builds tables, alerts and mermaid
// charts without hand-escaping pipes and backticks.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter returns a MarkdownWriter writing to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the report.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summarize()

	w.writeHeader(md, report)
	w.writeSummary(md, report, summary)
	w.writeBroken(md, report)
	if report.Mode == model.ModeWarm {
		w.writePages(md, report)
	}
	if len(report.Errors) > 0 {
		md.H2("Errors")
		md.PlainText("")
		md.BulletList(report.Errors...)
		md.PlainText("")
	}
	writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("linkprobe Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + report.StartURL + "`"},
			{"Mode", string(report.Mode)},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport, s model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Links checked", humanize.Comma(int64(s.LinksChecked))},
		{"Broken links", humanize.Comma(int64(s.Broken))},
		{"Pages fetched", humanize.Comma(int64(s.Pages))},
		{"Bytes read", humanize.Bytes(uint64(max(0, s.Bytes)))},
	}
	if report.Mode == model.ModeWarm {
		rows = append(rows,
			[]string{"Cache hits", strconv.Itoa(s.CacheHits)},
			[]string{"Cache misses", strconv.Itoa(s.CacheMisses)},
		)
	}
	md.Table(markdown.TableSet{Header: []string{"Metric", "Value"}, Rows: rows})
	md.PlainText("")

	if s.Broken > 0 {
		w.writePieChart(md, s)
	}

	switch {
	case report.Cancelled:
		md.Warningf("The crawl was cancelled after %d links; results are partial.", s.LinksChecked)
	case s.ByFailure[model.FailureServerError] > 0 || s.ByFailure[model.FailureTransport] > 0:
		md.Cautionf("%d broken link(s), including server or connection failures.", s.Broken)
	case s.Broken > 0:
		md.Importantf("%d broken link(s) found.", s.Broken)
	default:
		md.Tip("No broken links found.")
	}
	md.PlainText("")
}

// writePieChart draws the failure distribution as a mermaid pie chart.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Broken Links by Failure"),
		piechart.WithShowData(true),
	)
	for _, f := range failureOrder {
		if n := s.ByFailure[f]; n > 0 {
			chart.LabelAndIntValue(f.String(), uint64(n))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeBroken(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Broken Links")
	md.PlainText("")
	if len(report.Broken) == 0 {
		md.PlainText("No broken links found.")
		md.PlainText("")
		return
	}

	groups := groupByFailure(report.Broken)
	for _, f := range failureOrder {
		links := groups[f]
		if len(links) == 0 {
			continue
		}
		md.PlainText(fmt.Sprintf("### %s (%d)", f, len(links)))
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Target", "Status", "Found On", "Line", "Text"},
			Rows:   brokenRows(links),
		})
		md.PlainText("")
	}
}

func brokenRows(links []model.BrokenLink) [][]string {
	rows := make([][]string, len(links))
	for i, b := range links {
		line := "-"
		if b.Line > 0 {
			line = strconv.Itoa(b.Line)
		}
		text := b.Text
		if text == "" {
			text = "-"
		}
		referrer := b.Referrer
		if referrer == "" {
			referrer = "-"
		}
		target := b.Target
		if b.External {
			target += " (external)"
		}
		rows[i] = []string{
			truncateString(target, 80),
			b.Reason(),
			truncateString(referrer, 60),
			line,
			truncateString(text, 40),
		}
	}
	return rows
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Pages")
	md.PlainText("")
	if len(report.Pages) == 0 {
		md.PlainText("No pages fetched.")
		md.PlainText("")
		return
	}
	rows := make([][]string, len(report.Pages))
	for i, p := range report.Pages {
		rows[i] = []string{
			truncateString(p.URL, 80),
			strconv.Itoa(p.StatusCode),
			p.CacheStatus,
			humanize.Bytes(uint64(max(0, p.Bytes))),
			p.Duration.Round(time.Millisecond).String(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Cache", "Size", "Time"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteDiff renders a history comparison.
func (w *MarkdownWriter) WriteDiff(site string, diff model.ReportDiff) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("linkprobe History: " + site)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Change", "Count"},
		Rows: [][]string{
			{"New broken", strconv.Itoa(len(diff.NewBroken))},
			{"Fixed", strconv.Itoa(len(diff.Fixed))},
			{"Still broken", strconv.Itoa(len(diff.StillBroken))},
			{"Changed pages", strconv.Itoa(len(diff.ChangedPages))},
		},
	})
	md.PlainText("")

	if !diff.HasChanges() {
		md.Note("No changes since the previous run.")
		md.PlainText("")
	}
	if len(diff.NewBroken) > 0 {
		md.H2("New Broken Links")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Target", "Status", "Found On", "Line", "Text"},
			Rows:   brokenRows(diff.NewBroken),
		})
		md.PlainText("")
	}
	if len(diff.Fixed) > 0 {
		md.H2("Fixed")
		md.PlainText("")
		fixed := make([]string, len(diff.Fixed))
		for i, b := range diff.Fixed {
			fixed[i] = b.Target
		}
		md.BulletList(fixed...)
		md.PlainText("")
	}
	if len(diff.ChangedPages) > 0 {
		md.H2("Changed Pages")
		md.PlainText("")
		md.BulletList(diff.ChangedPages...)
		md.PlainText("")
	}
	md.Details("Run IDs", fmt.Sprintf("previous: %s\ncurrent: %s", diff.PreviousID, diff.CurrentID))
	md.PlainText("")
	writeFooter(md)

	return len(md.String()), md.Build()
}

func writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [linkprobe](https://github.com/nao1215/linkprobe)*")
}
