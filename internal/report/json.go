package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/linkprobe/internal/model"
)

// JSONWriter renders reports as JSON for tools and CI jobs.
type JSONWriter struct {
	baseWriter

	version      string
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
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

// WithVersion stamps the linkprobe version into every document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter returns a JSONWriter writing compact JSON to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document JSONWriter emits.
//
// Design decision: a wrapper instead of new fields on CrawlReport, so that
// output-only data such as the version stays out of the history database.
type JSONReport struct {
	Version string             `json:"version,omitempty"`
	Summary JSONSummary        `json:"summary"`
	Report  *model.CrawlReport `json:"report"`
}

// JSONSummary is model.Summary with failure categories keyed by name.
type JSONSummary struct {
	LinksChecked int            `json:"links_checked"`
	Broken       int            `json:"broken"`
	ByFailure    map[string]int `json:"by_failure,omitempty"`
	ByStatus     map[int]int    `json:"by_status,omitempty"`
	Pages        int            `json:"pages"`
	Bytes        int64          `json:"bytes"`
	CacheHits    int            `json:"cache_hits"`
	CacheMisses  int            `json:"cache_misses"`
	DurationMS   int64          `json:"duration_ms"`
}

// NewJSONReport builds the document for report.
func NewJSONReport(report *model.CrawlReport, version string) *JSONReport {
	s := report.Summarize()
	byFailure := make(map[string]int, len(s.ByFailure))
	for f, n := range s.ByFailure {
		byFailure[f.String()] = n
	}
	return &JSONReport{
		Version: version,
		Summary: JSONSummary{
			LinksChecked: s.LinksChecked,
			Broken:       s.Broken,
			ByFailure:    byFailure,
			ByStatus:     s.ByStatus,
			Pages:        s.Pages,
			Bytes:        s.Bytes,
			CacheHits:    s.CacheHits,
			CacheMisses:  s.CacheMisses,
			DurationMS:   report.Duration().Milliseconds(),
		},
		Report: report,
	}
}

// Write renders the report.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}

// WriteDiff renders a history comparison.
func (w *JSONWriter) WriteDiff(site string, diff model.ReportDiff) (int, error) {
	return w.writeJSON(struct {
		Site string `json:"site"`
		model.ReportDiff
	}{Site: site, ReportDiff: diff})
}

// WriteValue renders any JSON-serializable value with the writer's settings.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	return w.writeJSON(v)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
