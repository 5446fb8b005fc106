package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nao1215/linkprobe/internal/config"
	"github.com/nao1215/linkprobe/internal/model"
	"github.com/nao1215/linkprobe/internal/report"
)

func TestCheckCmd_JSON(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	args := append([]string{"check", "--json", "--no-db"}, crawlArgs(t, t.TempDir())...)
	stdout, _, err := execute(t, append(args, site.URL+"/")...)
	if !errors.Is(err, errBrokenLinks) {
		t.Fatalf("expected errBrokenLinks, got %v", err)
	}

	var doc report.JSONReport
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout)
	}
	if doc.Summary.LinksChecked != 3 {
		t.Errorf("links checked = %d, want 3", doc.Summary.LinksChecked)
	}
	if doc.Summary.Broken != 1 {
		t.Fatalf("broken = %d, want 1", doc.Summary.Broken)
	}
	if doc.Summary.ByFailure["CLIENT_ERROR"] != 1 {
		t.Errorf("by_failure = %v", doc.Summary.ByFailure)
	}
	b := doc.Report.Broken[0]
	if b.Target != site.URL+"/gone" || b.StatusCode != 404 {
		t.Errorf("broken link = %+v", b)
	}
	if doc.Report.Mode != model.ModeCheck {
		t.Errorf("mode = %q", doc.Report.Mode)
	}
}

func TestCheckCmd_ExitZeroText(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	args := append([]string{"check", "--exit-zero", "--no-db"}, crawlArgs(t, t.TempDir())...)
	stdout, _, err := execute(t, append(args, site.URL+"/")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"LINKPROBE REPORT", site.URL + "/gone", "404"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("report missing %q:\n%s", want, stdout)
		}
	}
}

func TestCheckCmd_NoBrokenLinks(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.fixed.Store(true)
	args := append([]string{"check", "--no-db"}, crawlArgs(t, t.TempDir())...)
	if _, _, err := execute(t, append(args, site.URL+"/")...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckCmd_MultipleTargetsToFiles(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	out := filepath.Join(t.TempDir(), "reports", "site.md")
	args := append([]string{"check", "--markdown", "--exit-zero", "--no-db", "-o", out}, crawlArgs(t, t.TempDir())...)
	stdout, _, err := execute(t, append(args, site.URL+"/", site.URL+"/about")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "" {
		t.Errorf("report written to stdout as well: %q", stdout)
	}

	for _, path := range []string{out, strings.TrimSuffix(out, ".md") + "-2.md"} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("report %s not written: %v", path, err)
		}
		if !strings.Contains(string(data), "/gone") {
			t.Errorf("%s does not list the broken link", path)
		}
		info, _ := os.Stat(path)
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("%s permissions = %o, want 600", path, perm)
		}
	}
}

func TestCheckCmd_XLSX(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	out := filepath.Join(t.TempDir(), "report.xlsx")
	args := append([]string{"check", "--xlsx", "--exit-zero", "--no-db", "-o", out}, crawlArgs(t, t.TempDir())...)
	if _, _, err := execute(t, append(args, site.URL+"/")...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("workbook not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("workbook is empty")
	}
}

func TestWarmCmd_JSON(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	args := append([]string{"warm", "--json", "--no-db"}, crawlArgs(t, t.TempDir())...)
	stdout, _, err := execute(t, append(args, site.URL+"/")...)
	if err != nil {
		t.Fatalf("warm must not fail on broken links: %v", err)
	}

	var doc report.JSONReport
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout)
	}
	if doc.Report.Mode != model.ModeWarm {
		t.Errorf("mode = %q", doc.Report.Mode)
	}
	if doc.Summary.Pages != 2 {
		t.Errorf("pages = %d, want 2", doc.Summary.Pages)
	}
	if doc.Summary.CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", doc.Summary.CacheHits)
	}
	for _, p := range doc.Report.Pages {
		if p.Fingerprint == "" {
			t.Errorf("page %s has no fingerprint", p.URL)
		}
	}
}

func TestCrawlCmd_ConfigErrors(t *testing.T) {
	t.Parallel()

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("LINKPROBE_CONCURRENCY=many\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want error
	}{
		{
			name: "non-http target",
			args: []string{"check", "--no-db", "--config", emptyConfig(t), "ftp://example.com/"},
			want: config.ErrInvalidTarget,
		},
		{
			name: "two report formats",
			args: []string{"check", "--no-db", "--json", "--markdown", "--config", emptyConfig(t), "https://example.com/"},
			want: config.ErrConflictingReportFormats,
		},
		{
			name: "xlsx to terminal",
			args: []string{"warm", "--no-db", "--xlsx", "--config", emptyConfig(t), "https://example.com/"},
			want: config.ErrXLSXNeedsOutput,
		},
		{
			name: "tor and proxy",
			args: []string{"check", "--no-db", "--tor", "--proxy", "127.0.0.1:9050", "--config", emptyConfig(t), "https://example.com/"},
			want: config.ErrConflictingProxy,
		},
		{
			name: "missing config file",
			args: []string{"check", "--no-db", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "https://example.com/"},
			want: config.ErrConfigNotFound,
		},
		{
			name: "bad environment override",
			args: []string{"check", "--no-db", "--env-file", envFile, "--config", emptyConfig(t), "https://example.com/"},
			want: config.ErrInvalidEnv,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := execute(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCheckCmd_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, _, err := execute(t, "check"); err == nil {
		t.Error("expected an error without a start URL")
	}
}

func TestCrawlCmd_Flags(t *testing.T) {
	t.Parallel()

	check := NewCheckCmd()
	warm := NewWarmCmd()

	shared := map[string]string{
		"concurrency": "c",
		"timeout":     "t",
		"max-pages":   "p",
		"batch":       "b",
		"json":        "j",
		"markdown":    "m",
		"output":      "o",
	}
	for _, cmd := range []*cobra.Command{check, warm} {
		for name, short := range shared {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				t.Errorf("%s: missing flag %q", cmd.Name(), name)
				continue
			}
			if flag.Shorthand != short {
				t.Errorf("%s: flag %q shorthand = %q, want %q", cmd.Name(), name, flag.Shorthand, short)
			}
		}
	}

	for _, name := range []string{"check-external", "details", "exit-zero"} {
		if check.Flags().Lookup(name) == nil {
			t.Errorf("check: missing flag %q", name)
		}
		if warm.Flags().Lookup(name) != nil {
			t.Errorf("warm: unexpected flag %q", name)
		}
	}
	if warm.Flags().Lookup("assets") == nil {
		t.Error("warm: missing flag \"assets\"")
	}
}

func TestReportPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file         string
		index, total int
		want         string
	}{
		{file: "", index: 1, total: 3, want: ""},
		{file: "out.json", index: 0, total: 1, want: "out.json"},
		{file: "out.json", index: 0, total: 3, want: "out.json"},
		{file: "out.json", index: 1, total: 3, want: "out-2.json"},
		{file: "dir/report", index: 2, total: 3, want: "dir/report-3"},
	}
	for _, tt := range tests {
		if got := reportPath(tt.file, tt.index, tt.total); got != tt.want {
			t.Errorf("reportPath(%q, %d, %d) = %q, want %q", tt.file, tt.index, tt.total, got, tt.want)
		}
	}
}
