package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// testSite serves a three-page site whose /gone link is broken until
// fixed is set.
type testSite struct {
	*httptest.Server
	fixed atomic.Bool
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	site := &testSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
<a href="/about">About</a>
<a href="/gone">Old page</a>
</body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Cache", "HIT")
		fmt.Fprint(w, `<p><a href="/">home</a></p>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		if !site.fixed.Load() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<p>back again</p>`)
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

// emptyConfig writes a site file without overrides so that tests never
// pick up a .linkprobe from the developer's home directory.
func emptyConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".linkprobe")
	if err := os.WriteFile(path, []byte("defaults: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// crawlArgs are the flags every crawl test needs for a fast, quiet,
// isolated run.
func crawlArgs(t *testing.T, dbDir string) []string {
	t.Helper()

	return []string{
		"--config", emptyConfig(t),
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--db-dir", dbDir,
		"--no-progress",
		"--no-jitter",
		"--ignore-robots",
		"-c", "2",
	}
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
