package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/linkprobe/internal/model"
)

// NewWarmCmd creates the warm command.
func NewWarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm <url> [url...]",
		Short: "Fetch every page to prime caches",
		Long: `Crawl each start URL breadth-first and fetch every same-host page so
that CDNs and reverse proxies hold a fresh copy.

The report lists each page with its status, size, response time and the
cache status the edge reported (X-Cache, CF-Cache-Status, Age). With
--assets, stylesheets, scripts and images referenced by the pages are
fetched too.`,
		Example: `  # Warm a site after a deploy
  linkprobe warm https://example.com

  # Warm pages and their assets, limited to 500 pages
  linkprobe warm --assets -p 500 https://example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd(model.ModeWarm),
	}

	addCrawlFlags(cmd)
	cmd.Flags().Bool("assets", false, "Also fetch same-host stylesheets, scripts and images")

	return cmd
}
